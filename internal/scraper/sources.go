package scraper

import (
	"go.uber.org/zap"

	"jobmate/discovery-service/internal/config"
)

// BuildRegistry registers the built-in adapters enabled by cfg plus every
// board and feed of the catalog.
func BuildRegistry(cfg *config.Config, catalog *config.Catalog, log *zap.Logger) (*Registry, error) {
	var adapters []Adapter
	if cfg.Adzuna.AppID != "" && cfg.Adzuna.AppKey != "" {
		adapters = append(adapters, NewAdzunaFetcher(cfg.Adzuna.AppID, cfg.Adzuna.AppKey, cfg.Adzuna.Country, log))
	} else {
		log.Info("adzuna disabled: credentials not set")
	}
	if cfg.Headhunter.Enabled {
		adapters = append(adapters, NewHeadhunterFetcher(cfg.Headhunter.UserAgent, cfg.Headhunter.Area, log))
	}
	if catalog != nil {
		for _, b := range catalog.HTMLBoards {
			adapters = append(adapters, NewHTMLBoard(b, log))
		}
		for _, f := range catalog.JSONFeeds {
			feed, err := NewJSONFeed(f, log)
			if err != nil {
				return nil, err
			}
			adapters = append(adapters, feed)
		}
	}
	return NewRegistry(adapters...)
}
