// jobmate-discovery-service
//
// Job discovery pipeline: scheduled ingestion from job boards with
// deduplication, semantic matching against user profiles with a versioned
// match cache, and retention of postings nobody applied to.
//
// Commands:
//   - serve:   HTTP API + gRPC admin service + cron scheduler
//   - ingest:  one ingestion run, then exit
//   - sweep:   one retention sweep, then exit
//   - migrate: apply the database schema
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
