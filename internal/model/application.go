package model

import "time"

// Application is a user's recorded action on a posting. Its existence
// locks the posting against retention.
type Application struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	PostingID string    `json:"postingId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PostingEmbedding is a cached vector for one posting under one model.
// ContentHash identifies the text the vector was computed from.
type PostingEmbedding struct {
	PostingID   string
	Model       string
	ContentHash string
	Vector      []float32
}
