package metadata

import "time"

// Upload records one successfully indexed document batch.
type Upload struct {
	ID             int64     `json:"id"`
	FileName       string    `json:"file_name"`
	IndexReference string    `json:"index_reference"`
	CreatedAt      time.Time `json:"created_at"`
}
