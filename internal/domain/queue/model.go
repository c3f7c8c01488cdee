// Package queue implements the durable pending-submission queue and its
// error sink. Pending items are processed strictly in submission order;
// failed items migrate intact to the error sink and are never retried
// automatically.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// PendingItem is one queued submission. The row is read-only once created:
// it is either deleted on success or migrated to an ErrorItem on failure.
type PendingItem struct {
	ID        uuid.UUID `json:"id"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
	Submitter string    `json:"submitter"`
	BlobURL   string    `json:"blob_url"`
}

// ErrorItem is a failed submission retained for manual inspection. It keeps
// the original item's id, timestamps, and blob so the document can be
// examined and requeued.
type ErrorItem struct {
	ID           uuid.UUID `json:"id"`
	Seq          int64     `json:"seq"`
	CreatedAt    time.Time `json:"created_at"`
	Submitter    string    `json:"submitter"`
	BlobURL      string    `json:"blob_url"`
	ErrorMessage string    `json:"error_message"`
	FailedAt     time.Time `json:"failed_at"`
}
