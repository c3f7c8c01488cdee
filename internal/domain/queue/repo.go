package queue

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists queue rows. Blob content is the service's concern;
// the repository only stores the blob reference.
//
// Ordering is by creation time ascending with the insertion sequence
// breaking ties, so List()[0] is always the next item to process.
type Repository interface {
	Insert(ctx context.Context, item *PendingItem) error
	Count(ctx context.Context) (int, error)
	List(ctx context.Context) ([]*PendingItem, error)
	// Oldest returns the next item in order, or nil when the queue is empty.
	Oldest(ctx context.Context) (*PendingItem, error)
	// ClaimDelete removes the row if it still exists and reports whether
	// this caller won the claim. Two concurrent drains can both call it;
	// only one sees true.
	ClaimDelete(ctx context.Context, id uuid.UUID) (bool, error)
	// MoveToError atomically claims the pending row and inserts the error
	// row. The item is never visible in both stores and never lost: if the
	// insert cannot complete the pending row survives. Returns false when
	// the pending row was already claimed by someone else.
	MoveToError(ctx context.Context, id uuid.UUID, errorMessage string) (bool, error)

	CountErrors(ctx context.Context) (int, error)
	ListErrors(ctx context.Context) ([]*ErrorItem, error)
	GetError(ctx context.Context, id uuid.UUID) (*ErrorItem, error)
	// Requeue atomically moves an error row back to the pending queue,
	// assigning a fresh insertion sequence so it processes after current
	// pending items. Returns false when the error row does not exist.
	Requeue(ctx context.Context, id uuid.UUID) (bool, error)
}
