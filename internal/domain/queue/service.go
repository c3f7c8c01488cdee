package queue

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/openclinic/intake/internal/platform/blobstore"
)

// ErrNotFound is returned for operations addressing an item that does not
// exist in the relevant store.
var ErrNotFound = errors.New("queue item not found")

// Service couples queue rows with their document blobs. All reads hit the
// backing store directly; there is no caching layer, so Size always
// reflects the true queue.
type Service struct {
	repo  Repository
	blobs blobstore.Store
}

func NewService(repo Repository, blobs blobstore.Store) *Service {
	return &Service{repo: repo, blobs: blobs}
}

// Enqueue stores the raw document and appends a pending item referencing
// it. The blob is written first; a failed row insert cleans the blob up so
// no orphan blobs accumulate.
func (s *Service) Enqueue(ctx context.Context, rawDocument []byte, submitter string) (*PendingItem, error) {
	if len(rawDocument) == 0 {
		return nil, fmt.Errorf("raw document is empty")
	}

	item := &PendingItem{ID: uuid.New(), Submitter: submitter}

	url, err := s.blobs.Put(ctx, item.ID.String(), bytes.NewReader(rawDocument))
	if err != nil {
		return nil, fmt.Errorf("store document blob: %w", err)
	}
	item.BlobURL = url

	if err := s.repo.Insert(ctx, item); err != nil {
		_ = s.blobs.Delete(ctx, item.ID.String())
		return nil, err
	}
	return item, nil
}

func (s *Service) Size(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func (s *Service) ErrorSize(ctx context.Context) (int, error) {
	return s.repo.CountErrors(ctx)
}

func (s *Service) List(ctx context.Context) ([]*PendingItem, error) {
	return s.repo.List(ctx)
}

func (s *Service) ListErrors(ctx context.Context) ([]*ErrorItem, error) {
	return s.repo.ListErrors(ctx)
}

// GetError fetches one error item for inspection.
func (s *Service) GetError(ctx context.Context, id uuid.UUID) (*ErrorItem, error) {
	item, err := s.repo.GetError(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNotFound
	}
	return item, nil
}

// ReadErrorDocument fetches the raw document of a failed item. The blob
// survives the move to the error sink, so the submission can be examined.
func (s *Service) ReadErrorDocument(ctx context.Context, id uuid.UUID) ([]byte, error) {
	if _, err := s.GetError(ctx, id); err != nil {
		return nil, err
	}
	return s.blobs.Get(ctx, id.String())
}

// PeekNext returns the oldest pending item without claiming it, or nil
// when the queue is empty.
func (s *Service) PeekNext(ctx context.Context) (*PendingItem, error) {
	return s.repo.Oldest(ctx)
}

// ReadDocument fetches the raw document for an item.
func (s *Service) ReadDocument(ctx context.Context, item *PendingItem) ([]byte, error) {
	return s.blobs.Get(ctx, item.ID.String())
}

// Delete removes a processed item and its blob. Deleting an item another
// drain already claimed is a no-op.
func (s *Service) Delete(ctx context.Context, item *PendingItem) error {
	claimed, err := s.repo.ClaimDelete(ctx, item.ID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	if err := s.blobs.Delete(ctx, item.ID.String()); err != nil {
		return fmt.Errorf("delete document blob: %w", err)
	}
	return nil
}

// MoveToError migrates a failed item to the error sink with the captured
// error text. The blob stays in place so the document can be inspected and
// requeued. Moving an item another drain already claimed is a no-op.
func (s *Service) MoveToError(ctx context.Context, item *PendingItem, errorMessage string) error {
	if errorMessage == "" {
		errorMessage = "unknown processing error"
	}
	_, err := s.repo.MoveToError(ctx, item.ID, errorMessage)
	return err
}

// Requeue moves an error item back to the pending queue for another
// processing attempt.
func (s *Service) Requeue(ctx context.Context, id uuid.UUID) (*PendingItem, error) {
	moved, err := s.repo.Requeue(ctx, id)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, ErrNotFound
	}

	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.ID == id {
			return item, nil
		}
	}
	return nil, fmt.Errorf("requeued item %s not visible in pending queue", id)
}
