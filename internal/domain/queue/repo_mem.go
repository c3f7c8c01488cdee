package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemRepo is a thread-safe, in-memory Repository for testing and
// development. Semantics mirror the pgx implementation, including the
// claim behavior of ClaimDelete and MoveToError.
type MemRepo struct {
	mu      sync.Mutex
	nextSeq int64
	pending map[uuid.UUID]*PendingItem
	errors  map[uuid.UUID]*ErrorItem
}

// NewMemRepo returns a ready-to-use MemRepo.
func NewMemRepo() *MemRepo {
	return &MemRepo{
		pending: make(map[uuid.UUID]*PendingItem),
		errors:  make(map[uuid.UUID]*ErrorItem),
	}
}

func (r *MemRepo) Insert(_ context.Context, item *PendingItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	r.nextSeq++
	item.Seq = r.nextSeq
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	cp := *item
	r.pending[item.ID] = &cp
	return nil
}

func (r *MemRepo) Count(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending), nil
}

func (r *MemRepo) ordered() []*PendingItem {
	items := make([]*PendingItem, 0, len(r.pending))
	for _, item := range r.pending {
		cp := *item
		items = append(items, &cp)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].Seq < items[j].Seq
	})
	return items
}

func (r *MemRepo) List(context.Context) ([]*PendingItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ordered(), nil
}

func (r *MemRepo) Oldest(context.Context) (*PendingItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := r.ordered()
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

func (r *MemRepo) ClaimDelete(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[id]; !ok {
		return false, nil
	}
	delete(r.pending, id)
	return true, nil
}

func (r *MemRepo) MoveToError(_ context.Context, id uuid.UUID, errorMessage string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.pending[id]
	if !ok {
		return false, nil
	}
	delete(r.pending, id)
	r.errors[id] = &ErrorItem{
		ID:           item.ID,
		Seq:          item.Seq,
		CreatedAt:    item.CreatedAt,
		Submitter:    item.Submitter,
		BlobURL:      item.BlobURL,
		ErrorMessage: errorMessage,
		FailedAt:     time.Now().UTC(),
	}
	return true, nil
}

func (r *MemRepo) CountErrors(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors), nil
}

func (r *MemRepo) ListErrors(context.Context) ([]*ErrorItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]*ErrorItem, 0, len(r.errors))
	for _, item := range r.errors {
		cp := *item
		items = append(items, &cp)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].FailedAt.Equal(items[j].FailedAt) {
			return items[i].FailedAt.Before(items[j].FailedAt)
		}
		return items[i].Seq < items[j].Seq
	})
	return items, nil
}

func (r *MemRepo) GetError(_ context.Context, id uuid.UUID) (*ErrorItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.errors[id]
	if !ok {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

func (r *MemRepo) Requeue(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.errors[id]
	if !ok {
		return false, nil
	}
	delete(r.errors, id)
	r.nextSeq++
	r.pending[id] = &PendingItem{
		ID:        item.ID,
		Seq:       r.nextSeq,
		CreatedAt: time.Now().UTC(),
		Submitter: item.Submitter,
		BlobURL:   item.BlobURL,
	}
	return true, nil
}
