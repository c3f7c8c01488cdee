package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openclinic/intake/internal/platform/blobstore"
)

func newTestService() *Service {
	return NewService(NewMemRepo(), blobstore.NewMemStore())
}

func TestEnqueue_IncreasesSizeByOne(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	before, err := svc.Size(ctx)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}

	item, err := svc.Enqueue(ctx, []byte("<encounterForm/>"), "site-7")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if item.ID == uuid.Nil {
		t.Error("expected item to have an id")
	}
	if item.BlobURL == "" {
		t.Error("expected item to carry a blob URL")
	}
	if item.Submitter != "site-7" {
		t.Errorf("unexpected submitter %q", item.Submitter)
	}

	after, err := svc.Size(ctx)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if after != before+1 {
		t.Errorf("size went %d -> %d, want +1", before, after)
	}

	doc, err := svc.ReadDocument(ctx, item)
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if string(doc) != "<encounterForm/>" {
		t.Errorf("document round-trip mismatch: %q", doc)
	}
}

func TestEnqueue_EmptyDocument(t *testing.T) {
	svc := newTestService()
	if _, err := svc.Enqueue(context.Background(), nil, "site-1"); err == nil {
		t.Fatal("expected error for empty document")
	}
}

func TestPeekNext_ReturnsOldest(t *testing.T) {
	repo := NewMemRepo()
	svc := NewService(repo, blobstore.NewMemStore())
	ctx := context.Background()

	// insert directly so creation times are controlled
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	second := &PendingItem{ID: uuid.New(), CreatedAt: base.Add(time.Minute)}
	first := &PendingItem{ID: uuid.New(), CreatedAt: base}
	if err := repo.Insert(ctx, second); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := repo.Insert(ctx, first); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	next, err := svc.PeekNext(ctx)
	if err != nil {
		t.Fatalf("PeekNext: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Errorf("expected oldest item %s, got %+v", first.ID, next)
	}

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != first.ID {
		t.Errorf("list not ordered by creation time: %+v", list)
	}
}

func TestPeekNext_EmptyQueue(t *testing.T) {
	svc := newTestService()
	next, err := svc.PeekNext(context.Background())
	if err != nil {
		t.Fatalf("PeekNext: %v", err)
	}
	if next != nil {
		t.Errorf("expected nil on empty queue, got %+v", next)
	}
}

func TestDelete_RemovesItemAndBlob(t *testing.T) {
	blobs := blobstore.NewMemStore()
	svc := NewService(NewMemRepo(), blobs)
	ctx := context.Background()

	item, err := svc.Enqueue(ctx, []byte("doc"), "s")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := svc.Delete(ctx, item); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	size, _ := svc.Size(ctx)
	if size != 0 {
		t.Errorf("expected empty queue, size=%d", size)
	}
	if _, err := blobs.Get(ctx, item.ID.String()); !errors.Is(err, blobstore.ErrBlobNotFound) {
		t.Errorf("expected blob gone, got %v", err)
	}

	// deleting again must be a no-op
	if err := svc.Delete(ctx, item); err != nil {
		t.Errorf("expected idempotent delete, got %v", err)
	}
}

func TestMoveToError_Accounting(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	item, err := svc.Enqueue(ctx, []byte("doc"), "site-2")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := svc.MoveToError(ctx, item, "bad document"); err != nil {
		t.Fatalf("MoveToError: %v", err)
	}

	pending, _ := svc.Size(ctx)
	failed, _ := svc.ErrorSize(ctx)
	if pending != 0 || failed != 1 {
		t.Errorf("expected pending=0 errors=1, got pending=%d errors=%d", pending, failed)
	}

	errs, err := svc.ListErrors(ctx)
	if err != nil {
		t.Fatalf("ListErrors: %v", err)
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 error item, got %d", len(errs))
	}
	if errs[0].ID != item.ID {
		t.Errorf("error item id changed: %s != %s", errs[0].ID, item.ID)
	}
	if errs[0].ErrorMessage != "bad document" {
		t.Errorf("unexpected error message %q", errs[0].ErrorMessage)
	}
	if errs[0].FailedAt.IsZero() {
		t.Error("expected failure timestamp")
	}

	// blob survives the move for inspection
	if _, err := svc.ReadDocument(ctx, item); err != nil {
		t.Errorf("expected blob retained after move, got %v", err)
	}
}

func TestMoveToError_AlreadyClaimed(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	item, err := svc.Enqueue(ctx, []byte("doc"), "s")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := svc.Delete(ctx, item); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// the item is gone; moving must not resurrect it
	if err := svc.MoveToError(ctx, item, "late failure"); err != nil {
		t.Fatalf("MoveToError: %v", err)
	}
	failed, _ := svc.ErrorSize(ctx)
	if failed != 0 {
		t.Errorf("expected empty error sink, got %d", failed)
	}
}

func TestRequeue_MovesErrorBackToPending(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	item, err := svc.Enqueue(ctx, []byte("doc"), "site-3")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := svc.MoveToError(ctx, item, "boom"); err != nil {
		t.Fatalf("MoveToError: %v", err)
	}

	requeued, err := svc.Requeue(ctx, item.ID)
	if err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if requeued.ID != item.ID {
		t.Errorf("requeue changed id: %s != %s", requeued.ID, item.ID)
	}

	pending, _ := svc.Size(ctx)
	failed, _ := svc.ErrorSize(ctx)
	if pending != 1 || failed != 0 {
		t.Errorf("expected pending=1 errors=0, got pending=%d errors=%d", pending, failed)
	}
}

func TestRequeue_MissingItem(t *testing.T) {
	svc := newTestService()
	if _, err := svc.Requeue(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
