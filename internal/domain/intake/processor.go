package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/openclinic/intake/internal/domain/queue"
	"github.com/openclinic/intake/internal/domain/registry"
	"github.com/openclinic/intake/internal/platform/blobstore"
	"github.com/openclinic/intake/internal/platform/db"
)

// Ingestor is the external encounter subsystem. The processor hands it
// the resolved subject and the opaque clinical payload; it answers
// success or failure and nothing more.
type Ingestor interface {
	Ingest(ctx context.Context, subject *registry.Person, clinical []byte) error
}

// Txer runs a function atomically. The pgx-backed implementation wraps a
// database transaction; tests substitute a pass-through.
type Txer interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PoolTxer is the production Txer over a pgx pool.
type PoolTxer struct{ Pool *pgxpool.Pool }

func (t PoolTxer) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, t.Pool, fn)
}

// NopTxer runs the function directly, for stores that need no
// transaction demarcation (tests, in-memory backends).
type NopTxer struct{}

func (NopTxer) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// RunStats summarizes one drain run.
type RunStats struct {
	Processed int       `json:"processed"` // committed and deleted
	Failed    int       `json:"failed"`    // moved to the error sink
	Skipped   int       `json:"skipped"`   // left pending (store read failures)
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
}

// ErrDrainInProgress is returned when a drain run is requested while
// another is already running against the same processor.
var ErrDrainInProgress = errors.New("drain already in progress")

// Processor drains the pending queue in submission order. One logical
// worker per queue; per-item failures are isolated, fatal store failures
// abort the run.
type Processor struct {
	queue    *queue.Service
	parser   *Parser
	resolver *Resolver
	pop      *Populator
	rels     *RelationshipResolver
	registry registry.Repository
	ingestor Ingestor
	tx       Txer
	actor    string
	log      zerolog.Logger

	running sync.Mutex
}

func NewProcessor(
	q *queue.Service,
	reg registry.Repository,
	ingestor Ingestor,
	tx Txer,
	actor string,
	log zerolog.Logger,
) *Processor {
	return &Processor{
		queue:    q,
		parser:   NewParser(),
		resolver: NewResolver(reg),
		pop:      NewPopulator(reg, actor),
		rels:     NewRelationshipResolver(reg, actor),
		registry: reg,
		ingestor: ingestor,
		tx:       tx,
		actor:    actor,
		log:      log,
	}
}

// Drain processes until the queue holds nothing but items already
// skipped this run. Items enqueued mid-run may or may not be seen.
// A skipped item (blob unreadable) stays pending and is stepped over,
// so it never blocks the items behind it. At most one run executes at
// a time; a second caller gets ErrDrainInProgress.
func (p *Processor) Drain(ctx context.Context) (RunStats, error) {
	stats := RunStats{Started: time.Now().UTC()}

	if !p.running.TryLock() {
		stats.Finished = time.Now().UTC()
		return stats, ErrDrainInProgress
	}
	defer p.running.Unlock()

	skipped := make(map[uuid.UUID]struct{})
	for {
		item, err := p.nextPending(ctx, skipped)
		if err != nil {
			stats.Finished = time.Now().UTC()
			return stats, fmt.Errorf("list pending queue: %w", err)
		}
		if item == nil {
			break
		}

		log := p.log.With().Stringer("item", item.ID).Str("submitter", item.Submitter).Logger()

		if err := p.processItem(ctx, item); err != nil {
			var storeErr *StoreError
			if errors.As(err, &storeErr) {
				// leave the item pending for a later run
				log.Warn().Err(err).Msg("item left pending after store failure")
				stats.Skipped++
				skipped[item.ID] = struct{}{}
				continue
			}

			if moveErr := p.queue.MoveToError(ctx, item, err.Error()); moveErr != nil {
				stats.Finished = time.Now().UTC()
				return stats, fmt.Errorf("move item %s to error sink: %w", item.ID, moveErr)
			}
			log.Error().Err(err).Msg("item moved to error sink")
			stats.Failed++
			continue
		}

		if err := p.queue.Delete(ctx, item); err != nil {
			stats.Finished = time.Now().UTC()
			return stats, fmt.Errorf("delete processed item %s: %w", item.ID, err)
		}
		log.Info().Msg("item processed")
		stats.Processed++
	}

	stats.Finished = time.Now().UTC()
	p.log.Info().
		Int("processed", stats.Processed).
		Int("failed", stats.Failed).
		Int("skipped", stats.Skipped).
		Msg("drain run finished")
	return stats, nil
}

// nextPending returns the oldest pending item not skipped this run, or
// nil when only skipped items (or nothing) remain.
func (p *Processor) nextPending(ctx context.Context, skipped map[uuid.UUID]struct{}) (*queue.PendingItem, error) {
	items, err := p.queue.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if _, ok := skipped[item.ID]; !ok {
			return item, nil
		}
	}
	return nil, nil
}

// processItem runs the full pipeline for one item. Registry mutations
// happen inside a single transaction: on any error nothing is committed,
// so no partially-populated subject is ever visible.
func (p *Processor) processItem(ctx context.Context, item *queue.PendingItem) error {
	raw, err := p.queue.ReadDocument(ctx, item)
	if err != nil {
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			// the blob is gone for good; retrying cannot help
			return malformed("document blob missing", err)
		}
		return &StoreError{Err: err}
	}

	rec, err := p.parser.Parse(raw)
	if err != nil {
		return err
	}

	return p.tx.WithTx(ctx, func(ctx context.Context) error {
		subject, err := p.buildSubject(ctx, rec)
		if err != nil {
			return err
		}

		if err := p.pop.Populate(ctx, subject, rec); err != nil {
			return err
		}

		saved, err := p.registry.Save(ctx, subject)
		if err != nil {
			if registry.IsUniqueViolation(err) {
				return &IdentityConflictError{Token: rec.Token, Err: err}
			}
			return populationErr("saving subject", err)
		}

		if err := p.rels.ResolveAll(ctx, saved, rec.Relationships); err != nil {
			return err
		}

		if err := p.ingestor.Ingest(ctx, saved, rec.Clinical); err != nil {
			return &ExternalServiceError{Err: err}
		}
		return nil
	})
}

// buildSubject turns the identity outcome into a concrete subject:
// reuse the existing patient, promote the person in place, or start a
// fresh patient. A supplied-but-unmatched token is persisted onto the new
// subject so a later resubmission with the same token matches it.
func (p *Processor) buildSubject(ctx context.Context, rec *Record) (*registry.Person, error) {
	outcome, err := p.resolver.Resolve(ctx, rec.Token)
	if err != nil {
		return nil, err
	}

	switch outcome.Kind {
	case OutcomeExistingPatient:
		return outcome.Subject, nil
	case OutcomePromotePerson:
		subject := outcome.Subject
		subject.Promote()
		return subject, nil
	default:
		return &registry.Person{
			Token:     rec.Token,
			Patient:   true,
			Creator:   p.actor,
			CreatedAt: time.Now().UTC(),
		}, nil
	}
}
