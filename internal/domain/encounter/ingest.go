// Package encounter is the boundary to the clinical-encounter subsystem.
// The intake core hands it a resolved subject and the opaque clinical
// payload; everything beyond recording that hand-off (form interpretation,
// visit structuring) lives outside this repository.
package encounter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openclinic/intake/internal/domain/registry"
	"github.com/openclinic/intake/internal/platform/db"
)

// IntakeEncounter is one recorded hand-off to the encounter subsystem.
type IntakeEncounter struct {
	ID         uuid.UUID
	SubjectID  uuid.UUID
	TypeToken  string
	Initial    bool // whether the type counts as an "initial" visit
	Clinical   []byte
	ReceivedAt time.Time
}

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// PGIngestor records intake encounters in the encounter_intake table. The
// configured initial-encounter-type list decides whether a recorded
// encounter is flagged as an initial visit.
type PGIngestor struct {
	pool     *pgxpool.Pool
	settings registry.SettingsRepository
}

func NewPGIngestor(pool *pgxpool.Pool, settings registry.SettingsRepository) *PGIngestor {
	return &PGIngestor{pool: pool, settings: settings}
}

func (g *PGIngestor) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return g.pool
}

// Ingest records the clinical payload against the subject. An empty
// payload is rejected: a submission without clinical content has nothing
// to hand off.
func (g *PGIngestor) Ingest(ctx context.Context, subject *registry.Person, clinical []byte) error {
	if subject == nil || subject.ID == uuid.Nil {
		return fmt.Errorf("cannot ingest without a saved subject")
	}
	if len(clinical) == 0 {
		return fmt.Errorf("clinical payload is empty")
	}

	typeToken := encounterTypeOf(clinical)

	initialTypes, err := g.settings.InitialEncounterTypes(ctx)
	if err != nil {
		return fmt.Errorf("read initial encounter types: %w", err)
	}
	initial := false
	for _, t := range initialTypes {
		if t == typeToken {
			initial = true
			break
		}
	}

	_, err = g.conn(ctx).Exec(ctx, `INSERT INTO encounter_intake (id, subject_id, type_token, initial, clinical)
		VALUES ($1,$2,$3,$4,$5)`,
		uuid.New(), subject.ID, typeToken, initial, clinical)
	if err != nil {
		return fmt.Errorf("record intake encounter: %w", err)
	}
	return nil
}

// encounterTypeOf pulls the encounterType attribute off the clinical
// payload without interpreting the rest of it. An absent attribute yields
// an empty token, which simply never matches the initial list.
func encounterTypeOf(clinical []byte) string {
	const attr = `encounterType="`
	s := string(clinical)
	i := strings.Index(s, attr)
	if i < 0 {
		return ""
	}
	rest := s[i+len(attr):]
	if j := strings.IndexByte(rest, '"'); j >= 0 {
		return rest[:j]
	}
	return ""
}
