package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openclinic/intake/internal/domain/registry"
)

// RelationshipResolver materializes the relationship references of a
// record against a resolved subject. Counterparts are matched by token;
// unmatched counterparts are created as minimal persons (never promoted
// to patient) from the seed demographics.
type RelationshipResolver struct {
	registry registry.Repository
	actor    string
	now      func() time.Time
}

func NewRelationshipResolver(reg registry.Repository, actor string) *RelationshipResolver {
	return &RelationshipResolver{registry: reg, actor: actor, now: time.Now}
}

// ResolveAll processes every reference in order. Any failure — unknown
// relationship type, registry rejection (including the store's duplicate
// constraint) — surfaces as a PopulationError.
func (r *RelationshipResolver) ResolveAll(ctx context.Context, subject *registry.Person, refs []RelationshipRef) error {
	for _, ref := range refs {
		if err := r.resolve(ctx, subject, ref); err != nil {
			return err
		}
	}
	return nil
}

func (r *RelationshipResolver) resolve(ctx context.Context, subject *registry.Person, ref RelationshipRef) error {
	ok, err := r.registry.RelationshipTypeExists(ctx, ref.TypeToken)
	if err != nil {
		return populationErr(fmt.Sprintf("looking up relationship type %q", ref.TypeToken), err)
	}
	if !ok {
		return populationErr(fmt.Sprintf("unknown relationship type %q", ref.TypeToken), nil)
	}

	counterpart, err := r.counterpart(ctx, ref)
	if err != nil {
		return err
	}

	// Direction is the document's to declare: the subject occupies the
	// declared role, the counterpart the other side. Never inferred,
	// never normalized.
	personA, personB := subject.ID, counterpart.ID
	if ref.Role == RoleB {
		personA, personB = counterpart.ID, subject.ID
	}

	if err := r.registry.CreateRelationship(ctx, ref.TypeToken, personA, personB); err != nil {
		return populationErr(fmt.Sprintf("creating %q relationship", ref.TypeToken), err)
	}
	return nil
}

func (r *RelationshipResolver) counterpart(ctx context.Context, ref RelationshipRef) (*registry.Person, error) {
	if ref.CounterpartToken != "" {
		existing, err := r.registry.FindByToken(ctx, ref.CounterpartToken)
		if err != nil {
			return nil, populationErr(fmt.Sprintf("resolving counterpart %q", ref.CounterpartToken), err)
		}
		if existing != nil {
			return existing, nil
		}
	}

	seed := &registry.Person{
		Token:     ref.CounterpartToken,
		Gender:    ref.SeedGender,
		BirthDate: ref.SeedBirthDate,
		Creator:   r.actor,
		CreatedAt: r.now().UTC(),
	}
	if ref.SeedName != "" {
		seed.Names = append(seed.Names, seedName(ref.SeedName, r.actor, r.now().UTC()))
	}

	created, err := r.registry.Save(ctx, seed)
	if err != nil {
		return nil, populationErr(fmt.Sprintf("creating counterpart for %q relationship", ref.TypeToken), err)
	}
	return created, nil
}

// seedName splits a single free-text name into given/family on the last
// space; a one-word name becomes the given name.
func seedName(full, actor string, at time.Time) registry.Name {
	n := registry.Name{Preferred: true, Creator: actor, CreatedAt: at}
	full = strings.TrimSpace(full)
	if i := strings.LastIndex(full, " "); i > 0 {
		n.Given = full[:i]
		n.Family = full[i+1:]
	} else {
		n.Given = full
	}
	return n
}
