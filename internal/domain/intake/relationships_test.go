package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/openclinic/intake/internal/domain/registry"
)

func TestResolveAll_DirectionPreserved(t *testing.T) {
	tests := []struct {
		name string
		role Role
	}{
		{"subject declared as A", RoleA},
		{"subject declared as B", RoleB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newFakeRegistry()
			subject := reg.addPerson(&registry.Person{Token: "subject", Patient: true})
			other := reg.addPerson(&registry.Person{Token: "other"})

			rr := NewRelationshipResolver(reg, "intake-processor")
			refs := []RelationshipRef{{TypeToken: "sibling", Role: tt.role, CounterpartToken: "other"}}
			if err := rr.ResolveAll(context.Background(), subject, refs); err != nil {
				t.Fatalf("ResolveAll: %v", err)
			}

			if len(reg.relationships) != 1 {
				t.Fatalf("expected 1 relationship, got %d", len(reg.relationships))
			}
			rel := reg.relationships[0]
			if rel.TypeToken != "sibling" {
				t.Errorf("unexpected type %q", rel.TypeToken)
			}
			wantA, wantB := subject.ID, other.ID
			if tt.role == RoleB {
				wantA, wantB = other.ID, subject.ID
			}
			if rel.PersonA != wantA || rel.PersonB != wantB {
				t.Errorf("direction not preserved: got A=%s B=%s", rel.PersonA, rel.PersonB)
			}
		})
	}
}

func TestResolveAll_CreatesMissingCounterpart(t *testing.T) {
	reg := newFakeRegistry()
	subject := reg.addPerson(&registry.Person{Token: "subject", Patient: true})

	bd := time.Date(1970, 2, 3, 0, 0, 0, 0, time.UTC)
	rr := NewRelationshipResolver(reg, "intake-processor")
	refs := []RelationshipRef{{
		TypeToken:        "parent",
		Role:             RoleA,
		CounterpartToken: "new-counterpart",
		SeedName:         "Jane Middle Doe",
		SeedGender:       "F",
		SeedBirthDate:    &bd,
	}}
	if err := rr.ResolveAll(context.Background(), subject, refs); err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}

	created := reg.byToken["new-counterpart"]
	if created == nil {
		t.Fatal("counterpart not created")
	}
	if created.Patient {
		t.Error("counterpart must not be promoted to patient")
	}
	if created.Gender != "F" || created.BirthDate == nil || !created.BirthDate.Equal(bd) {
		t.Errorf("seed demographics not applied: %+v", created)
	}
	if len(created.Names) != 1 {
		t.Fatalf("expected one seeded name, got %d", len(created.Names))
	}
	// name splits on the last space
	if created.Names[0].Given != "Jane Middle" || created.Names[0].Family != "Doe" {
		t.Errorf("seed name split wrong: %+v", created.Names[0])
	}
	if !created.Names[0].Preferred {
		t.Error("seeded name should be preferred")
	}
}

func TestResolveAll_ReusesExistingCounterpart(t *testing.T) {
	reg := newFakeRegistry()
	subject := reg.addPerson(&registry.Person{Token: "subject", Patient: true})
	existing := reg.addPerson(&registry.Person{Token: "known"})

	rr := NewRelationshipResolver(reg, "intake-processor")
	refs := []RelationshipRef{{TypeToken: "sibling", Role: RoleA, CounterpartToken: "known", SeedName: "Should Not Matter"}}
	if err := rr.ResolveAll(context.Background(), subject, refs); err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}

	if len(reg.relationships) != 1 || reg.relationships[0].PersonB != existing.ID {
		t.Errorf("existing counterpart not reused: %+v", reg.relationships)
	}
	if len(existing.Names) != 0 {
		t.Errorf("seed must not touch an existing counterpart: %+v", existing.Names)
	}
}

func TestResolveAll_UnknownType(t *testing.T) {
	reg := newFakeRegistry()
	subject := reg.addPerson(&registry.Person{Token: "subject", Patient: true})

	rr := NewRelationshipResolver(reg, "intake-processor")
	err := rr.ResolveAll(context.Background(), subject, []RelationshipRef{{TypeToken: "nonsense", Role: RoleA}})

	var popErr *PopulationError
	if !errors.As(err, &popErr) {
		t.Fatalf("expected PopulationError, got %v", err)
	}
	if len(reg.relationships) != 0 {
		t.Errorf("no relationship should be created on failure")
	}
}

func TestResolveAll_OneWordSeedName(t *testing.T) {
	reg := newFakeRegistry()
	subject := reg.addPerson(&registry.Person{Token: "subject", Patient: true})

	rr := NewRelationshipResolver(reg, "intake-processor")
	refs := []RelationshipRef{{TypeToken: "sibling", Role: RoleA, SeedName: "Madonna"}}
	if err := rr.ResolveAll(context.Background(), subject, refs); err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}

	var created *registry.Person
	for _, p := range reg.byID {
		if p.ID != subject.ID {
			created = p
		}
	}
	if created == nil {
		t.Fatal("counterpart not created")
	}
	if created.Names[0].Given != "Madonna" || created.Names[0].Family != "" {
		t.Errorf("one-word name should be the given name: %+v", created.Names[0])
	}
}
