package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/openclinic/intake/internal/domain/registry"
)

// Populator merges a canonical record into a subject entity. The merge is
// append-only: record collections extend the subject's collections, they
// never replace them. Scalars are set only when the record supplies a
// non-empty value.
type Populator struct {
	registry registry.Repository
	actor    string
	now      func() time.Time
}

func NewPopulator(reg registry.Repository, actor string) *Populator {
	return &Populator{registry: reg, actor: actor, now: time.Now}
}

// Populate mutates subject in place. The first underlying failure (e.g.
// an identifier type token unknown to the registry) aborts with a
// PopulationError; the caller discards the scratch subject on error, so
// partial mutation is never visible.
func (p *Populator) Populate(ctx context.Context, subject *registry.Person, rec *Record) error {
	now := p.now().UTC()

	if rec.Gender != "" {
		subject.Gender = rec.Gender
	}
	if rec.BirthDate != nil {
		subject.BirthDate = rec.BirthDate
		subject.BirthdateEstimated = rec.BirthdateEstimated
	}
	if rec.Dead {
		subject.Dead = true
		if rec.DeathDate != nil {
			subject.DeathDate = rec.DeathDate
		}
		if rec.CauseOfDeathToken != "" {
			subject.CauseOfDeathToken = rec.CauseOfDeathToken
		}
	}

	// When the record carries a preferred item of a type, it wins:
	// existing preferred items of that type are demoted before appending.
	if hasPreferredName(rec) {
		for i := range subject.Names {
			subject.Names[i].Preferred = false
		}
	}
	for _, n := range rec.Names {
		subject.Names = append(subject.Names, registry.Name{
			Given:     n.Given,
			Middle:    n.Middle,
			Family:    n.Family,
			Preferred: n.Preferred,
			Voided:    n.Voided,
			Creator:   p.actor,
			CreatedAt: now,
		})
	}

	if hasPreferredIdentifier(rec) {
		for i := range subject.Identifiers {
			subject.Identifiers[i].Preferred = false
		}
	}
	for _, ident := range rec.Identifiers {
		if ident.TypeToken == "" {
			return populationErr("identifier without a type token", nil)
		}
		ok, err := p.registry.IdentifierTypeExists(ctx, ident.TypeToken)
		if err != nil {
			return populationErr(fmt.Sprintf("looking up identifier type %q", ident.TypeToken), err)
		}
		if !ok {
			return populationErr(fmt.Sprintf("unknown identifier type %q", ident.TypeToken), nil)
		}
		subject.Identifiers = append(subject.Identifiers, registry.Identifier{
			TypeToken: ident.TypeToken,
			Value:     ident.Value,
			Preferred: ident.Preferred,
			Voided:    ident.Voided,
			Creator:   p.actor,
			CreatedAt: now,
		})
	}

	if hasPreferredAddress(rec) {
		for i := range subject.Addresses {
			subject.Addresses[i].Preferred = false
		}
	}
	for _, a := range rec.Addresses {
		subject.Addresses = append(subject.Addresses, registry.Address{
			Address1:       a.Address1,
			Address2:       a.Address2,
			CityVillage:    a.CityVillage,
			StateProvince:  a.StateProvince,
			Country:        a.Country,
			PostalCode:     a.PostalCode,
			CountyDistrict: a.CountyDistrict,
			Latitude:       a.Latitude,
			Longitude:      a.Longitude,
			Preferred:      a.Preferred,
			Voided:         a.Voided,
			Creator:        p.actor,
			CreatedAt:      now,
		})
	}

	// Attributes are append-only history: always new instances, voided
	// status preserved as given.
	for _, at := range rec.Attributes {
		ok, err := p.registry.AttributeTypeExists(ctx, at.TypeToken)
		if err != nil {
			return populationErr(fmt.Sprintf("looking up attribute type %q", at.TypeToken), err)
		}
		if !ok {
			return populationErr(fmt.Sprintf("unknown attribute type %q", at.TypeToken), nil)
		}
		subject.Attributes = append(subject.Attributes, registry.Attribute{
			TypeToken: at.TypeToken,
			Value:     at.Value,
			Voided:    at.Voided,
			Creator:   p.actor,
			CreatedAt: now,
		})
	}

	return nil
}

func hasPreferredName(rec *Record) bool {
	for _, n := range rec.Names {
		if n.Preferred {
			return true
		}
	}
	return false
}

func hasPreferredIdentifier(rec *Record) bool {
	for _, ident := range rec.Identifiers {
		if ident.Preferred {
			return true
		}
	}
	return false
}

func hasPreferredAddress(rec *Record) bool {
	for _, a := range rec.Addresses {
		if a.Preferred {
			return true
		}
	}
	return false
}
