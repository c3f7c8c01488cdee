// Package registry models the central patient registry that remote
// submissions are reconciled into. A Person is matched by its globally
// unique identity token, never by name. Collection-typed fields (names,
// identifiers, addresses, attributes) are ordered slices with explicit
// preferred and voided flags per element, so "first is preferred" stays
// deterministic.
package registry

import (
	"time"

	"github.com/google/uuid"
)

// Person is a registry subject. A Person with Patient=true is a full
// patient record; Patient=false is a minimal person (e.g. a relationship
// counterpart that was never itself the subject of a submission).
type Person struct {
	ID                 uuid.UUID
	Token              string // identity token; empty until assigned
	Patient            bool
	Gender             string
	BirthDate          *time.Time
	BirthdateEstimated bool
	Dead               bool
	DeathDate          *time.Time
	CauseOfDeathToken  string

	Names       []Name
	Identifiers []Identifier
	Addresses   []Address
	Attributes  []Attribute

	Creator   string
	CreatedAt time.Time
}

// Name is one person name. Exactly one non-voided name on a person should
// be preferred at any time.
type Name struct {
	ID        uuid.UUID
	Given     string
	Middle    string
	Family    string
	Preferred bool
	Voided    bool
	Creator   string
	CreatedAt time.Time
}

// Identifier is one patient identifier with its type token.
type Identifier struct {
	ID        uuid.UUID
	TypeToken string
	Value     string
	Preferred bool
	Voided    bool
	Creator   string
	CreatedAt time.Time
}

// Address is one person address.
type Address struct {
	ID             uuid.UUID
	Address1       string
	Address2       string
	CityVillage    string
	StateProvince  string
	Country        string
	PostalCode     string
	CountyDistrict string
	Latitude       string
	Longitude      string
	Preferred      bool
	Voided         bool
	Creator        string
	CreatedAt      time.Time
}

// Attribute is one person attribute instance. Attributes are append-only:
// a new value is a new instance, the old one stays for history.
type Attribute struct {
	ID        uuid.UUID
	TypeToken string
	Value     string
	Voided    bool
	Creator   string
	CreatedAt time.Time
}

// Relationship links two persons directionally. PersonA and PersonB are
// never interchangeable; the type token defines what A is to B.
type Relationship struct {
	ID        uuid.UUID
	TypeToken string
	PersonA   uuid.UUID
	PersonB   uuid.UUID
	Creator   string
	CreatedAt time.Time
}

// Promote upgrades a minimal person into a full patient record in place,
// preserving its id.
func (p *Person) Promote() {
	p.Patient = true
}

// PreferredName returns the current preferred, non-voided name, or nil.
func (p *Person) PreferredName() *Name {
	for i := range p.Names {
		if p.Names[i].Preferred && !p.Names[i].Voided {
			return &p.Names[i]
		}
	}
	return nil
}

// PreferredIdentifier returns the current preferred, non-voided
// identifier, or nil.
func (p *Person) PreferredIdentifier() *Identifier {
	for i := range p.Identifiers {
		if p.Identifiers[i].Preferred && !p.Identifiers[i].Voided {
			return &p.Identifiers[i]
		}
	}
	return nil
}

// PreferredAddress returns the current preferred, non-voided address, or nil.
func (p *Person) PreferredAddress() *Address {
	for i := range p.Addresses {
		if p.Addresses[i].Preferred && !p.Addresses[i].Voided {
			return &p.Addresses[i]
		}
	}
	return nil
}
