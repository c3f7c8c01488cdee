package intake

import "time"

// Record is the canonical in-memory form of one parsed document. The
// parser guarantees that each preferred-capable collection (names,
// identifiers, addresses) carries exactly one preferred element when
// non-empty, before the populator ever sees it.
type Record struct {
	// Token is the subject's identity token. Empty is valid and means
	// "new, unidentified subject".
	Token string

	Gender             string
	BirthDate          *time.Time
	BirthdateEstimated bool
	Dead               bool
	DeathDate          *time.Time
	CauseOfDeathToken  string

	Names         []NameRec
	Identifiers   []IdentifierRec
	Addresses     []AddressRec
	Attributes    []AttributeRec
	Relationships []RelationshipRef

	// Clinical is the opaque clinical payload, passed through untouched
	// to the encounter subsystem.
	Clinical []byte
}

type NameRec struct {
	Given     string
	Middle    string
	Family    string
	Preferred bool
	Voided    bool
}

type IdentifierRec struct {
	TypeToken string
	Value     string
	Preferred bool
	Voided    bool
}

type AddressRec struct {
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
}

type AttributeRec struct {
	TypeToken string
	Value     string
	Voided    bool
}

// Role says which side of a relationship the document's subject occupies.
type Role string

const (
	RoleA Role = "A"
	RoleB Role = "B"
)

// RelationshipRef references a relationship to materialize. Direction is
// preserved exactly: the subject takes the declared role, the counterpart
// the other side, never swapped.
type RelationshipRef struct {
	TypeToken        string
	Role             Role
	CounterpartToken string
	// Seed demographics, used only when the counterpart must be created.
	SeedName      string
	SeedGender    string
	SeedBirthDate *time.Time
}
