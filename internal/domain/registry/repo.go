package registry

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the registry collaborator consumed by the intake pipeline.
// Lookup is by identity token only; Save assigns an id on first save. The
// token column carries a uniqueness constraint, so two concurrent saves of
// the same new token surface as a constraint violation from Save.
type Repository interface {
	// FindByToken returns the person bound to token, or (nil, nil) when no
	// person matches.
	FindByToken(ctx context.Context, token string) (*Person, error)
	// Save persists the person and its collections, assigning IDs to the
	// person and any new sub-entities.
	Save(ctx context.Context, p *Person) (*Person, error)
	// CreateRelationship materializes a directional relationship. The
	// store's uniqueness constraint on (type, person_a, person_b) rejects
	// duplicates.
	CreateRelationship(ctx context.Context, typeToken string, personA, personB uuid.UUID) error
	// RelationshipsOf lists relationships where the person appears on
	// either side.
	RelationshipsOf(ctx context.Context, personID uuid.UUID) ([]Relationship, error)

	IdentifierTypeExists(ctx context.Context, typeToken string) (bool, error)
	AttributeTypeExists(ctx context.Context, typeToken string) (bool, error)
	RelationshipTypeExists(ctx context.Context, typeToken string) (bool, error)
}

// SettingsRepository is the configuration collaborator: an ordered list of
// encounter-type tokens that count as "initial" visits. Read by the
// encounter subsystem, written by admin tooling.
type SettingsRepository interface {
	InitialEncounterTypes(ctx context.Context) ([]string, error)
	SetInitialEncounterTypes(ctx context.Context, typeTokens []string) error
}
