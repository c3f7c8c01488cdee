package intake

import (
	"context"
	"fmt"

	"github.com/openclinic/intake/internal/domain/registry"
)

// OutcomeKind classifies an identity resolution.
type OutcomeKind int

const (
	// OutcomeNone: no token supplied, or the token matched nothing. The
	// caller creates a new patient.
	OutcomeNone OutcomeKind = iota
	// OutcomeExistingPatient: the token is already bound to a full
	// patient record; reuse it as-is.
	OutcomeExistingPatient
	// OutcomePromotePerson: the token matched a person that is not yet a
	// patient; promote it in place, preserving its id.
	OutcomePromotePerson
)

// Outcome is the result of resolving a document's identity token.
type Outcome struct {
	Kind    OutcomeKind
	Subject *registry.Person // nil for OutcomeNone
}

// Resolver matches identity tokens against the registry. Resolution is
// read-only and idempotent: the same token against an unchanged registry
// always reaches the same outcome.
type Resolver struct {
	registry registry.Repository
}

func NewResolver(reg registry.Repository) *Resolver {
	return &Resolver{registry: reg}
}

// Resolve looks the token up. An empty token never touches the registry.
func (r *Resolver) Resolve(ctx context.Context, token string) (Outcome, error) {
	if token == "" {
		return Outcome{Kind: OutcomeNone}, nil
	}

	subject, err := r.registry.FindByToken(ctx, token)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve token %q: %w", token, err)
	}
	if subject == nil {
		return Outcome{Kind: OutcomeNone}, nil
	}
	if subject.Patient {
		return Outcome{Kind: OutcomeExistingPatient, Subject: subject}, nil
	}
	return Outcome{Kind: OutcomePromotePerson, Subject: subject}, nil
}
