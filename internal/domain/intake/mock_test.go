package intake

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/openclinic/intake/internal/domain/registry"
)

// -- Fake registry --

type fakeRegistry struct {
	mu      sync.Mutex
	byToken map[string]*registry.Person
	byID    map[uuid.UUID]*registry.Person

	identifierTypes   map[string]bool
	attributeTypes    map[string]bool
	relationshipTypes map[string]bool

	relationships []registry.Relationship

	saveErr error // injected failure for the next Save
	// calls records registry activity in order, for order-sensitive tests
	calls []string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		byToken:           make(map[string]*registry.Person),
		byID:              make(map[uuid.UUID]*registry.Person),
		identifierTypes:   map[string]bool{"MRN": true, "NAT-ID": true},
		attributeTypes:    map[string]bool{"CIVIL-STATUS": true, "PHONE": true},
		relationshipTypes: map[string]bool{"sibling": true, "parent": true},
	}
}

func (f *fakeRegistry) addPerson(p *registry.Person) *registry.Person {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	f.byID[p.ID] = p
	if p.Token != "" {
		f.byToken[p.Token] = p
	}
	return p
}

func (f *fakeRegistry) FindByToken(_ context.Context, token string) (*registry.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "find:"+token)
	if token == "" {
		return nil, nil
	}
	return f.byToken[token], nil
}

func (f *fakeRegistry) Save(_ context.Context, p *registry.Person) (*registry.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.saveErr != nil {
		err := f.saveErr
		f.saveErr = nil
		return nil, err
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	for i := range p.Names {
		if p.Names[i].ID == uuid.Nil {
			p.Names[i].ID = uuid.New()
		}
	}
	for i := range p.Identifiers {
		if p.Identifiers[i].ID == uuid.Nil {
			p.Identifiers[i].ID = uuid.New()
		}
	}
	for i := range p.Addresses {
		if p.Addresses[i].ID == uuid.Nil {
			p.Addresses[i].ID = uuid.New()
		}
	}
	for i := range p.Attributes {
		if p.Attributes[i].ID == uuid.Nil {
			p.Attributes[i].ID = uuid.New()
		}
	}

	f.byID[p.ID] = p
	if p.Token != "" {
		f.byToken[p.Token] = p
	}
	f.calls = append(f.calls, "save:"+p.Token)
	return p, nil
}

func (f *fakeRegistry) CreateRelationship(_ context.Context, typeToken string, personA, personB uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relationships = append(f.relationships, registry.Relationship{
		ID:        uuid.New(),
		TypeToken: typeToken,
		PersonA:   personA,
		PersonB:   personB,
	})
	f.calls = append(f.calls, "relate:"+typeToken)
	return nil
}

func (f *fakeRegistry) RelationshipsOf(_ context.Context, personID uuid.UUID) ([]registry.Relationship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []registry.Relationship
	for _, rel := range f.relationships {
		if rel.PersonA == personID || rel.PersonB == personID {
			out = append(out, rel)
		}
	}
	return out, nil
}

func (f *fakeRegistry) IdentifierTypeExists(_ context.Context, typeToken string) (bool, error) {
	return f.identifierTypes[typeToken], nil
}

func (f *fakeRegistry) AttributeTypeExists(_ context.Context, typeToken string) (bool, error) {
	return f.attributeTypes[typeToken], nil
}

func (f *fakeRegistry) RelationshipTypeExists(_ context.Context, typeToken string) (bool, error) {
	return f.relationshipTypes[typeToken], nil
}

// -- Fake ingestor --

type fakeIngestor struct {
	mu       sync.Mutex
	err      error
	ingested []ingestedCall
}

type ingestedCall struct {
	subjectID uuid.UUID
	token     string
	clinical  string
}

func (f *fakeIngestor) Ingest(_ context.Context, subject *registry.Person, clinical []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if subject == nil {
		return fmt.Errorf("nil subject")
	}
	f.ingested = append(f.ingested, ingestedCall{
		subjectID: subject.ID,
		token:     subject.Token,
		clinical:  string(clinical),
	})
	return nil
}
