package registry

import (
	"testing"

	"github.com/google/uuid"
)

func TestPromote_PreservesID(t *testing.T) {
	id := uuid.New()
	p := &Person{ID: id, Patient: false}

	p.Promote()

	if !p.Patient {
		t.Error("expected person to be a patient after promotion")
	}
	if p.ID != id {
		t.Errorf("promotion changed id: %s -> %s", id, p.ID)
	}
}

func TestPreferredName_SkipsVoided(t *testing.T) {
	p := &Person{Names: []Name{
		{Given: "Old", Preferred: true, Voided: true},
		{Given: "Current", Preferred: true},
		{Given: "Historic"},
	}}

	got := p.PreferredName()
	if got == nil || got.Given != "Current" {
		t.Errorf("expected the non-voided preferred name, got %+v", got)
	}
}

func TestPreferredHelpers_NilWhenNonePreferred(t *testing.T) {
	p := &Person{
		Names:       []Name{{Given: "A"}},
		Identifiers: []Identifier{{Value: "1"}},
		Addresses:   []Address{{Address1: "x"}},
	}

	if p.PreferredName() != nil {
		t.Error("expected nil preferred name")
	}
	if p.PreferredIdentifier() != nil {
		t.Error("expected nil preferred identifier")
	}
	if p.PreferredAddress() != nil {
		t.Error("expected nil preferred address")
	}
}

func TestPreferredIdentifier(t *testing.T) {
	p := &Person{Identifiers: []Identifier{
		{Value: "111", Preferred: false},
		{Value: "222", Preferred: true},
	}}

	got := p.PreferredIdentifier()
	if got == nil || got.Value != "222" {
		t.Errorf("expected identifier 222, got %+v", got)
	}
}
