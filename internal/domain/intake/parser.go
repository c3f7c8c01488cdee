package intake

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the single fixed date pattern used throughout submitted
// documents (month/day/year). A date that does not parse under it fails
// the whole parse; nothing defaults silently.
const DateLayout = "01/02/2006"

// Parser converts raw documents into canonical records. It holds no
// mutable state and is safe for concurrent use.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse reads a submitted encounter form. A missing identity token is
// valid; a missing root or patient block is not.
func (p *Parser) Parse(raw []byte) (*Record, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, malformed("document is empty", nil)
	}

	var doc encounterForm
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return nil, malformed("invalid XML", err)
	}
	if doc.Patient == nil {
		return nil, malformed("missing patient block", nil)
	}

	rec := &Record{
		Token:  strings.TrimSpace(doc.Patient.UUID),
		Gender: strings.TrimSpace(doc.Patient.Gender),
	}

	if bd := doc.Patient.BirthDate; bd != nil && strings.TrimSpace(bd.Value) != "" {
		t, err := parseDate(bd.Value)
		if err != nil {
			return nil, err
		}
		rec.BirthDate = &t
		rec.BirthdateEstimated = bd.Estimated
	}

	if d := doc.Patient.Death; d != nil {
		rec.Dead = d.Dead
		rec.CauseOfDeathToken = strings.TrimSpace(d.Cause)
		if strings.TrimSpace(d.Date) != "" {
			t, err := parseDate(d.Date)
			if err != nil {
				return nil, err
			}
			rec.DeathDate = &t
		}
	}

	for _, n := range doc.Patient.Names {
		rec.Names = append(rec.Names, NameRec{
			Given:     strings.TrimSpace(n.Given),
			Middle:    strings.TrimSpace(n.Middle),
			Family:    strings.TrimSpace(n.Family),
			Preferred: n.Preferred,
			Voided:    n.Voided,
		})
	}
	for _, ident := range doc.Patient.Identifiers {
		rec.Identifiers = append(rec.Identifiers, IdentifierRec{
			TypeToken: strings.TrimSpace(ident.Type),
			Value:     strings.TrimSpace(ident.Value),
			Preferred: ident.Preferred,
			Voided:    ident.Voided,
		})
	}
	for _, a := range doc.Patient.Addresses {
		rec.Addresses = append(rec.Addresses, AddressRec{
			Address1:       strings.TrimSpace(a.Address1),
			Address2:       strings.TrimSpace(a.Address2),
			CityVillage:    strings.TrimSpace(a.CityVillage),
			StateProvince:  strings.TrimSpace(a.StateProvince),
			Country:        strings.TrimSpace(a.Country),
			PostalCode:     strings.TrimSpace(a.PostalCode),
			CountyDistrict: strings.TrimSpace(a.CountyDistrict),
			Latitude:       strings.TrimSpace(a.Latitude),
			Longitude:      strings.TrimSpace(a.Longitude),
			Preferred:      a.Preferred,
			Voided:         a.Voided,
		})
	}
	for _, at := range doc.Patient.Attributes {
		if strings.TrimSpace(at.Type) == "" {
			return nil, malformed("attribute without a type token", nil)
		}
		rec.Attributes = append(rec.Attributes, AttributeRec{
			TypeToken: strings.TrimSpace(at.Type),
			Value:     strings.TrimSpace(at.Value),
			Voided:    at.Voided,
		})
	}

	for _, rel := range doc.Patient.Relationships {
		ref, err := parseRelationship(rel)
		if err != nil {
			return nil, err
		}
		rec.Relationships = append(rec.Relationships, ref)
	}

	if doc.Clinical != nil {
		rec.Clinical = bytes.Clone(doc.Clinical.Inner)
	}

	normalizePreferred(rec)
	return rec, nil
}

func parseRelationship(rel relationshipElem) (RelationshipRef, error) {
	ref := RelationshipRef{
		TypeToken:        strings.TrimSpace(rel.Type),
		CounterpartToken: strings.TrimSpace(rel.Person),
		SeedName:         strings.TrimSpace(rel.Name),
		SeedGender:       strings.TrimSpace(rel.Gender),
	}
	if ref.TypeToken == "" {
		return ref, malformed("relationship without a type token", nil)
	}

	switch Role(strings.TrimSpace(rel.Role)) {
	case RoleA:
		ref.Role = RoleA
	case RoleB:
		ref.Role = RoleB
	default:
		return ref, malformed(fmt.Sprintf("relationship role %q is not A or B", rel.Role), nil)
	}

	if strings.TrimSpace(rel.BirthDate) != "" {
		t, err := parseDate(rel.BirthDate)
		if err != nil {
			return ref, err
		}
		ref.SeedBirthDate = &t
	}
	return ref, nil
}

// normalizePreferred establishes the exactly-one-preferred invariant per
// collection type. Documented policy: when the document marks none
// preferred, the first encountered becomes preferred; when it marks
// several, the first flagged wins.
func normalizePreferred(rec *Record) {
	if len(rec.Names) > 0 {
		idx := -1
		for i := range rec.Names {
			if rec.Names[i].Preferred {
				idx = i
				break
			}
		}
		if idx < 0 {
			idx = 0
		}
		for i := range rec.Names {
			rec.Names[i].Preferred = i == idx
		}
	}

	if len(rec.Identifiers) > 0 {
		idx := -1
		for i := range rec.Identifiers {
			if rec.Identifiers[i].Preferred {
				idx = i
				break
			}
		}
		if idx < 0 {
			idx = 0
		}
		for i := range rec.Identifiers {
			rec.Identifiers[i].Preferred = i == idx
		}
	}

	if len(rec.Addresses) > 0 {
		idx := -1
		for i := range rec.Addresses {
			if rec.Addresses[i].Preferred {
				idx = i
				break
			}
		}
		if idx < 0 {
			idx = 0
		}
		for i := range rec.Addresses {
			rec.Addresses[i].Preferred = i == idx
		}
	}
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, malformed(fmt.Sprintf("date %q does not match %s", strings.TrimSpace(s), DateLayout), err)
	}
	return t, nil
}
