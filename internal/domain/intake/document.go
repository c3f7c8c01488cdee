package intake

import "encoding/xml"

// Wire format of a remotely entered encounter form. Tag and attribute
// names are an external contract fixed by remote-site tooling; the parser
// preserves them bit-exact.

type encounterForm struct {
	XMLName  xml.Name      `xml:"encounterForm"`
	Patient  *patientBlock `xml:"patient"`
	Clinical *clinicalBlob `xml:"clinical"`
}

type patientBlock struct {
	UUID          string             `xml:"uuid,attr"`
	Gender        string             `xml:"gender"`
	BirthDate     *birthdateElem     `xml:"birthdate"`
	Death         *deathElem         `xml:"death"`
	Names         []nameElem         `xml:"name"`
	Identifiers   []identifierElem   `xml:"identifier"`
	Addresses     []addressElem      `xml:"address"`
	Attributes    []attributeElem    `xml:"attribute"`
	Relationships []relationshipElem `xml:"relationship"`
}

type birthdateElem struct {
	Estimated bool   `xml:"estimated,attr"`
	Value     string `xml:",chardata"`
}

type deathElem struct {
	Dead  bool   `xml:"dead,attr"`
	Date  string `xml:"date,attr"`
	Cause string `xml:"cause,attr"`
}

type nameElem struct {
	Preferred bool   `xml:"preferred,attr"`
	Voided    bool   `xml:"voided,attr"`
	Given     string `xml:"given"`
	Middle    string `xml:"middle"`
	Family    string `xml:"family"`
}

type identifierElem struct {
	Type      string `xml:"type,attr"`
	Preferred bool   `xml:"preferred,attr"`
	Voided    bool   `xml:"voided,attr"`
	Value     string `xml:",chardata"`
}

type addressElem struct {
	Preferred      bool   `xml:"preferred,attr"`
	Voided         bool   `xml:"voided,attr"`
	Address1       string `xml:"address1"`
	Address2       string `xml:"address2"`
	CityVillage    string `xml:"cityVillage"`
	StateProvince  string `xml:"stateProvince"`
	Country        string `xml:"country"`
	PostalCode     string `xml:"postalCode"`
	CountyDistrict string `xml:"countyDistrict"`
	Latitude       string `xml:"latitude"`
	Longitude      string `xml:"longitude"`
}

type attributeElem struct {
	Type   string `xml:"type,attr"`
	Voided bool   `xml:"voided,attr"`
	Value  string `xml:",chardata"`
}

type relationshipElem struct {
	Type      string `xml:"type,attr"`
	Role      string `xml:"role,attr"`   // "A" or "B": the role the subject plays
	Person    string `xml:"person,attr"` // counterpart identity token
	Name      string `xml:"name"`
	Gender    string `xml:"gender"`
	BirthDate string `xml:"birthdate"`
}

// clinicalBlob captures the clinical section byte-exact. The core never
// interprets it.
type clinicalBlob struct {
	Inner []byte `xml:",innerxml"`
}
