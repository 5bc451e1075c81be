package models

import (
	"strings"
	"time"

	id "shelterops/pkg/domain"
	dErrors "shelterops/pkg/domain-errors"
)

type PersonKind string

const (
	PersonKindClient    PersonKind = "client"
	PersonKindStaff     PersonKind = "staff"
	PersonKindNextOfKin PersonKind = "next_of_kin"
)

func (k PersonKind) IsValid() bool {
	switch k {
	case PersonKindClient, PersonKindStaff, PersonKindNextOfKin:
		return true
	}
	return false
}

// AnonymisedName replaces every name part of an anonymised person.
const AnonymisedName = "-"

// Person is a client, staff member or next-of-kin record.
//
// Invariants:
//   - A person whose first or last name is AnonymisedName is anonymised and
//     never appears in operational listings
//   - Organisation and CurrentShelterID are only meaningful for staff
type Person struct {
	ID               id.PersonID   `json:"id"`
	Kind             PersonKind    `json:"kind"`
	ReferenceLabel   string        `json:"reference_label,omitempty"`
	FirstName        string        `json:"first_name"`
	MiddleName       string        `json:"middle_name,omitempty"`
	LastName         string        `json:"last_name"`
	DateOfBirth      *time.Time    `json:"date_of_birth,omitempty"`
	Gender           string        `json:"gender,omitempty"`
	Comments         string        `json:"comments,omitempty"`
	Tags             []string      `json:"tags,omitempty"`
	Pets             bool          `json:"pets"`
	PetDetails       string        `json:"pet_details,omitempty"`
	Organisation     string        `json:"organisation,omitempty"`
	CurrentShelterID *id.ShelterID `json:"current_shelter_id,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

func NewPerson(personID id.PersonID, kind PersonKind, first, last string, now time.Time) (*Person, error) {
	if !kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown person kind: "+string(kind))
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)
	if first == "" && last == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "first or last name is required")
	}
	return &Person{
		ID:        personID,
		Kind:      kind,
		FirstName: first,
		LastName:  last,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (p *Person) IsAnonymised() bool {
	return p.FirstName == AnonymisedName || p.LastName == AnonymisedName
}

func (p *Person) IsClient() bool { return p.Kind == PersonKindClient }
func (p *Person) IsStaff() bool  { return p.Kind == PersonKindStaff }

// DisplayName renders "Last, First" for rosters and log exports.
func (p *Person) DisplayName() string {
	switch {
	case p.LastName == "":
		return p.FirstName
	case p.FirstName == "":
		return p.LastName
	}
	return p.LastName + ", " + p.FirstName
}

// Anonymise strips identifying data from the person record itself. Related
// rows (contacts, addresses, next-of-kin) are handled by the retention workflow.
func (p *Person) Anonymise(now time.Time) {
	p.FirstName = AnonymisedName
	p.MiddleName = AnonymisedName
	p.LastName = AnonymisedName
	p.ReferenceLabel = ""
	if p.DateOfBirth != nil {
		dob := time.Date(p.DateOfBirth.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		p.DateOfBirth = &dob
	}
	p.Comments = ""
	p.Tags = nil
	p.PetDetails = ""
	p.UpdatedAt = now
}

func (p *Person) Clone() *Person {
	if p == nil {
		return nil
	}
	cp := *p
	if p.DateOfBirth != nil {
		dob := *p.DateOfBirth
		cp.DateOfBirth = &dob
	}
	if p.CurrentShelterID != nil {
		sid := *p.CurrentShelterID
		cp.CurrentShelterID = &sid
	}
	if p.Tags != nil {
		cp.Tags = append([]string(nil), p.Tags...)
	}
	return &cp
}

type AddressKind string

const (
	AddressCurrent   AddressKind = "current"
	AddressPermanent AddressKind = "permanent"
)

type Address struct {
	ID       id.AddressID `json:"id"`
	PersonID id.PersonID  `json:"person_id"`
	Kind     AddressKind  `json:"kind"`
	Street   string       `json:"street"`
	Locality string       `json:"locality,omitempty"`
	Postcode string       `json:"postcode,omitempty"`
	Comments string       `json:"comments,omitempty"`
}

// Anonymise replaces the street with the sentinel, reduces the postcode to its
// outward code and clears comments. The locality stays so reports can still
// group by area.
func (a *Address) Anonymise() {
	a.Street = AnonymisedName
	a.Postcode = OutwardCode(a.Postcode)
	a.Comments = ""
}

// OutwardCode returns the part of a UK style postcode before the space, or the
// whole value minus its last three characters when there is no space.
func OutwardCode(postcode string) string {
	pc := strings.ToUpper(strings.TrimSpace(postcode))
	if pc == "" {
		return ""
	}
	if idx := strings.IndexByte(pc, ' '); idx > 0 {
		return pc[:idx]
	}
	if len(pc) > 4 {
		return pc[:len(pc)-3]
	}
	return pc
}

type Contact struct {
	ID        id.ContactID `json:"id"`
	PersonID  id.PersonID  `json:"person_id"`
	Method    string       `json:"method"`
	Value     string       `json:"value"`
	Deletable bool         `json:"deletable"`
}

// NextOfKinLink is directed from the master person to the next-of-kin record.
type NextOfKinLink struct {
	PersonID     id.PersonID `json:"person_id"`
	NextOfKinID  id.PersonID `json:"next_of_kin_id"`
	Relationship string      `json:"relationship,omitempty"`
}
