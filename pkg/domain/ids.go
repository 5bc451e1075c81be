// Package domain holds the typed identifiers shared across packages.
//
// Each entity gets its own UUID-backed type so that a PersonID cannot be passed
// where a ShelterID is expected. Parse functions are the trust boundary for
// identifiers arriving over HTTP or from spreadsheets.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "shelterops/pkg/domain-errors"
)

type (
	ShelterID      uuid.UUID
	ShelterTypeID  uuid.UUID
	PersonID       uuid.UUID
	RegistrationID uuid.UUID
	AssignmentID   uuid.UUID
	AddressID      uuid.UUID
	ContactID      uuid.UUID
	TagID          uuid.UUID
	TaskID         uuid.UUID
	EntryID        uuid.UUID
)

func NewShelterID() ShelterID           { return ShelterID(uuid.New()) }
func NewShelterTypeID() ShelterTypeID   { return ShelterTypeID(uuid.New()) }
func NewPersonID() PersonID             { return PersonID(uuid.New()) }
func NewRegistrationID() RegistrationID { return RegistrationID(uuid.New()) }
func NewAssignmentID() AssignmentID     { return AssignmentID(uuid.New()) }
func NewAddressID() AddressID           { return AddressID(uuid.New()) }
func NewContactID() ContactID           { return ContactID(uuid.New()) }
func NewTagID() TagID                   { return TagID(uuid.New()) }
func NewTaskID() TaskID                 { return TaskID(uuid.New()) }
func NewEntryID() EntryID               { return EntryID(uuid.New()) }

func (id ShelterID) String() string      { return uuid.UUID(id).String() }
func (id ShelterTypeID) String() string  { return uuid.UUID(id).String() }
func (id PersonID) String() string       { return uuid.UUID(id).String() }
func (id RegistrationID) String() string { return uuid.UUID(id).String() }
func (id AssignmentID) String() string   { return uuid.UUID(id).String() }
func (id AddressID) String() string      { return uuid.UUID(id).String() }
func (id ContactID) String() string      { return uuid.UUID(id).String() }
func (id TagID) String() string          { return uuid.UUID(id).String() }
func (id TaskID) String() string         { return uuid.UUID(id).String() }
func (id EntryID) String() string        { return uuid.UUID(id).String() }

func (id ShelterID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ShelterTypeID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id PersonID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id TagID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }

// MarshalText lets typed IDs appear as plain strings in JSON bodies and map keys.
func (id ShelterID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }
func (id ShelterTypeID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }
func (id PersonID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }
func (id RegistrationID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id AssignmentID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id AddressID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }
func (id ContactID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }
func (id TagID) MarshalText() ([]byte, error)          { return []byte(id.String()), nil }
func (id TaskID) MarshalText() ([]byte, error)         { return []byte(id.String()), nil }
func (id EntryID) MarshalText() ([]byte, error)        { return []byte(id.String()), nil }

func (id *ShelterID) UnmarshalText(b []byte) error {
	parsed, err := ParseShelterID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ShelterTypeID) UnmarshalText(b []byte) error {
	parsed, err := ParseShelterTypeID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *PersonID) UnmarshalText(b []byte) error {
	parsed, err := ParsePersonID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// parseUUID rejects empty, malformed, and nil UUIDs.
func parseUUID(kind, s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" must not be nil")
	}
	return u, nil
}

func ParseShelterID(s string) (ShelterID, error) {
	u, err := parseUUID("shelter id", s)
	return ShelterID(u), err
}

func ParseShelterTypeID(s string) (ShelterTypeID, error) {
	u, err := parseUUID("shelter type id", s)
	return ShelterTypeID(u), err
}

func ParsePersonID(s string) (PersonID, error) {
	u, err := parseUUID("person id", s)
	return PersonID(u), err
}

func ParseRegistrationID(s string) (RegistrationID, error) {
	u, err := parseUUID("registration id", s)
	return RegistrationID(u), err
}

func ParseAssignmentID(s string) (AssignmentID, error) {
	u, err := parseUUID("assignment id", s)
	return AssignmentID(u), err
}

func ParseTagID(s string) (TagID, error) {
	u, err := parseUUID("tag id", s)
	return TagID(u), err
}

func ParseTaskID(s string) (TaskID, error) {
	u, err := parseUUID("task id", s)
	return TaskID(u), err
}
