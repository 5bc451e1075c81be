package models

import (
	"strings"
	"time"

	id "shelterops/pkg/domain"
	dErrors "shelterops/pkg/domain-errors"
)

const (
	TypeNominated = "Nominated"
	TypeCommunity = "Community"
)

// ShelterType drives which closed status is legal for a shelter.
type ShelterType struct {
	ID   id.ShelterTypeID `json:"id"`
	Name string           `json:"name"`
}

// Well-known shelter tag keys. Other keys are accepted as free-form tags.
const (
	TagPurpose    = "purpose"
	TagPlanRef    = "plan_ref"
	TagStreetview = "streetview"
	TagUPRN       = "uprn"
	TagRedBag     = "red_bag"
	TagWifi       = "wifi"
	TagCatering   = "catering"
)

// Shelter is an emergency assistance centre. Status and Population form the
// shelter details and live on the same row.
//
// Invariants:
//   - Name is unique across shelters, compared case-insensitively
//   - Population equals the number of checked-in registrations at the shelter
//   - A closed status matches the shelter type (Nominated/Community)
//   - An unavailable shelter never has an open status
type Shelter struct {
	ID          id.ShelterID      `json:"id"`
	Name        string            `json:"name"`
	TypeID      id.ShelterTypeID  `json:"type_id"`
	ServiceID   string            `json:"service_id,omitempty"`
	Location    string            `json:"location,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	Capacity    int               `json:"capacity"`
	Unavailable bool              `json:"unavailable"`
	Tags        map[string]string `json:"tags,omitempty"`
	Status      Status            `json:"status"`
	Population  int               `json:"population"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewShelter validates and constructs a shelter in the default open status.
func NewShelter(shelterID id.ShelterID, name string, typeID id.ShelterTypeID, now time.Time) (*Shelter, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "shelter name cannot be empty")
	}
	if len(name) > 128 {
		return nil, dErrors.New(dErrors.CodeValidation, "shelter name must be 128 characters or less")
	}
	return &Shelter{
		ID:        shelterID,
		Name:      name,
		TypeID:    typeID,
		Tags:      map[string]string{},
		Status:    DefaultStatus,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *Shelter) IsClosed() bool { return s.Status.IsClosed() }

// CanOpen reports whether an open status may be applied.
func (s *Shelter) CanOpen() error {
	if s.Unavailable {
		return dErrors.New(dErrors.CodeUnavailable, "shelter is marked unavailable")
	}
	return nil
}

// CanMarkUnavailable requires a closed shelter.
func (s *Shelter) CanMarkUnavailable() error {
	if !s.IsClosed() {
		return dErrors.New(dErrors.CodeShelterOpen, "shelter must be closed before it is marked unavailable")
	}
	return nil
}

// NameKey is the case-insensitive uniqueness key.
func (s *Shelter) NameKey() string {
	return NameKey(s.Name)
}

func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Clone returns a deep copy.
func (s *Shelter) Clone() *Shelter {
	if s == nil {
		return nil
	}
	cp := *s
	if s.Tags != nil {
		cp.Tags = make(map[string]string, len(s.Tags))
		for k, v := range s.Tags {
			cp.Tags[k] = v
		}
	}
	return &cp
}

// ShelterDetailsUpdate carries optional edits to descriptive shelter fields.
// Nil fields are left untouched.
type ShelterDetailsUpdate struct {
	Name      *string
	ServiceID *string
	Location  *string
	Phone     *string
	Capacity  *int
	Tags      map[string]string
}

// Apply mutates s and returns the names of the fields that changed.
func (u ShelterDetailsUpdate) Apply(s *Shelter) ([]string, error) {
	var changed []string
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "shelter name cannot be empty")
		}
		if name != s.Name {
			s.Name = name
			changed = append(changed, "name")
		}
	}
	if u.ServiceID != nil && *u.ServiceID != s.ServiceID {
		s.ServiceID = *u.ServiceID
		changed = append(changed, "service")
	}
	if u.Location != nil && *u.Location != s.Location {
		s.Location = *u.Location
		changed = append(changed, "location")
	}
	if u.Phone != nil && *u.Phone != s.Phone {
		s.Phone = *u.Phone
		changed = append(changed, "phone")
	}
	if u.Capacity != nil {
		if *u.Capacity < 0 {
			return nil, dErrors.New(dErrors.CodeValidation, "capacity cannot be negative")
		}
		if *u.Capacity != s.Capacity {
			s.Capacity = *u.Capacity
			changed = append(changed, "capacity")
		}
	}
	for k, v := range u.Tags {
		if s.Tags == nil {
			s.Tags = map[string]string{}
		}
		if v == "" {
			if _, ok := s.Tags[k]; ok {
				delete(s.Tags, k)
				changed = append(changed, "tag:"+k)
			}
			continue
		}
		if s.Tags[k] != v {
			s.Tags[k] = v
			changed = append(changed, "tag:"+k)
		}
	}
	return changed, nil
}
