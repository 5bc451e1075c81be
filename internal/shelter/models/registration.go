package models

import (
	"time"

	id "shelterops/pkg/domain"
)

type RegistrationStatus string

const (
	RegistrationPlanned    RegistrationStatus = "planned"
	RegistrationCheckedIn  RegistrationStatus = "checked_in"
	RegistrationCheckedOut RegistrationStatus = "checked_out"
)

func (s RegistrationStatus) IsValid() bool {
	switch s {
	case RegistrationPlanned, RegistrationCheckedIn, RegistrationCheckedOut:
		return true
	}
	return false
}

// Check-out reasons written by the engine.
const (
	ReasonSuperseded    = "superseded"
	ReasonAutoClosed    = "auto-closed"
	ReasonImportReplace = "import-replace"
)

// Registration records one stay of a client at a shelter. Check-out only
// changes Status, CheckOut and Reason; rows are never deleted.
type Registration struct {
	ID        id.RegistrationID  `json:"id"`
	ShelterID id.ShelterID       `json:"shelter_id"`
	PersonID  id.PersonID        `json:"person_id"`
	CheckIn   time.Time          `json:"check_in"`
	CheckOut  *time.Time         `json:"check_out,omitempty"`
	Status    RegistrationStatus `json:"status"`
	Reason    string             `json:"reason,omitempty"`
}

func (r *Registration) IsActive() bool {
	return r.Status == RegistrationCheckedIn
}

// ApplyCheckOut closes an active registration.
func (r *Registration) ApplyCheckOut(at time.Time, reason string) {
	r.Status = RegistrationCheckedOut
	r.CheckOut = &at
	r.Reason = reason
}

func (r *Registration) Clone() *Registration {
	if r == nil {
		return nil
	}
	cp := *r
	if r.CheckOut != nil {
		out := *r.CheckOut
		cp.CheckOut = &out
	}
	return &cp
}

// RegistrationFilter narrows ListRegistrations. Zero fields match everything.
type RegistrationFilter struct {
	ShelterID *id.ShelterID
	PersonID  *id.PersonID
	Statuses  []RegistrationStatus
}

func (f RegistrationFilter) Matches(r *Registration) bool {
	if f.ShelterID != nil && r.ShelterID != *f.ShelterID {
		return false
	}
	if f.PersonID != nil && r.PersonID != *f.PersonID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if r.Status == s {
			return true
		}
	}
	return false
}

// StaffAssignment posts a staff member to a shelter. At most one per staff.
type StaffAssignment struct {
	ID        id.AssignmentID `json:"id"`
	ShelterID id.ShelterID    `json:"shelter_id"`
	PersonID  id.PersonID     `json:"person_id"`
	CreatedAt time.Time       `json:"created_at"`
}
