package handler

import (
	"strings"
	"time"

	"shelterops/internal/shelter/directory"
	"shelterops/internal/shelter/models"
	"shelterops/internal/shelter/registration"
	id "shelterops/pkg/domain"
	dErrors "shelterops/pkg/domain-errors"
)

// CreateShelterRequest is the body of POST /shelter.
type CreateShelterRequest struct {
	Name      string            `json:"name" validate:"required,max=128"`
	Type      string            `json:"type" validate:"required,max=64"`
	ServiceID string            `json:"service_id" validate:"max=64"`
	Location  string            `json:"location" validate:"max=256"`
	Phone     string            `json:"phone" validate:"max=32"`
	Capacity  int               `json:"capacity" validate:"gte=0"`
	Status    string            `json:"status" validate:"max=32"`
	Tags      map[string]string `json:"tags" validate:"max=32,dive,keys,max=32,endkeys,max=256"`
}

func (r *CreateShelterRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if r.Status != "" {
		if _, err := models.ParseStatusRequest(r.Status); err != nil {
			return err
		}
	}
	return nil
}

func (r *CreateShelterRequest) Input() directory.CreateShelterInput {
	return directory.CreateShelterInput{
		Name:      r.Name,
		TypeName:  strings.TrimSpace(r.Type),
		ServiceID: r.ServiceID,
		Location:  r.Location,
		Phone:     r.Phone,
		Capacity:  r.Capacity,
		Tags:      r.Tags,
		Status:    models.Status(r.Status),
	}
}

// SetStatusRequest is the body of POST /shelter/{id}/status. Status accepts
// any concrete value or the generic "closed".
type SetStatusRequest struct {
	Status string `json:"status" validate:"required,max=32"`
}

func (r *SetStatusRequest) Validate() error {
	_, err := models.ParseStatusRequest(r.Status)
	return err
}

type AvailabilityRequest struct {
	Unavailable *bool `json:"unavailable" validate:"required"`
}

func (r *AvailabilityRequest) Validate() error { return nil }

// UpdateDetailsRequest edits descriptive fields; absent fields are unchanged
// and an empty tag value removes the tag.
type UpdateDetailsRequest struct {
	Name      *string           `json:"name" validate:"omitempty,max=128"`
	ServiceID *string           `json:"service_id" validate:"omitempty,max=64"`
	Location  *string           `json:"location" validate:"omitempty,max=256"`
	Phone     *string           `json:"phone" validate:"omitempty,max=32"`
	Capacity  *int              `json:"capacity" validate:"omitempty,gte=0"`
	Tags      map[string]string `json:"tags" validate:"max=32,dive,keys,max=32,endkeys,max=256"`
}

func (r *UpdateDetailsRequest) Validate() error {
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "name cannot be empty")
	}
	return nil
}

func (r *UpdateDetailsRequest) Update() models.ShelterDetailsUpdate {
	return models.ShelterDetailsUpdate{
		Name:      r.Name,
		ServiceID: r.ServiceID,
		Location:  r.Location,
		Phone:     r.Phone,
		Capacity:  r.Capacity,
		Tags:      r.Tags,
	}
}

// CheckInRequest is the body of POST /shelter/{id}/checkin.
// Kind, when given, must match the person's kind.
type CheckInRequest struct {
	PersonID string     `json:"person_id" validate:"required"`
	Kind     string     `json:"kind" validate:"omitempty,oneof=client staff"`
	Comment  string     `json:"comment" validate:"max=256"`
	CheckIn  *time.Time `json:"check_in"`

	parsedPersonID id.PersonID
}

func (r *CheckInRequest) Validate() error {
	personID, err := id.ParsePersonID(r.PersonID)
	if err != nil {
		return err
	}
	r.parsedPersonID = personID
	r.Kind = strings.ToLower(strings.TrimSpace(r.Kind))
	r.Comment = strings.TrimSpace(r.Comment)
	return nil
}

func (r *CheckInRequest) ParsedPersonID() id.PersonID { return r.parsedPersonID }

func (r *CheckInRequest) At() time.Time {
	if r.CheckIn == nil {
		return time.Time{}
	}
	return r.CheckIn.UTC()
}

func (r *CheckInRequest) Options() registration.CheckInOptions {
	return registration.CheckInOptions{At: r.At(), Kind: models.PersonKind(r.Kind), Comment: r.Comment}
}

// CheckOutRequest is the optional body of POST /shelter/{id}/checkout/{registration_id}.
type CheckOutRequest struct {
	Destination string `json:"destination" validate:"max=256"`
}

func (r *CheckOutRequest) Validate() error {
	r.Destination = strings.TrimSpace(r.Destination)
	return nil
}

type AddressRequest struct {
	Kind     string `json:"kind" validate:"omitempty,oneof=current permanent"`
	Street   string `json:"street" validate:"required,max=256"`
	Locality string `json:"locality" validate:"max=128"`
	Postcode string `json:"postcode" validate:"max=16"`
	Comments string `json:"comments" validate:"max=1024"`
}

type ContactRequest struct {
	Method    string `json:"method" validate:"required,max=32"`
	Value     string `json:"value" validate:"required,max=256"`
	Deletable bool   `json:"deletable"`
}

// CreatePersonRequest is the body of POST /person. DateOfBirth is yyyy-mm-dd.
type CreatePersonRequest struct {
	Kind           string           `json:"kind" validate:"omitempty,oneof=client staff next_of_kin"`
	ReferenceLabel string           `json:"reference_label" validate:"max=64"`
	FirstName      string           `json:"first_name" validate:"max=128"`
	MiddleName     string           `json:"middle_name" validate:"max=128"`
	LastName       string           `json:"last_name" validate:"max=128"`
	DateOfBirth    string           `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Gender         string           `json:"gender" validate:"max=32"`
	Comments       string           `json:"comments" validate:"max=4096"`
	Tags           []string         `json:"tags" validate:"max=64,dive,max=64"`
	Pets           bool             `json:"pets"`
	PetDetails     string           `json:"pet_details" validate:"max=1024"`
	Organisation   string           `json:"organisation" validate:"max=128"`
	Addresses      []AddressRequest `json:"addresses" validate:"max=2,dive"`
	Contacts       []ContactRequest `json:"contacts" validate:"max=16,dive"`

	parsedDOB *time.Time
}

func (r *CreatePersonRequest) Validate() error {
	if strings.TrimSpace(r.FirstName) == "" && strings.TrimSpace(r.LastName) == "" {
		return dErrors.New(dErrors.CodeValidation, "first_name or last_name is required")
	}
	if r.DateOfBirth != "" {
		dob, err := time.Parse(time.DateOnly, r.DateOfBirth)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeValidation, "date_of_birth must be yyyy-mm-dd")
		}
		r.parsedDOB = &dob
	}
	return nil
}

func (r *CreatePersonRequest) Input() directory.CreatePersonInput {
	in := directory.CreatePersonInput{
		Kind:           models.PersonKind(r.Kind),
		ReferenceLabel: r.ReferenceLabel,
		FirstName:      r.FirstName,
		MiddleName:     r.MiddleName,
		LastName:       r.LastName,
		DateOfBirth:    r.parsedDOB,
		Gender:         r.Gender,
		Comments:       r.Comments,
		Tags:           r.Tags,
		Pets:           r.Pets,
		PetDetails:     r.PetDetails,
		Organisation:   r.Organisation,
	}
	for _, a := range r.Addresses {
		in.Addresses = append(in.Addresses, directory.AddressInput{
			Kind:     models.AddressKind(a.Kind),
			Street:   a.Street,
			Locality: a.Locality,
			Postcode: a.Postcode,
			Comments: a.Comments,
		})
	}
	for _, c := range r.Contacts {
		in.Contacts = append(in.Contacts, directory.ContactInput{Method: c.Method, Value: c.Value, Deletable: c.Deletable})
	}
	return in
}

// NextOfKinRequest is the body of POST /person/{id}/next-of-kin: the new
// person's fields plus the relationship to the master.
type NextOfKinRequest struct {
	CreatePersonRequest
	Relationship string `json:"relationship" validate:"max=64"`
}

// HouseholdRequest is the body of POST /person/{id}/household; the path
// person is the primary.
type HouseholdRequest struct {
	MemberID string `json:"member_id" validate:"required"`

	parsedMemberID id.PersonID
}

func (r *HouseholdRequest) Validate() error {
	memberID, err := id.ParsePersonID(r.MemberID)
	if err != nil {
		return err
	}
	r.parsedMemberID = memberID
	return nil
}

func (r *HouseholdRequest) ParsedMemberID() id.PersonID { return r.parsedMemberID }

// parseStatuses reads ?status=checked_in,planned or repeated status params.
func parseStatuses(values []string) ([]models.RegistrationStatus, error) {
	var out []models.RegistrationStatus
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			s := models.RegistrationStatus(part)
			if !s.IsValid() {
				return nil, dErrors.New(dErrors.CodeBadRequest, "unknown registration status: "+part)
			}
			out = append(out, s)
		}
	}
	return out, nil
}
