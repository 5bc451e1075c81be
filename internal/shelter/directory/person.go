package directory

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"shelterops/internal/platform/tracing"
	"shelterops/internal/shelter/models"
	"shelterops/internal/shelter/storeerr"
	"shelterops/internal/store"
	id "shelterops/pkg/domain"
	dErrors "shelterops/pkg/domain-errors"
	textutil "shelterops/pkg/platform/strings"
	"shelterops/pkg/requestcontext"
)

// CreatePersonInput describes a new person with optional addresses and
// contacts. Kind defaults to client.
type CreatePersonInput struct {
	Kind           models.PersonKind
	ReferenceLabel string
	FirstName      string
	MiddleName     string
	LastName       string
	DateOfBirth    *time.Time
	Gender         string
	Comments       string
	Tags           []string
	Pets           bool
	PetDetails     string
	Organisation   string
	Addresses      []AddressInput
	Contacts       []ContactInput
}

type AddressInput struct {
	Kind     models.AddressKind
	Street   string
	Locality string
	Postcode string
	Comments string
}

type ContactInput struct {
	Method    string
	Value     string
	Deletable bool
}

// PersonView is a person with the rows hanging off it.
type PersonView struct {
	*models.Person
	Addresses []*models.Address       `json:"addresses"`
	Contacts  []*models.Contact       `json:"contacts"`
	NextOfKin []*models.NextOfKinLink `json:"next_of_kin"`
	Active    []*models.Registration  `json:"active_registrations"`
	Staff     *models.StaffAssignment `json:"staff_assignment,omitempty"`
}

func (d *Directory) CreatePerson(ctx context.Context, in CreatePersonInput) (_ *models.Person, err error) {
	ctx, end := tracing.Start(ctx, "directory", "CreatePerson", attribute.String("person.kind", string(in.Kind)))
	defer end(&err)

	var p *models.Person
	err = d.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		p, err = d.insertPerson(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, storeerr.Wrap(err, "person", "failed to create person")
	}
	d.logger.InfoContext(ctx, "person created", "person_id", p.ID.String(), "kind", string(p.Kind))
	return p, nil
}

func (d *Directory) insertPerson(ctx context.Context, tx store.Tx, in CreatePersonInput) (*models.Person, error) {
	kind := in.Kind
	if kind == "" {
		kind = models.PersonKindClient
	}
	p, err := models.NewPerson(id.NewPersonID(), kind, in.FirstName, in.LastName, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if p.IsAnonymised() {
		return nil, dErrors.New(dErrors.CodeValidation, "name cannot be "+models.AnonymisedName)
	}
	p.ReferenceLabel = strings.TrimSpace(in.ReferenceLabel)
	p.MiddleName = strings.TrimSpace(in.MiddleName)
	p.DateOfBirth = in.DateOfBirth
	p.Gender = in.Gender
	p.Comments = in.Comments
	p.Tags = textutil.NormalizeTags(in.Tags)
	p.Pets = in.Pets
	p.PetDetails = in.PetDetails
	if p.IsStaff() {
		p.Organisation = strings.TrimSpace(in.Organisation)
	}
	if err := tx.InsertPerson(ctx, p); err != nil {
		return nil, err
	}

	seen := map[models.AddressKind]bool{}
	for _, a := range in.Addresses {
		kind := a.Kind
		if kind == "" {
			kind = models.AddressCurrent
		}
		if kind != models.AddressCurrent && kind != models.AddressPermanent {
			return nil, dErrors.New(dErrors.CodeValidation, "unknown address kind: "+string(kind))
		}
		if seen[kind] {
			return nil, dErrors.New(dErrors.CodeValidation, "duplicate "+string(kind)+" address")
		}
		seen[kind] = true
		err := tx.UpsertAddress(ctx, &models.Address{
			ID:       id.NewAddressID(),
			PersonID: p.ID,
			Kind:     kind,
			Street:   strings.TrimSpace(a.Street),
			Locality: strings.TrimSpace(a.Locality),
			Postcode: strings.ToUpper(strings.TrimSpace(a.Postcode)),
			Comments: a.Comments,
		})
		if err != nil {
			return nil, err
		}
	}
	for _, c := range in.Contacts {
		if strings.TrimSpace(c.Method) == "" || strings.TrimSpace(c.Value) == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "contact method and value are required")
		}
		err := tx.InsertContact(ctx, &models.Contact{
			ID:        id.NewContactID(),
			PersonID:  p.ID,
			Method:    strings.TrimSpace(c.Method),
			Value:     strings.TrimSpace(c.Value),
			Deletable: c.Deletable,
		})
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (d *Directory) GetPerson(ctx context.Context, personID id.PersonID) (*PersonView, error) {
	var view *PersonView
	err := d.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.GetPerson(ctx, personID)
		if err != nil {
			return err
		}
		view = &PersonView{Person: p}
		if view.Addresses, err = tx.ListAddresses(ctx, personID); err != nil {
			return err
		}
		if view.Contacts, err = tx.ListContacts(ctx, personID); err != nil {
			return err
		}
		if view.NextOfKin, err = tx.ListNextOfKin(ctx, personID); err != nil {
			return err
		}
		if view.Active, err = tx.ListRegistrations(ctx, models.RegistrationFilter{
			PersonID: &personID,
			Statuses: []models.RegistrationStatus{models.RegistrationCheckedIn},
		}); err != nil {
			return err
		}
		if p.IsStaff() {
			a, err := tx.FindStaffAssignmentByPerson(ctx, personID)
			switch {
			case err == nil:
				view.Staff = a
			case !storeerr.IsNotFound(err):
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeerr.Wrap(err, "person", "failed to load person")
	}
	return view, nil
}

// AddNextOfKin creates a next-of-kin person and links it to the master
// person. The master must not itself be a next-of-kin record.
func (d *Directory) AddNextOfKin(ctx context.Context, personID id.PersonID, relationship string, in CreatePersonInput) (_ *models.Person, err error) {
	ctx, end := tracing.Start(ctx, "directory", "AddNextOfKin", attribute.String("person.id", personID.String()))
	defer end(&err)

	in.Kind = models.PersonKindNextOfKin
	in.ReferenceLabel = ""
	var nok *models.Person
	err = d.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		master, err := tx.GetPerson(ctx, personID)
		if err != nil {
			return err
		}
		if master.Kind == models.PersonKindNextOfKin {
			return dErrors.New(dErrors.CodeValidation, "next of kin cannot have their own next of kin")
		}
		if master.IsAnonymised() {
			return dErrors.New(dErrors.CodeValidation, "person has been anonymised")
		}
		nok, err = d.insertPerson(ctx, tx, in)
		if err != nil {
			return err
		}
		return tx.InsertNextOfKin(ctx, &models.NextOfKinLink{
			PersonID:     master.ID,
			NextOfKinID:  nok.ID,
			Relationship: strings.TrimSpace(relationship),
		})
	})
	if err != nil {
		return nil, storeerr.Wrap(err, "person", "failed to add next of kin")
	}
	d.logger.InfoContext(ctx, "next of kin added", "person_id", personID.String(), "next_of_kin_id", nok.ID.String())
	return nok, nil
}
