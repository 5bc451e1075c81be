package registration

import (
	"context"
	"time"

	"shelterops/internal/shelter/models"
	"shelterops/internal/shelter/storeerr"
	"shelterops/internal/store"
	id "shelterops/pkg/domain"
	dErrors "shelterops/pkg/domain-errors"
)

// CheckInResult holds whichever record a check-in produced.
type CheckInResult struct {
	Registration *models.Registration    `json:"registration,omitempty"`
	Assignment   *models.StaffAssignment `json:"staff_assignment,omitempty"`
}

// CheckInOptions are the optional parts of a check-in. A zero At means now.
// Kind, when set, must match the person's kind. Comment is logged on client
// check-ins; staff check-ins always log "Staff".
type CheckInOptions struct {
	At      time.Time
	Kind    models.PersonKind
	Comment string
}

// CheckIn routes a person to the client or staff check-in by kind. Next-of-kin
// records cannot be checked in.
func (e *Engine) CheckIn(ctx context.Context, shelterID id.ShelterID, personID id.PersonID, opts CheckInOptions) (*CheckInResult, error) {
	var person *models.Person
	err := e.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		person, err = tx.GetPerson(ctx, personID)
		return err
	})
	if err != nil {
		return nil, storeerr.Wrap(err, "person", "failed to load person")
	}
	if opts.Kind != "" && opts.Kind != person.Kind {
		return nil, dErrors.New(dErrors.CodeValidation,
			"person is "+string(person.Kind)+", not "+string(opts.Kind))
	}

	switch person.Kind {
	case models.PersonKindClient:
		reg, err := e.CheckInClient(ctx, CheckInParams{ShelterID: shelterID, PersonID: personID, At: opts.At, Comment: opts.Comment})
		if err != nil {
			return nil, err
		}
		return &CheckInResult{Registration: reg}, nil
	case models.PersonKindStaff:
		if opts.Comment != "" {
			return nil, dErrors.New(dErrors.CodeValidation, "comments apply to client check-ins only")
		}
		a, err := e.AssignStaff(ctx, shelterID, personID)
		if err != nil {
			return nil, err
		}
		return &CheckInResult{Assignment: a}, nil
	}
	return nil, dErrors.New(dErrors.CodeValidation, "next of kin records cannot be checked in")
}
