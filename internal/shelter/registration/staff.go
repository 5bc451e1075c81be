package registration

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"shelterops/internal/platform/tracing"
	"shelterops/internal/shelter/eventlog"
	"shelterops/internal/shelter/models"
	"shelterops/internal/shelter/storeerr"
	"shelterops/internal/store"
	id "shelterops/pkg/domain"
	dErrors "shelterops/pkg/domain-errors"
	"shelterops/pkg/requestcontext"
)

// AssignStaff posts a staff member to the shelter, replacing any previous
// posting. Staff are not counted in the population.
func (e *Engine) AssignStaff(ctx context.Context, shelterID id.ShelterID, personID id.PersonID) (_ *models.StaffAssignment, err error) {
	ctx, end := tracing.Start(ctx, "registration", "AssignStaff",
		attribute.String("shelter.id", shelterID.String()), attribute.String("person.id", personID.String()))
	defer end(&err)
	start := time.Now()

	var result *models.StaffAssignment
	err = e.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sh, err := tx.LockShelter(ctx, shelterID)
		if err != nil {
			return storeerr.Wrap(err, "shelter", "failed to load shelter")
		}
		person, err := tx.GetPerson(ctx, personID)
		if err != nil {
			return storeerr.Wrap(err, "person", "failed to load person")
		}
		if !person.IsStaff() {
			return dErrors.New(dErrors.CodeValidation, "only staff can be assigned to a shelter")
		}

		existing, err := tx.FindStaffAssignmentByPerson(ctx, person.ID)
		switch {
		case storeerr.IsNotFound(err):
		case err != nil:
			return storeerr.Wrap(err, "staff assignment", "failed to load staff assignment")
		default:
			if err := tx.DeleteStaffAssignment(ctx, existing.ID); err != nil {
				return storeerr.Wrap(err, "staff assignment", "failed to remove previous assignment")
			}
		}

		now := requestcontext.Now(ctx)
		result = &models.StaffAssignment{
			ID:        id.NewAssignmentID(),
			ShelterID: sh.ID,
			PersonID:  person.ID,
			CreatedAt: now,
		}
		if err := tx.InsertStaffAssignment(ctx, result); err != nil {
			return storeerr.Wrap(err, "staff assignment", "failed to insert staff assignment")
		}
		person.CurrentShelterID = &sh.ID
		person.UpdatedAt = now
		if err := tx.UpdatePerson(ctx, person); err != nil {
			return storeerr.Wrap(err, "person", "failed to update staff member")
		}
		subject := person.ID
		_, err = e.events.Append(ctx, eventlog.AppendParams{
			ShelterID:      sh.ID,
			Kind:           models.EventCheckIn,
			SubjectID:      &subject,
			Comment:        models.CommentStaff,
			StatusSnapshot: sh.Status,
		})
		return err
	})
	if err != nil {
		return nil, storeerr.Wrap(err, "staff assignment", "failed to assign staff")
	}
	if e.metrics != nil {
		e.metrics.IncrementCheckIn(string(models.PersonKindStaff))
		e.metrics.ObserveOperation("assign_staff", start)
	}
	return result, nil
}

// ReleaseStaff removes a staff posting. The assignment must belong to the
// shelter.
func (e *Engine) ReleaseStaff(ctx context.Context, shelterID id.ShelterID, assignmentID id.AssignmentID) (err error) {
	ctx, end := tracing.Start(ctx, "registration", "ReleaseStaff",
		attribute.String("shelter.id", shelterID.String()), attribute.String("assignment.id", assignmentID.String()))
	defer end(&err)
	start := time.Now()

	err = e.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sh, err := tx.LockShelter(ctx, shelterID)
		if err != nil {
			return storeerr.Wrap(err, "shelter", "failed to load shelter")
		}
		assignment, err := tx.GetStaffAssignment(ctx, assignmentID)
		if err != nil {
			return storeerr.Wrap(err, "staff assignment", "failed to load staff assignment")
		}
		if assignment.ShelterID != sh.ID {
			return dErrors.New(dErrors.CodeNotFound, "staff assignment not found at this shelter")
		}
		if err := tx.DeleteStaffAssignment(ctx, assignment.ID); err != nil {
			return storeerr.Wrap(err, "staff assignment", "failed to delete staff assignment")
		}

		person, err := tx.GetPerson(ctx, assignment.PersonID)
		if err != nil {
			return storeerr.Wrap(err, "person", "failed to load staff member")
		}
		if person.CurrentShelterID != nil && *person.CurrentShelterID == sh.ID {
			person.CurrentShelterID = nil
			person.UpdatedAt = requestcontext.Now(ctx)
			if err := tx.UpdatePerson(ctx, person); err != nil {
				return storeerr.Wrap(err, "person", "failed to update staff member")
			}
		}
		subject := person.ID
		_, err = e.events.Append(ctx, eventlog.AppendParams{
			ShelterID:      sh.ID,
			Kind:           models.EventCheckOut,
			SubjectID:      &subject,
			Comment:        models.CommentStaff,
			StatusSnapshot: sh.Status,
		})
		return err
	})
	if err != nil {
		return storeerr.Wrap(err, "staff assignment", "failed to release staff")
	}
	if e.metrics != nil {
		e.metrics.AddCheckOuts("staff", 1)
		e.metrics.ObserveOperation("release_staff", start)
	}
	return nil
}
