// Package registration checks clients and staff in and out of shelters.
//
// Every operation runs in one transaction: registration rows, the event log
// entry describing them and the occupancy recompute commit together. A client
// holds at most one checked-in registration; checking in elsewhere supersedes
// the previous one.
package registration

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"shelterops/internal/platform/tracing"
	"shelterops/internal/shelter/eventlog"
	shelmetrics "shelterops/internal/shelter/metrics"
	"shelterops/internal/shelter/models"
	"shelterops/internal/shelter/occupancy"
	"shelterops/internal/shelter/storeerr"
	"shelterops/internal/store"
	id "shelterops/pkg/domain"
	dErrors "shelterops/pkg/domain-errors"
	"shelterops/pkg/platform/sentinel"
	"shelterops/pkg/requestcontext"
)

type Engine struct {
	store     store.Store
	events    *eventlog.Log
	occupancy *occupancy.Tracker
	logger    *slog.Logger
	metrics   *shelmetrics.Metrics
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *shelmetrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func New(st store.Store, events *eventlog.Log, occ *occupancy.Tracker, opts ...Option) *Engine {
	e := &Engine{store: st, events: events, occupancy: occ, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckInParams describes a client check-in. A zero At means now; an empty
// Comment logs "Client". SkipOccupancy leaves the recompute to the caller,
// which must run it before its transaction commits.
type CheckInParams struct {
	ShelterID     id.ShelterID
	PersonID      id.PersonID
	At            time.Time
	Comment       string
	SkipOccupancy bool
}

// CheckOutParams describes a client check-out. Reason is stored on the
// registration; Destination shapes the log comment.
type CheckOutParams struct {
	ShelterID     id.ShelterID
	PersonID      id.PersonID
	At            time.Time
	Destination   string
	Reason        string
	SkipOccupancy bool
}

// CheckInClient registers the client at an open shelter. A client already
// checked in here keeps the registration and only a log entry is added.
func (e *Engine) CheckInClient(ctx context.Context, p CheckInParams) (_ *models.Registration, err error) {
	ctx, end := tracing.Start(ctx, "registration", "CheckInClient",
		attribute.String("shelter.id", p.ShelterID.String()), attribute.String("person.id", p.PersonID.String()))
	defer end(&err)
	start := time.Now()

	comment := p.Comment
	if comment == "" {
		comment = models.CommentClient
	}

	var (
		result     *models.Registration
		superseded int
		created    bool
	)
	err = e.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sh, err := tx.LockShelter(ctx, p.ShelterID)
		if err != nil {
			return storeerr.Wrap(err, "shelter", "failed to load shelter")
		}
		if !sh.Status.IsOpen() {
			return dErrors.New(dErrors.CodeShelterClosed, "shelter "+sh.Name+" is closed")
		}
		person, err := tx.GetPerson(ctx, p.PersonID)
		if err != nil {
			return storeerr.Wrap(err, "person", "failed to load person")
		}
		if !person.IsClient() {
			return dErrors.New(dErrors.CodeValidation, "only clients can be checked in as clients")
		}

		at := p.At
		if at.IsZero() {
			at = requestcontext.Now(ctx)
		}
		active, err := tx.ListRegistrations(ctx, models.RegistrationFilter{
			PersonID: &person.ID,
			Statuses: []models.RegistrationStatus{models.RegistrationCheckedIn},
		})
		if err != nil {
			return storeerr.Wrap(err, "registration", "failed to list registrations")
		}
		for _, reg := range active {
			if reg.ShelterID == sh.ID {
				result = reg
				continue
			}
			if err := e.supersede(ctx, tx, reg, at); err != nil {
				return err
			}
			superseded++
		}

		if result == nil {
			result = &models.Registration{
				ID:        id.NewRegistrationID(),
				ShelterID: sh.ID,
				PersonID:  person.ID,
				CheckIn:   at,
				Status:    models.RegistrationCheckedIn,
			}
			if err := tx.InsertRegistration(ctx, result); err != nil {
				if errors.Is(err, sentinel.ErrConflict) {
					return dErrors.Wrap(err, dErrors.CodeConflict, "client was checked in concurrently")
				}
				return storeerr.Wrap(err, "registration", "failed to insert registration")
			}
			created = true
		}

		subject := person.ID
		if _, err := e.events.Append(ctx, eventlog.AppendParams{
			ShelterID:      sh.ID,
			Kind:           models.EventCheckIn,
			SubjectID:      &subject,
			Comment:        comment,
			StatusSnapshot: sh.Status,
		}); err != nil {
			return err
		}
		if !created || p.SkipOccupancy {
			return nil
		}
		_, err = e.occupancy.Recompute(ctx, sh.ID)
		return err
	})
	if err != nil {
		return nil, storeerr.Wrap(err, "registration", "failed to check in client")
	}

	if e.metrics != nil {
		e.metrics.ObserveOperation("check_in_client", start)
		if created {
			e.metrics.IncrementCheckIn(string(models.PersonKindClient))
		}
		if superseded > 0 {
			e.metrics.AddCheckOuts(models.ReasonSuperseded, superseded)
		}
	}
	if superseded > 0 {
		e.logger.InfoContext(ctx, "client registration superseded",
			"person_id", p.PersonID.String(), "shelter_id", p.ShelterID.String(), "superseded", superseded)
	}
	return result, nil
}

// supersede checks out a registration at another shelter and keeps that
// shelter's log and occupancy consistent.
func (e *Engine) supersede(ctx context.Context, tx store.Tx, reg *models.Registration, at time.Time) error {
	other, err := tx.LockShelter(ctx, reg.ShelterID)
	if err != nil {
		return storeerr.Wrap(err, "shelter", "failed to load previous shelter")
	}
	reg.ApplyCheckOut(at, models.ReasonSuperseded)
	if err := tx.UpdateRegistration(ctx, reg); err != nil {
		return storeerr.Wrap(err, "registration", "failed to supersede registration")
	}
	subject := reg.PersonID
	if _, err := e.events.Append(ctx, eventlog.AppendParams{
		ShelterID:      other.ID,
		Kind:           models.EventCheckOut,
		SubjectID:      &subject,
		Comment:        models.ReasonSuperseded,
		StatusSnapshot: other.Status,
	}); err != nil {
		return err
	}
	_, err = e.occupancy.Recompute(ctx, other.ID)
	return err
}

// CheckOutClient ends the client's active registration at the shelter.
func (e *Engine) CheckOutClient(ctx context.Context, p CheckOutParams) (_ *models.Registration, err error) {
	ctx, end := tracing.Start(ctx, "registration", "CheckOutClient",
		attribute.String("shelter.id", p.ShelterID.String()), attribute.String("person.id", p.PersonID.String()))
	defer end(&err)
	start := time.Now()

	var result *models.Registration
	err = e.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sh, err := tx.LockShelter(ctx, p.ShelterID)
		if err != nil {
			return storeerr.Wrap(err, "shelter", "failed to load shelter")
		}
		active, err := tx.ListRegistrations(ctx, models.RegistrationFilter{
			ShelterID: &sh.ID,
			PersonID:  &p.PersonID,
			Statuses:  []models.RegistrationStatus{models.RegistrationCheckedIn},
		})
		if err != nil {
			return storeerr.Wrap(err, "registration", "failed to list registrations")
		}
		if len(active) == 0 {
			return dErrors.New(dErrors.CodeNotCheckedIn, "client is not checked in at this shelter")
		}
		result, err = e.checkOut(ctx, tx, sh, active[0], p)
		return err
	})
	if err != nil {
		return nil, storeerr.Wrap(err, "registration", "failed to check out client")
	}
	e.recordCheckOut(p.Reason, start)
	return result, nil
}

// CheckOutRegistration resolves a registration id to its client and checks
// the client out. The registration must belong to the shelter.
func (e *Engine) CheckOutRegistration(ctx context.Context, shelterID id.ShelterID, registrationID id.RegistrationID, destination string) (_ *models.Registration, err error) {
	ctx, end := tracing.Start(ctx, "registration", "CheckOutRegistration",
		attribute.String("shelter.id", shelterID.String()), attribute.String("registration.id", registrationID.String()))
	defer end(&err)
	start := time.Now()

	p := CheckOutParams{ShelterID: shelterID, Destination: destination}
	var result *models.Registration
	err = e.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sh, err := tx.LockShelter(ctx, shelterID)
		if err != nil {
			return storeerr.Wrap(err, "shelter", "failed to load shelter")
		}
		reg, err := tx.GetRegistration(ctx, registrationID)
		if err != nil {
			return storeerr.Wrap(err, "registration", "failed to load registration")
		}
		if reg.ShelterID != sh.ID {
			return dErrors.New(dErrors.CodeNotFound, "registration not found at this shelter")
		}
		if !reg.IsActive() {
			return dErrors.New(dErrors.CodeNotCheckedIn, "registration is not checked in")
		}
		p.PersonID = reg.PersonID
		result, err = e.checkOut(ctx, tx, sh, reg, p)
		return err
	})
	if err != nil {
		return nil, storeerr.Wrap(err, "registration", "failed to check out registration")
	}
	e.recordCheckOut("", start)
	return result, nil
}

func (e *Engine) checkOut(ctx context.Context, tx store.Tx, sh *models.Shelter, reg *models.Registration, p CheckOutParams) (*models.Registration, error) {
	at := p.At
	if at.IsZero() {
		at = requestcontext.Now(ctx)
	}
	reg.ApplyCheckOut(at, p.Reason)
	if err := tx.UpdateRegistration(ctx, reg); err != nil {
		return nil, storeerr.Wrap(err, "registration", "failed to update registration")
	}
	subject := reg.PersonID
	if _, err := e.events.Append(ctx, eventlog.AppendParams{
		ShelterID:      sh.ID,
		Kind:           models.EventCheckOut,
		SubjectID:      &subject,
		Comment:        checkOutComment(p.Destination, p.Reason),
		StatusSnapshot: sh.Status,
	}); err != nil {
		return nil, err
	}
	if !p.SkipOccupancy {
		if _, err := e.occupancy.Recompute(ctx, sh.ID); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func checkOutComment(destination, reason string) string {
	switch {
	case destination != "":
		return models.CommentClientGoingTo + destination
	case reason != "":
		return reason
	}
	return models.CommentClient
}

func (e *Engine) recordCheckOut(reason string, start time.Time) {
	if e.metrics == nil {
		return
	}
	if reason == "" {
		reason = "client"
	}
	e.metrics.AddCheckOuts(reason, 1)
	e.metrics.ObserveOperation("check_out_client", start)
}
