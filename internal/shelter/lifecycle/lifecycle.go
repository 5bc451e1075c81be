// Package lifecycle applies shelter status transitions and their cascades.
//
// Closing a shelter checks out every client and flags the shelter for the
// retention workflow. Reopening revokes that flag and cancels any pending
// anonymisation. Availability and descriptive details are edited here too.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"strings"
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

// TaskCanceller removes scheduled tasks by identity.
type TaskCanceller interface {
	Cancel(ctx context.Context, name string, args []any, vars map[string]any) error
}

type Machine struct {
	store     store.Store
	events    *eventlog.Log
	occupancy *occupancy.Tracker
	tasks     TaskCanceller
	logger    *slog.Logger
	metrics   *shelmetrics.Metrics
}

type Option func(*Machine)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

func WithMetrics(metrics *shelmetrics.Metrics) Option {
	return func(m *Machine) {
		m.metrics = metrics
	}
}

func New(st store.Store, events *eventlog.Log, occ *occupancy.Tracker, tasks TaskCanceller, opts ...Option) *Machine {
	m := &Machine{store: st, events: events, occupancy: occ, tasks: tasks, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetStatus applies the requested status. "closed" and both concrete closed
// values resolve to the closed status of the shelter's type. Requesting the
// current status is a no-op that writes nothing.
func (m *Machine) SetStatus(ctx context.Context, shelterID id.ShelterID, requested string) (_ *models.Shelter, err error) {
	ctx, end := tracing.Start(ctx, "lifecycle", "SetStatus",
		attribute.String("shelter.id", shelterID.String()), attribute.String("status.requested", requested))
	defer end(&err)
	start := time.Now()

	req, err := models.ParseStatusRequest(requested)
	if err != nil {
		return nil, err
	}

	var (
		result     *models.Shelter
		oldStatus  models.Status
		checkedOut int
	)
	err = m.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sh, err := tx.LockShelter(ctx, shelterID)
		if err != nil {
			return storeerr.Wrap(err, "shelter", "failed to load shelter")
		}
		shelterType, err := tx.GetShelterType(ctx, sh.TypeID)
		if err != nil {
			if storeerr.IsNotFound(err) {
				return dErrors.New(dErrors.CodeInvalidType, "shelter type is unknown")
			}
			return storeerr.Wrap(err, "shelter type", "failed to load shelter type")
		}
		next, err := req.Resolve(shelterType)
		if err != nil {
			return err
		}
		if next.IsOpen() {
			if err := sh.CanOpen(); err != nil {
				return err
			}
		}
		oldStatus = sh.Status
		if next == sh.Status {
			result = sh
			return nil
		}

		now := requestcontext.Now(ctx)
		sh.Status = next
		sh.UpdatedAt = now
		if err := tx.UpdateShelter(ctx, sh); err != nil {
			return storeerr.Wrap(err, "shelter", "failed to update shelter status")
		}

		switch {
		case oldStatus.IsOpen() && next.IsClosed():
			if checkedOut, err = m.closeCascade(ctx, tx, sh, now); err != nil {
				return err
			}
		case oldStatus.IsClosed() && next.IsOpen():
			if err := m.reopenCascade(ctx, tx, sh); err != nil {
				return err
			}
		}

		if _, err := m.events.Append(ctx, eventlog.AppendParams{
			ShelterID:      sh.ID,
			Kind:           models.EventStatusChange,
			Comment:        oldStatus.Label() + " -> " + next.Label(),
			StatusSnapshot: next,
		}); err != nil {
			return err
		}
		population, err := m.occupancy.Recompute(ctx, sh.ID)
		if err != nil {
			return err
		}
		sh.Population = population
		result = sh
		return nil
	})
	if err != nil {
		return nil, storeerr.Wrap(err, "shelter", "failed to change shelter status")
	}

	if oldStatus != result.Status {
		m.logger.InfoContext(ctx, "shelter status changed",
			"shelter_id", shelterID.String(),
			"from", string(oldStatus),
			"to", string(result.Status),
			"checked_out", checkedOut,
		)
		if m.metrics != nil {
			m.metrics.IncrementStatusChange(string(result.Status))
			if checkedOut > 0 {
				m.metrics.AddCheckOuts(models.ReasonAutoClosed, checkedOut)
			}
		}
	}
	if m.metrics != nil {
		m.metrics.ObserveOperation("set_status", start)
	}
	return result, nil
}

// closeCascade checks out every client still checked in and flags the
// shelter CLOSED unless it has already been exported.
func (m *Machine) closeCascade(ctx context.Context, tx store.Tx, sh *models.Shelter, now time.Time) (int, error) {
	active, err := tx.ListRegistrations(ctx, models.RegistrationFilter{
		ShelterID: &sh.ID,
		Statuses:  []models.RegistrationStatus{models.RegistrationCheckedIn},
	})
	if err != nil {
		return 0, storeerr.Wrap(err, "registration", "failed to list active registrations")
	}
	for _, reg := range active {
		reg.ApplyCheckOut(now, models.ReasonAutoClosed)
		if err := tx.UpdateRegistration(ctx, reg); err != nil {
			return 0, storeerr.Wrap(err, "registration", "failed to check out registration")
		}
		subject := reg.PersonID
		if _, err := m.events.Append(ctx, eventlog.AppendParams{
			ShelterID:      sh.ID,
			Kind:           models.EventCheckOut,
			SubjectID:      &subject,
			Comment:        models.ReasonAutoClosed,
			StatusSnapshot: sh.Status,
		}); err != nil {
			return 0, err
		}
	}

	tag, err := tx.GetWorkflowTag(ctx, sh.ID, models.WorkflowKey)
	switch {
	case err == nil && tag.Value == models.WorkflowExported:
		return len(active), nil
	case err == nil:
	case storeerr.IsNotFound(err):
		tag = &models.WorkflowTag{ID: id.NewTagID(), ShelterID: sh.ID, Key: models.WorkflowKey}
	default:
		return 0, storeerr.Wrap(err, "workflow tag", "failed to load workflow tag")
	}
	tag.Value = models.WorkflowClosed
	tag.UpdatedAt = now
	if err := tx.UpsertWorkflowTag(ctx, tag); err != nil {
		return 0, storeerr.Wrap(err, "workflow tag", "failed to flag shelter closed")
	}
	return len(active), nil
}

// reopenCascade drops the retention flag and the anonymisation task keyed on it.
func (m *Machine) reopenCascade(ctx context.Context, tx store.Tx, sh *models.Shelter) error {
	tag, err := tx.GetWorkflowTag(ctx, sh.ID, models.WorkflowKey)
	if storeerr.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return storeerr.Wrap(err, "workflow tag", "failed to load workflow tag")
	}
	if err := tx.DeleteWorkflowTag(ctx, sh.ID, models.WorkflowKey); err != nil {
		return storeerr.Wrap(err, "workflow tag", "failed to delete workflow tag")
	}
	if m.tasks == nil {
		return nil
	}
	if err := m.tasks.Cancel(ctx, models.AnonymiseTaskName, models.AnonymiseTaskArgs(sh.ID, tag.ID), nil); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "retention revoked on reopen",
		"shelter_id", sh.ID.String(), "tag_id", tag.ID.String(), "tag_value", string(tag.Value))
	return nil
}

// SetAvailability marks the shelter unavailable or available again. Only a
// closed shelter may be marked unavailable.
func (m *Machine) SetAvailability(ctx context.Context, shelterID id.ShelterID, unavailable bool) (_ *models.Shelter, err error) {
	ctx, end := tracing.Start(ctx, "lifecycle", "SetAvailability",
		attribute.String("shelter.id", shelterID.String()), attribute.Bool("unavailable", unavailable))
	defer end(&err)

	var result *models.Shelter
	err = m.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sh, err := tx.LockShelter(ctx, shelterID)
		if err != nil {
			return storeerr.Wrap(err, "shelter", "failed to load shelter")
		}
		result = sh
		if sh.Unavailable == unavailable {
			return nil
		}
		if unavailable {
			if err := sh.CanMarkUnavailable(); err != nil {
				return err
			}
		}
		sh.Unavailable = unavailable
		sh.UpdatedAt = requestcontext.Now(ctx)
		if err := tx.UpdateShelter(ctx, sh); err != nil {
			return storeerr.Wrap(err, "shelter", "failed to update availability")
		}
		comment := "Available"
		if unavailable {
			comment = "Unavailable"
		}
		_, err = m.events.Append(ctx, eventlog.AppendParams{
			ShelterID:      sh.ID,
			Kind:           models.EventUpdate,
			Comment:        comment,
			StatusSnapshot: sh.Status,
		})
		return err
	})
	if err != nil {
		return nil, storeerr.Wrap(err, "shelter", "failed to change availability")
	}
	return result, nil
}

// UpdateDetails edits descriptive fields. Renaming onto an existing name
// fails with Conflict.
func (m *Machine) UpdateDetails(ctx context.Context, shelterID id.ShelterID, update models.ShelterDetailsUpdate) (_ *models.Shelter, err error) {
	ctx, end := tracing.Start(ctx, "lifecycle", "UpdateDetails", attribute.String("shelter.id", shelterID.String()))
	defer end(&err)

	var result *models.Shelter
	err = m.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sh, err := tx.LockShelter(ctx, shelterID)
		if err != nil {
			return storeerr.Wrap(err, "shelter", "failed to load shelter")
		}
		changed, err := update.Apply(sh)
		if err != nil {
			return err
		}
		result = sh
		if len(changed) == 0 {
			return nil
		}
		sh.UpdatedAt = requestcontext.Now(ctx)
		if err := tx.UpdateShelter(ctx, sh); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Wrap(err, dErrors.CodeConflict, "shelter name already in use")
			}
			return storeerr.Wrap(err, "shelter", "failed to update shelter")
		}
		_, err = m.events.Append(ctx, eventlog.AppendParams{
			ShelterID:      sh.ID,
			Kind:           models.EventUpdate,
			Comment:        "Updated: " + strings.Join(changed, ", "),
			StatusSnapshot: sh.Status,
		})
		return err
	})
	if err != nil {
		return nil, storeerr.Wrap(err, "shelter", "failed to update shelter")
	}
	return result, nil
}
