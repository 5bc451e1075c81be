// Package retention runs the export, flag and anonymise pipeline for closed
// shelters.
//
// Export flags the shelter EXPORTED and schedules anonymisation for the end of
// the retention period. Anonymisation strips personal data from every client
// the shelter ever checked in, follows next-of-kin links, archives the log and
// removes the flag. Reopening a shelter revokes the pipeline (see lifecycle).
package retention

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"shelterops/internal/notifier"
	"shelterops/internal/platform/tracing"
	"shelterops/internal/scheduler"
	"shelterops/internal/shelter/eventlog"
	shelmetrics "shelterops/internal/shelter/metrics"
	"shelterops/internal/shelter/models"
	"shelterops/internal/shelter/storeerr"
	"shelterops/internal/store"
	id "shelterops/pkg/domain"
	dErrors "shelterops/pkg/domain-errors"
	"shelterops/pkg/requestcontext"
)

const (
	DefaultPeriod      = 30 * 24 * time.Hour
	DefaultTaskTimeout = 300 * time.Second
)

// Scheduler is the part of the task scheduler the workflow drives.
type Scheduler interface {
	ScheduleOnce(ctx context.Context, spec scheduler.TaskSpec) (id.TaskID, error)
	Cancel(ctx context.Context, name string, args []any, vars map[string]any) error
}

// Mailer delivers best-effort notifications.
type Mailer interface {
	SendEmail(ctx context.Context, msg notifier.Message)
}

type Workflow struct {
	store       store.Store
	events      *eventlog.Log
	tasks       Scheduler
	mailer      Mailer
	logger      *slog.Logger
	metrics     *shelmetrics.Metrics
	period      time.Duration
	taskTimeout time.Duration
	officer     string
}

type Option func(*Workflow)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		w.logger = logger
	}
}

func WithMetrics(m *shelmetrics.Metrics) Option {
	return func(w *Workflow) {
		w.metrics = m
	}
}

func WithMailer(m Mailer) Option {
	return func(w *Workflow) {
		w.mailer = m
	}
}

// WithPeriod sets how long exported data is kept before anonymisation.
func WithPeriod(d time.Duration) Option {
	return func(w *Workflow) {
		if d > 0 {
			w.period = d
		}
	}
}

func WithTaskTimeout(d time.Duration) Option {
	return func(w *Workflow) {
		if d > 0 {
			w.taskTimeout = d
		}
	}
}

// WithRetentionOfficer sets the address that receives export artifacts and
// anonymisation confirmations.
func WithRetentionOfficer(email string) Option {
	return func(w *Workflow) {
		w.officer = email
	}
}

func New(st store.Store, events *eventlog.Log, tasks Scheduler, opts ...Option) *Workflow {
	w := &Workflow{
		store:       st,
		events:      events,
		tasks:       tasks,
		logger:      slog.Default(),
		period:      DefaultPeriod,
		taskTimeout: DefaultTaskTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Artifact is the export workbook and what went into it.
type Artifact struct {
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"-"`
	TagID       id.TagID  `json:"tag_id"`
	Clients     int       `json:"clients"`
	Staff       int       `json:"staff"`
	LogRows     int       `json:"log_rows"`
	ExportedAt  time.Time `json:"exported_at"`
}

// AnonymiseResult reports the effect of an anonymise run.
type AnonymiseResult struct {
	Persons         int  `json:"persons"`
	EntriesArchived int  `json:"entries_archived"`
	AlreadyDone     bool `json:"already_done"`
}

func (w *Workflow) taskArgs(shelterID id.ShelterID, tagID id.TagID) []any {
	return models.AnonymiseTaskArgs(shelterID, tagID)
}

// Export records the export, flags the shelter EXPORTED, schedules
// anonymisation and returns the workbook. The shelter must be closed.
// The workbook is built before the flag commits, so a failed export leaves
// the store unchanged. Exporting again refreshes the flag and moves the
// anonymisation date.
func (w *Workflow) Export(ctx context.Context, shelterID id.ShelterID) (_ *Artifact, err error) {
	ctx, end := tracing.Start(ctx, "retention", "Export", attribute.String("shelter.id", shelterID.String()))
	defer end(&err)
	start := time.Now()
	now := requestcontext.Now(ctx)

	var (
		sh       *models.Shelter
		tag      *models.WorkflowTag
		artifact *Artifact
	)
	err = w.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		sh, err = tx.LockShelter(ctx, shelterID)
		if err != nil {
			return storeerr.Wrap(err, "shelter", "failed to load shelter")
		}
		if !sh.IsClosed() {
			return dErrors.New(dErrors.CodeShelterOpen, "shelter must be closed before export")
		}
		if _, err := w.events.Append(ctx, eventlog.AppendParams{
			ShelterID:      sh.ID,
			Kind:           models.EventDataExport,
			Comment:        models.CommentShelter,
			StatusSnapshot: sh.Status,
		}); err != nil {
			return err
		}

		tag, err = tx.GetWorkflowTag(ctx, sh.ID, models.WorkflowKey)
		switch {
		case storeerr.IsNotFound(err):
			tag = &models.WorkflowTag{ID: id.NewTagID(), ShelterID: sh.ID, Key: models.WorkflowKey}
		case err != nil:
			return storeerr.Wrap(err, "workflow tag", "failed to load workflow tag")
		}
		tag.Value = models.WorkflowExported
		tag.UpdatedAt = now
		if err := tx.UpsertWorkflowTag(ctx, tag); err != nil {
			return storeerr.Wrap(err, "workflow tag", "failed to flag shelter exported")
		}

		artifact, err = buildArtifact(ctx, tx, sh, now)
		if err != nil {
			return err
		}
		artifact.TagID = tag.ID
		return nil
	})
	if err != nil {
		return nil, storeerr.Wrap(err, "shelter", "failed to export shelter")
	}

	w.scheduleAnonymise(ctx, sh.ID, tag.ID, now)

	w.logger.InfoContext(ctx, "shelter exported",
		"shelter_id", sh.ID.String(),
		"clients", artifact.Clients,
		"staff", artifact.Staff,
		"log_rows", artifact.LogRows,
	)
	if w.metrics != nil {
		w.metrics.IncrementExports()
		w.metrics.ObserveOperation("export", start)
	}
	w.notify(ctx, notifier.Message{
		Subject: "Shelter data export: " + sh.Name,
		Body: "The attached workbook contains the data held for " + sh.Name +
			". Personal data will be anonymised on " + now.Add(w.period).Format("02/01/2006") +
			" unless the shelter is reopened.",
		Attachments: []notifier.Attachment{{
			Filename:    artifact.Filename,
			ContentType: artifact.ContentType,
			Data:        artifact.Data,
		}},
	})
	return artifact, nil
}

// scheduleAnonymise never fails the export; the EXPORTED flag is the source
// of truth and the task can be recreated by exporting again.
func (w *Workflow) scheduleAnonymise(ctx context.Context, shelterID id.ShelterID, tagID id.TagID, now time.Time) {
	if w.tasks == nil {
		return
	}
	_, err := w.tasks.ScheduleOnce(ctx, scheduler.TaskSpec{
		Name:      models.AnonymiseTaskName,
		Args:      w.taskArgs(shelterID, tagID),
		StartTime: now.Add(w.period),
		Timeout:   w.taskTimeout,
		Repeats:   1,
		CreatedBy: requestcontext.ActorFrom(ctx).UserID,
	})
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to schedule anonymisation",
			"shelter_id", shelterID.String(), "tag_id", tagID.String(), "error", err)
	}
}

func (w *Workflow) notify(ctx context.Context, msg notifier.Message) {
	if w.mailer == nil || w.officer == "" {
		return
	}
	msg.To = []string{w.officer}
	w.mailer.SendEmail(ctx, msg)
}
