// Package shelter composes the shelter engine components over one entity store.
//
// The Engine is what the HTTP handler and the CLI talk to. Every component
// shares the store, the event log and the occupancy tracker, so a call that
// joins another component's work (a reopen cancelling a scheduled task, an
// import checking clients in) runs inside a single transaction.
package shelter

import (
	"context"
	"log/slog"
	"time"

	"shelterops/internal/scheduler"
	schedmetrics "shelterops/internal/scheduler/metrics"
	"shelterops/internal/shelter/directory"
	"shelterops/internal/shelter/eventlog"
	"shelterops/internal/shelter/importer"
	"shelterops/internal/shelter/lifecycle"
	shelmetrics "shelterops/internal/shelter/metrics"
	"shelterops/internal/shelter/models"
	"shelterops/internal/shelter/occupancy"
	"shelterops/internal/shelter/registration"
	"shelterops/internal/shelter/retention"
	"shelterops/internal/store"
	id "shelterops/pkg/domain"
)

type Engine struct {
	Store         store.Store
	Events        *eventlog.Log
	Occupancy     *occupancy.Tracker
	Scheduler     *scheduler.Scheduler
	Directory     *directory.Directory
	Lifecycle     *lifecycle.Machine
	Registrations *registration.Engine
	Retention     *retention.Workflow
	Importer      *importer.Importer
}

type options struct {
	logger       *slog.Logger
	metrics      *shelmetrics.Metrics
	schedMetrics *schedmetrics.Metrics
	mailer       retention.Mailer
	retention    []retention.Option
}

type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithMetrics(m *shelmetrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func WithSchedulerMetrics(m *schedmetrics.Metrics) Option {
	return func(o *options) {
		o.schedMetrics = m
	}
}

// WithMailer sends export artifacts and anonymisation confirmations.
func WithMailer(m retention.Mailer) Option {
	return func(o *options) {
		o.mailer = m
	}
}

// WithRetention sets the anonymisation delay, the task timeout and the
// officer who receives export artifacts.
func WithRetention(period, taskTimeout time.Duration, officer string) Option {
	return func(o *options) {
		o.retention = append(o.retention,
			retention.WithPeriod(period),
			retention.WithTaskTimeout(taskTimeout),
			retention.WithRetentionOfficer(officer),
		)
	}
}

func New(st store.Store, opts ...Option) *Engine {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	events := eventlog.New(st)
	occ := occupancy.New(st, occupancy.WithMetrics(o.metrics))
	sched := scheduler.New(st, scheduler.WithLogger(o.logger), scheduler.WithMetrics(o.schedMetrics))
	regs := registration.New(st, events, occ,
		registration.WithLogger(o.logger), registration.WithMetrics(o.metrics))

	retentionOpts := []retention.Option{retention.WithLogger(o.logger), retention.WithMetrics(o.metrics)}
	if o.mailer != nil {
		retentionOpts = append(retentionOpts, retention.WithMailer(o.mailer))
	}
	retentionOpts = append(retentionOpts, o.retention...)

	return &Engine{
		Store:         st,
		Events:        events,
		Occupancy:     occ,
		Scheduler:     sched,
		Directory:     directory.New(st, events, directory.WithLogger(o.logger)),
		Lifecycle:     lifecycle.New(st, events, occ, sched, lifecycle.WithLogger(o.logger), lifecycle.WithMetrics(o.metrics)),
		Registrations: regs,
		Retention:     retention.New(st, events, sched, retentionOpts...),
		Importer:      importer.New(st, events, regs, occ, importer.WithLogger(o.logger), importer.WithMetrics(o.metrics)),
	}
}

// RegisterTasks binds the engine's scheduled task handlers to the worker.
func (e *Engine) RegisterTasks(w *scheduler.Worker) {
	w.Register(models.AnonymiseTaskName, e.Retention.HandleAnonymiseTask)
}

// Bootstrap seeds the built-in shelter types.
func (e *Engine) Bootstrap(ctx context.Context) error {
	_, err := store.SeedShelterTypes(ctx, e.Store)
	return err
}

func (e *Engine) CreateShelter(ctx context.Context, in directory.CreateShelterInput) (*models.Shelter, error) {
	return e.Directory.CreateShelter(ctx, in)
}

func (e *Engine) GetShelter(ctx context.Context, shelterID id.ShelterID) (*directory.ShelterView, error) {
	return e.Directory.GetShelter(ctx, shelterID)
}

func (e *Engine) ListShelters(ctx context.Context) ([]directory.ShelterSummary, error) {
	return e.Directory.ListShelters(ctx)
}

func (e *Engine) ListShelterTypes(ctx context.Context) ([]*models.ShelterType, error) {
	return e.Directory.ListShelterTypes(ctx)
}

func (e *Engine) SetStatus(ctx context.Context, shelterID id.ShelterID, requested string) (*models.Shelter, error) {
	return e.Lifecycle.SetStatus(ctx, shelterID, requested)
}

func (e *Engine) SetAvailability(ctx context.Context, shelterID id.ShelterID, unavailable bool) (*models.Shelter, error) {
	return e.Lifecycle.SetAvailability(ctx, shelterID, unavailable)
}

func (e *Engine) UpdateDetails(ctx context.Context, shelterID id.ShelterID, update models.ShelterDetailsUpdate) (*models.Shelter, error) {
	return e.Lifecycle.UpdateDetails(ctx, shelterID, update)
}

func (e *Engine) CheckIn(ctx context.Context, shelterID id.ShelterID, personID id.PersonID, opts registration.CheckInOptions) (*registration.CheckInResult, error) {
	return e.Registrations.CheckIn(ctx, shelterID, personID, opts)
}

func (e *Engine) CheckOutRegistration(ctx context.Context, shelterID id.ShelterID, registrationID id.RegistrationID, destination string) (*models.Registration, error) {
	return e.Registrations.CheckOutRegistration(ctx, shelterID, registrationID, destination)
}

func (e *Engine) ReleaseStaff(ctx context.Context, shelterID id.ShelterID, assignmentID id.AssignmentID) error {
	return e.Registrations.ReleaseStaff(ctx, shelterID, assignmentID)
}

func (e *Engine) HouseholdCheckIn(ctx context.Context, primaryID, memberID id.PersonID) (*registration.HouseholdResult, error) {
	return e.Registrations.HouseholdCheckIn(ctx, primaryID, memberID)
}

func (e *Engine) ListClients(ctx context.Context, shelterID id.ShelterID, statuses []models.RegistrationStatus) ([]directory.ClientListing, error) {
	return e.Directory.ListClients(ctx, shelterID, statuses)
}

// ListEvents returns the shelter's log; an unknown shelter is NotFound rather
// than an empty log.
func (e *Engine) ListEvents(ctx context.Context, shelterID id.ShelterID, includeArchived bool) ([]*models.Entry, error) {
	if _, err := e.Directory.GetShelter(ctx, shelterID); err != nil {
		return nil, err
	}
	return e.Events.List(ctx, shelterID, includeArchived)
}

func (e *Engine) Export(ctx context.Context, shelterID id.ShelterID) (*retention.Artifact, error) {
	return e.Retention.Export(ctx, shelterID)
}

func (e *Engine) Anonymise(ctx context.Context, shelterID id.ShelterID) (*retention.AnonymiseResult, error) {
	return e.Retention.AnonymiseCurrent(ctx, shelterID)
}

func (e *Engine) ImportRegistrations(ctx context.Context, shelterID id.ShelterID, rows []importer.Row, replace bool) (*importer.Result, error) {
	return e.Importer.ImportRegistrations(ctx, shelterID, rows, replace)
}

func (e *Engine) CreatePerson(ctx context.Context, in directory.CreatePersonInput) (*models.Person, error) {
	return e.Directory.CreatePerson(ctx, in)
}

func (e *Engine) GetPerson(ctx context.Context, personID id.PersonID) (*directory.PersonView, error) {
	return e.Directory.GetPerson(ctx, personID)
}

func (e *Engine) AddNextOfKin(ctx context.Context, personID id.PersonID, relationship string, in directory.CreatePersonInput) (*models.Person, error) {
	return e.Directory.AddNextOfKin(ctx, personID, relationship, in)
}
