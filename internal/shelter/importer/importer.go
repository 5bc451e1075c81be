// Package importer applies spreadsheet registrations to a shelter.
//
// An import is all or nothing: the optional replace check-out, every row's
// client upsert and check-in, the DataImport log entry and the single
// occupancy recompute share one transaction.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"shelterops/internal/platform/tracing"
	"shelterops/internal/shelter/eventlog"
	shelmetrics "shelterops/internal/shelter/metrics"
	"shelterops/internal/shelter/models"
	"shelterops/internal/shelter/occupancy"
	"shelterops/internal/shelter/registration"
	"shelterops/internal/shelter/storeerr"
	"shelterops/internal/store"
	id "shelterops/pkg/domain"
	dErrors "shelterops/pkg/domain-errors"
	"shelterops/pkg/requestcontext"
)

// Row is one client registration from a spreadsheet. Line is the sheet row
// number used in error messages.
type Row struct {
	Line        int        `json:"line"`
	Reference   string     `json:"reference,omitempty"`
	LastName    string     `json:"last_name"`
	MiddleName  string     `json:"middle_name,omitempty"`
	FirstName   string     `json:"first_name"`
	Sex         string     `json:"sex,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	CheckIn     *time.Time `json:"check_in,omitempty"`
}

// Result summarises an applied import.
type Result struct {
	Rows       int `json:"rows"`
	Created    int `json:"created"`
	Updated    int `json:"updated"`
	CheckedOut int `json:"checked_out"`
	Population int `json:"population"`
}

type Importer struct {
	store         store.Store
	events        *eventlog.Log
	registrations *registration.Engine
	occupancy     *occupancy.Tracker
	logger        *slog.Logger
	metrics       *shelmetrics.Metrics
}

type Option func(*Importer)

func WithLogger(logger *slog.Logger) Option {
	return func(im *Importer) {
		im.logger = logger
	}
}

func WithMetrics(m *shelmetrics.Metrics) Option {
	return func(im *Importer) {
		im.metrics = m
	}
}

func New(st store.Store, events *eventlog.Log, registrations *registration.Engine, occ *occupancy.Tracker, opts ...Option) *Importer {
	im := &Importer{
		store:         st,
		events:        events,
		registrations: registrations,
		occupancy:     occ,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// ImportRegistrations checks the rows' clients in at the shelter. With replace
// every client currently checked in there is checked out first. Clients are
// matched by reference label against client records only; rows without a
// reference always create a new client.
func (im *Importer) ImportRegistrations(ctx context.Context, shelterID id.ShelterID, rows []Row, replace bool) (_ *Result, err error) {
	ctx, end := tracing.Start(ctx, "importer", "ImportRegistrations",
		attribute.String("shelter.id", shelterID.String()),
		attribute.Int("rows", len(rows)),
		attribute.Bool("replace", replace))
	defer end(&err)
	start := time.Now()

	result := &Result{Rows: len(rows)}
	err = im.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sh, err := tx.LockShelter(ctx, shelterID)
		if err != nil {
			return storeerr.Wrap(err, "shelter", "failed to load shelter")
		}
		if !sh.Status.IsOpen() {
			return dErrors.New(dErrors.CodeShelterClosed, "shelter "+sh.Name+" is closed")
		}

		if replace {
			if result.CheckedOut, err = im.checkOutAll(ctx, tx, sh.ID); err != nil {
				return err
			}
		}

		for _, row := range rows {
			created, err := im.applyRow(ctx, tx, sh.ID, row)
			if err != nil {
				return rowError(row, err)
			}
			if created {
				result.Created++
			} else {
				result.Updated++
			}
		}

		if _, err := im.events.Append(ctx, eventlog.AppendParams{
			ShelterID:      sh.ID,
			Kind:           models.EventDataImport,
			Comment:        models.CommentSpreadsheet,
			StatusSnapshot: sh.Status,
		}); err != nil {
			return err
		}
		result.Population, err = im.occupancy.Recompute(ctx, sh.ID)
		return err
	})
	if err != nil {
		return nil, storeerr.Wrap(err, "shelter", "failed to import registrations")
	}

	im.logger.InfoContext(ctx, "registrations imported",
		"shelter_id", shelterID.String(),
		"rows", result.Rows,
		"created", result.Created,
		"checked_out", result.CheckedOut,
	)
	if im.metrics != nil {
		im.metrics.AddImportedRows(result.Rows)
		im.metrics.ObserveOperation("import", start)
	}
	return result, nil
}

func (im *Importer) checkOutAll(ctx context.Context, tx store.Tx, shelterID id.ShelterID) (int, error) {
	active, err := tx.ListRegistrations(ctx, models.RegistrationFilter{
		ShelterID: &shelterID,
		Statuses:  []models.RegistrationStatus{models.RegistrationCheckedIn},
	})
	if err != nil {
		return 0, storeerr.Wrap(err, "registration", "failed to list registrations")
	}
	for _, reg := range active {
		if _, err := im.registrations.CheckOutClient(ctx, registration.CheckOutParams{
			ShelterID:     shelterID,
			PersonID:      reg.PersonID,
			Reason:        models.ReasonImportReplace,
			SkipOccupancy: true,
		}); err != nil {
			return 0, err
		}
	}
	return len(active), nil
}

// applyRow upserts the row's client and checks them in. It reports whether a
// new client record was created.
func (im *Importer) applyRow(ctx context.Context, tx store.Tx, shelterID id.ShelterID, row Row) (bool, error) {
	if strings.TrimSpace(row.FirstName) == "" && strings.TrimSpace(row.LastName) == "" {
		return false, dErrors.New(dErrors.CodeValidation, "first or last name is required")
	}
	now := requestcontext.Now(ctx)

	var (
		client  *models.Person
		created bool
	)
	ref := strings.TrimSpace(row.Reference)
	if ref != "" {
		existing, err := tx.FindClientByReference(ctx, ref)
		switch {
		case err == nil:
			client = existing
		case !storeerr.IsNotFound(err):
			return false, storeerr.Wrap(err, "person", "failed to look up client")
		}
	}

	if client == nil {
		p, err := models.NewPerson(id.NewPersonID(), models.PersonKindClient, row.FirstName, row.LastName, now)
		if err != nil {
			return false, err
		}
		p.ReferenceLabel = ref
		p.MiddleName = strings.TrimSpace(row.MiddleName)
		p.Gender = strings.TrimSpace(row.Sex)
		p.DateOfBirth = row.DateOfBirth
		if err := tx.InsertPerson(ctx, p); err != nil {
			return false, storeerr.Wrap(err, "person", "failed to create client")
		}
		client, created = p, true
	} else if applyRowDetails(client, row) {
		client.UpdatedAt = now
		if err := tx.UpdatePerson(ctx, client); err != nil {
			return false, storeerr.Wrap(err, "person", "failed to update client")
		}
	}

	p := registration.CheckInParams{
		ShelterID:     shelterID,
		PersonID:      client.ID,
		Comment:       models.CommentClientImport,
		SkipOccupancy: true,
	}
	if row.CheckIn != nil {
		p.At = *row.CheckIn
	}
	if _, err := im.registrations.CheckInClient(ctx, p); err != nil {
		return false, err
	}
	return created, nil
}

// applyRowDetails copies non-empty spreadsheet values onto an existing client.
func applyRowDetails(p *models.Person, row Row) bool {
	changed := false
	set := func(dst *string, v string) {
		v = strings.TrimSpace(v)
		if v != "" && v != *dst {
			*dst = v
			changed = true
		}
	}
	set(&p.FirstName, row.FirstName)
	set(&p.MiddleName, row.MiddleName)
	set(&p.LastName, row.LastName)
	set(&p.Gender, row.Sex)
	if row.DateOfBirth != nil && (p.DateOfBirth == nil || !p.DateOfBirth.Equal(*row.DateOfBirth)) {
		dob := *row.DateOfBirth
		p.DateOfBirth = &dob
		changed = true
	}
	return changed
}

func rowError(row Row, err error) error {
	return dErrors.Wrap(err, dErrors.CodeOf(err), fmt.Sprintf("row %d: %s", row.Line, messageOf(err)))
}

func messageOf(err error) string {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
