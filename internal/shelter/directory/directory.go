// Package directory creates and reads shelters, shelter types and persons,
// and lists the clients registered at a shelter.
package directory

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"shelterops/internal/platform/tracing"
	"shelterops/internal/shelter/eventlog"
	"shelterops/internal/shelter/models"
	"shelterops/internal/shelter/storeerr"
	"shelterops/internal/store"
	id "shelterops/pkg/domain"
	dErrors "shelterops/pkg/domain-errors"
	"shelterops/pkg/platform/sentinel"
	"shelterops/pkg/requestcontext"
)

type Directory struct {
	store  store.Store
	events *eventlog.Log
	logger *slog.Logger
}

type Option func(*Directory)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Directory) {
		d.logger = logger
	}
}

func New(st store.Store, events *eventlog.Log, opts ...Option) *Directory {
	d := &Directory{store: st, events: events, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CreateShelterInput describes a new shelter. TypeName selects the shelter
// type; an empty Status means the default open status.
type CreateShelterInput struct {
	Name      string
	TypeName  string
	ServiceID string
	Location  string
	Phone     string
	Capacity  int
	Tags      map[string]string
	Status    models.Status
}

// ShelterView is a shelter with its type and retention flag resolved.
type ShelterView struct {
	*models.Shelter
	TypeName       string               `json:"type_name"`
	StatusLabel    string               `json:"status_label"`
	WorkflowStatus models.WorkflowValue `json:"workflow_status,omitempty"`
}

// ShelterSummary is the list form; both closed values collapse to "closed".
type ShelterSummary struct {
	ID          id.ShelterID `json:"id"`
	Name        string       `json:"name"`
	TypeName    string       `json:"type_name"`
	Status      string       `json:"status"`
	Population  int          `json:"population"`
	Capacity    int          `json:"capacity"`
	Unavailable bool         `json:"unavailable"`
}

// CreateShelter registers the shelter and opens its log with an Open entry.
func (d *Directory) CreateShelter(ctx context.Context, in CreateShelterInput) (_ *models.Shelter, err error) {
	ctx, end := tracing.Start(ctx, "directory", "CreateShelter", attribute.String("shelter.name", in.Name))
	defer end(&err)

	if in.Capacity < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "capacity cannot be negative")
	}
	var sh *models.Shelter
	err = d.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		shelterType, err := tx.FindShelterTypeByName(ctx, in.TypeName)
		if err != nil {
			if storeerr.IsNotFound(err) {
				return dErrors.New(dErrors.CodeInvalidType, "unknown shelter type: "+in.TypeName)
			}
			return storeerr.Wrap(err, "shelter type", "failed to load shelter type")
		}
		sh, err = models.NewShelter(id.NewShelterID(), in.Name, shelterType.ID, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		if in.Status != "" {
			status, err := resolveInitialStatus(in.Status, shelterType)
			if err != nil {
				return err
			}
			sh.Status = status
		}
		sh.ServiceID = strings.TrimSpace(in.ServiceID)
		sh.Location = strings.TrimSpace(in.Location)
		sh.Phone = strings.TrimSpace(in.Phone)
		sh.Capacity = in.Capacity
		for k, v := range in.Tags {
			if v != "" {
				sh.Tags[k] = v
			}
		}
		if err := tx.InsertShelter(ctx, sh); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.Wrap(err, dErrors.CodeConflict, "shelter name already in use")
			}
			return storeerr.Wrap(err, "shelter", "failed to create shelter")
		}
		_, err = d.events.Append(ctx, eventlog.AppendParams{
			ShelterID:      sh.ID,
			Kind:           models.EventOpen,
			Comment:        models.CommentShelter,
			StatusSnapshot: sh.Status,
		})
		return err
	})
	if err != nil {
		return nil, storeerr.Wrap(err, "shelter", "failed to create shelter")
	}
	d.logger.InfoContext(ctx, "shelter created", "shelter_id", sh.ID.String(), "name", sh.Name)
	return sh, nil
}

func resolveInitialStatus(status models.Status, t *models.ShelterType) (models.Status, error) {
	req, err := models.ParseStatusRequest(string(status))
	if err != nil {
		return "", err
	}
	return req.Resolve(t)
}

func (d *Directory) GetShelter(ctx context.Context, shelterID id.ShelterID) (*ShelterView, error) {
	var view *ShelterView
	err := d.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sh, err := tx.GetShelter(ctx, shelterID)
		if err != nil {
			return err
		}
		view = &ShelterView{Shelter: sh, StatusLabel: sh.Status.Label()}
		if t, err := tx.GetShelterType(ctx, sh.TypeID); err == nil {
			view.TypeName = t.Name
		} else if !storeerr.IsNotFound(err) {
			return err
		}
		tag, err := tx.GetWorkflowTag(ctx, sh.ID, models.WorkflowKey)
		switch {
		case err == nil:
			view.WorkflowStatus = tag.Value
		case !storeerr.IsNotFound(err):
			return err
		}
		return nil
	})
	if err != nil {
		return nil, storeerr.Wrap(err, "shelter", "failed to load shelter")
	}
	return view, nil
}

func (d *Directory) ListShelters(ctx context.Context) ([]ShelterSummary, error) {
	var out []ShelterSummary
	err := d.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		types, err := tx.ListShelterTypes(ctx)
		if err != nil {
			return err
		}
		typeNames := make(map[id.ShelterTypeID]string, len(types))
		for _, t := range types {
			typeNames[t.ID] = t.Name
		}
		shelters, err := tx.ListShelters(ctx)
		if err != nil {
			return err
		}
		out = make([]ShelterSummary, 0, len(shelters))
		for _, sh := range shelters {
			out = append(out, ShelterSummary{
				ID:          sh.ID,
				Name:        sh.Name,
				TypeName:    typeNames[sh.TypeID],
				Status:      sh.Status.ListLabel(),
				Population:  sh.Population,
				Capacity:    sh.Capacity,
				Unavailable: sh.Unavailable,
			})
		}
		return nil
	})
	if err != nil {
		return nil, storeerr.Wrap(err, "shelter", "failed to list shelters")
	}
	return out, nil
}

func (d *Directory) ListShelterTypes(ctx context.Context) ([]*models.ShelterType, error) {
	var types []*models.ShelterType
	err := d.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		types, err = tx.ListShelterTypes(ctx)
		return err
	})
	if err != nil {
		return nil, storeerr.Wrap(err, "shelter type", "failed to list shelter types")
	}
	return types, nil
}

// ClientListing is one registration with its client for operational views.
type ClientListing struct {
	Registration *models.Registration `json:"registration"`
	Person       *models.Person       `json:"person"`
}

// ListClients returns the shelter's client registrations, newest check-in
// first. Anonymised clients never appear. Without statuses, checked-out
// registrations are left out.
func (d *Directory) ListClients(ctx context.Context, shelterID id.ShelterID, statuses []models.RegistrationStatus) ([]ClientListing, error) {
	for _, s := range statuses {
		if !s.IsValid() {
			return nil, dErrors.New(dErrors.CodeBadRequest, "unknown registration status: "+string(s))
		}
	}
	if len(statuses) == 0 {
		statuses = []models.RegistrationStatus{models.RegistrationPlanned, models.RegistrationCheckedIn}
	}

	var out []ClientListing
	err := d.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetShelter(ctx, shelterID); err != nil {
			return err
		}
		regs, err := tx.ListRegistrations(ctx, models.RegistrationFilter{ShelterID: &shelterID, Statuses: statuses})
		if err != nil {
			return err
		}
		out = make([]ClientListing, 0, len(regs))
		for _, reg := range regs {
			p, err := tx.GetPerson(ctx, reg.PersonID)
			if storeerr.IsNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			if p.IsAnonymised() {
				continue
			}
			out = append(out, ClientListing{Registration: reg, Person: p})
		}
		return nil
	})
	if err != nil {
		return nil, storeerr.Wrap(err, "shelter", "failed to list clients")
	}
	sortListings(out)
	return out, nil
}

func sortListings(out []ClientListing) {
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Registration.CheckIn.After(out[j].Registration.CheckIn)
	})
}
