// Package handler exposes the shelter engine over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"shelterops/internal/shelter/directory"
	"shelterops/internal/shelter/importer"
	"shelterops/internal/shelter/models"
	"shelterops/internal/shelter/registration"
	"shelterops/internal/shelter/retention"
	id "shelterops/pkg/domain"
	dErrors "shelterops/pkg/domain-errors"
	"shelterops/pkg/platform/httputil"
	"shelterops/pkg/requestcontext"
)

// maxUploadBytes caps import workbooks.
const maxUploadBytes = 10 << 20

// Service is the shelter engine as seen from HTTP.
type Service interface {
	CreateShelter(ctx context.Context, in directory.CreateShelterInput) (*models.Shelter, error)
	GetShelter(ctx context.Context, shelterID id.ShelterID) (*directory.ShelterView, error)
	ListShelters(ctx context.Context) ([]directory.ShelterSummary, error)
	ListShelterTypes(ctx context.Context) ([]*models.ShelterType, error)
	SetStatus(ctx context.Context, shelterID id.ShelterID, requested string) (*models.Shelter, error)
	SetAvailability(ctx context.Context, shelterID id.ShelterID, unavailable bool) (*models.Shelter, error)
	UpdateDetails(ctx context.Context, shelterID id.ShelterID, update models.ShelterDetailsUpdate) (*models.Shelter, error)
	CheckIn(ctx context.Context, shelterID id.ShelterID, personID id.PersonID, opts registration.CheckInOptions) (*registration.CheckInResult, error)
	CheckOutRegistration(ctx context.Context, shelterID id.ShelterID, registrationID id.RegistrationID, destination string) (*models.Registration, error)
	ReleaseStaff(ctx context.Context, shelterID id.ShelterID, assignmentID id.AssignmentID) error
	HouseholdCheckIn(ctx context.Context, primaryID, memberID id.PersonID) (*registration.HouseholdResult, error)
	ListClients(ctx context.Context, shelterID id.ShelterID, statuses []models.RegistrationStatus) ([]directory.ClientListing, error)
	ListEvents(ctx context.Context, shelterID id.ShelterID, includeArchived bool) ([]*models.Entry, error)
	Export(ctx context.Context, shelterID id.ShelterID) (*retention.Artifact, error)
	Anonymise(ctx context.Context, shelterID id.ShelterID) (*retention.AnonymiseResult, error)
	ImportRegistrations(ctx context.Context, shelterID id.ShelterID, rows []importer.Row, replace bool) (*importer.Result, error)
	CreatePerson(ctx context.Context, in directory.CreatePersonInput) (*models.Person, error)
	GetPerson(ctx context.Context, personID id.PersonID) (*directory.PersonView, error)
	AddNextOfKin(ctx context.Context, personID id.PersonID, relationship string, in directory.CreatePersonInput) (*models.Person, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the shelter and person routes. Callers apply the actor
// middleware; handlers only read the actor for logging.
func (h *Handler) Register(r chi.Router) {
	r.Post("/shelter", h.HandleCreateShelter)
	r.Get("/shelter", h.HandleListShelters)
	r.Get("/shelter-types", h.HandleListShelterTypes)
	r.Route("/shelter/{id}", func(r chi.Router) {
		r.Get("/", h.HandleGetShelter)
		r.Post("/status", h.HandleSetStatus)
		r.Post("/availability", h.HandleSetAvailability)
		r.Post("/details", h.HandleUpdateDetails)
		r.Post("/checkin", h.HandleCheckIn)
		r.Post("/checkout/{registration_id}", h.HandleCheckOut)
		r.Delete("/staff/{assignment_id}", h.HandleReleaseStaff)
		r.Get("/clients", h.HandleListClients)
		r.Get("/events", h.HandleListEvents)
		r.Post("/export", h.HandleExport)
		r.Post("/anonymise", h.HandleAnonymise)
		r.Post("/import", h.HandleImport)
	})
	r.Post("/person", h.HandleCreatePerson)
	r.Route("/person/{id}", func(r chi.Router) {
		r.Get("/", h.HandleGetPerson)
		r.Post("/household", h.HandleHousehold)
		r.Post("/next-of-kin", h.HandleAddNextOfKin)
	})
}

func (h *Handler) shelterID(w http.ResponseWriter, r *http.Request) (id.ShelterID, bool) {
	shelterID, err := id.ParseShelterID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.ShelterID{}, false
	}
	return shelterID, true
}

func (h *Handler) personID(w http.ResponseWriter, r *http.Request) (id.PersonID, bool) {
	personID, err := id.ParsePersonID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.PersonID{}, false
	}
	return personID, true
}

// fail logs at a level matching the error class and writes the error body.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	attrs = append(attrs,
		"request_id", requestcontext.RequestID(ctx),
		"actor_id", requestcontext.ActorFrom(ctx).UserID,
		"error", err,
	)
	if dErrors.ToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.InfoContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

// decodeOptional treats an empty body as the zero request.
func decodeOptional[T any, PT interface {
	*T
	httputil.Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*T, bool) {
	if r.ContentLength == 0 {
		var zero T
		if err := PT(&zero).Validate(); err != nil {
			httputil.WriteError(w, err)
			return nil, false
		}
		return &zero, true
	}
	ctx := r.Context()
	return httputil.DecodeAndPrepare[T, PT](w, r, logger, ctx, requestcontext.RequestID(ctx))
}

func (h *Handler) HandleCreateShelter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateShelterRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	sh, err := h.service.CreateShelter(ctx, req.Input())
	if err != nil {
		h.fail(ctx, w, "create shelter failed", err, "name", req.Name)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, sh)
}

func (h *Handler) HandleListShelters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shelters, err := h.service.ListShelters(ctx)
	if err != nil {
		h.fail(ctx, w, "list shelters failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse[directory.ShelterSummary]{Items: shelters})
}

func (h *Handler) HandleListShelterTypes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	types, err := h.service.ListShelterTypes(ctx)
	if err != nil {
		h.fail(ctx, w, "list shelter types failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse[*models.ShelterType]{Items: types})
}

func (h *Handler) HandleGetShelter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shelterID, ok := h.shelterID(w, r)
	if !ok {
		return
	}
	view, err := h.service.GetShelter(ctx, shelterID)
	if err != nil {
		h.fail(ctx, w, "get shelter failed", err, "shelter_id", shelterID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shelterID, ok := h.shelterID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SetStatusRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	sh, err := h.service.SetStatus(ctx, shelterID, req.Status)
	if err != nil {
		h.fail(ctx, w, "set status failed", err, "shelter_id", shelterID.String(), "status", req.Status)
		return
	}
	h.logger.InfoContext(ctx, "shelter status set",
		"request_id", requestcontext.RequestID(ctx),
		"shelter_id", shelterID.String(),
		"status", string(sh.Status),
	)
	httputil.WriteJSON(w, http.StatusOK, sh)
}

func (h *Handler) HandleSetAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shelterID, ok := h.shelterID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AvailabilityRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	sh, err := h.service.SetAvailability(ctx, shelterID, *req.Unavailable)
	if err != nil {
		h.fail(ctx, w, "set availability failed", err, "shelter_id", shelterID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sh)
}

func (h *Handler) HandleUpdateDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shelterID, ok := h.shelterID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateDetailsRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	sh, err := h.service.UpdateDetails(ctx, shelterID, req.Update())
	if err != nil {
		h.fail(ctx, w, "update details failed", err, "shelter_id", shelterID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sh)
}

func (h *Handler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shelterID, ok := h.shelterID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CheckInRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.service.CheckIn(ctx, shelterID, req.ParsedPersonID(), req.Options())
	if err != nil {
		h.fail(ctx, w, "check-in failed", err, "shelter_id", shelterID.String(), "person_id", req.PersonID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleCheckOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shelterID, ok := h.shelterID(w, r)
	if !ok {
		return
	}
	registrationID, err := id.ParseRegistrationID(chi.URLParam(r, "registration_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := decodeOptional[CheckOutRequest](w, r, h.logger)
	if !ok {
		return
	}
	reg, err := h.service.CheckOutRegistration(ctx, shelterID, registrationID, req.Destination)
	if err != nil {
		h.fail(ctx, w, "check-out failed", err, "shelter_id", shelterID.String(), "registration_id", registrationID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reg)
}

func (h *Handler) HandleReleaseStaff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shelterID, ok := h.shelterID(w, r)
	if !ok {
		return
	}
	assignmentID, err := id.ParseAssignmentID(chi.URLParam(r, "assignment_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.ReleaseStaff(ctx, shelterID, assignmentID); err != nil {
		h.fail(ctx, w, "release staff failed", err, "shelter_id", shelterID.String(), "assignment_id", assignmentID.String())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListClients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shelterID, ok := h.shelterID(w, r)
	if !ok {
		return
	}
	statuses, err := parseStatuses(r.URL.Query()["status"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	clients, err := h.service.ListClients(ctx, shelterID, statuses)
	if err != nil {
		h.fail(ctx, w, "list clients failed", err, "shelter_id", shelterID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse[directory.ClientListing]{Items: clients})
}

func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shelterID, ok := h.shelterID(w, r)
	if !ok {
		return
	}
	includeArchived := false
	if raw := r.URL.Query().Get("include_archived"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "include_archived must be true or false"))
			return
		}
		includeArchived = v
	}
	entries, err := h.service.ListEvents(ctx, shelterID, includeArchived)
	if err != nil {
		h.fail(ctx, w, "list events failed", err, "shelter_id", shelterID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse[*models.Entry]{Items: entries})
}

// HandleExport returns the workbook itself; the tag and task bookkeeping is
// already committed when the body is written.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shelterID, ok := h.shelterID(w, r)
	if !ok {
		return
	}
	artifact, err := h.service.Export(ctx, shelterID)
	if err != nil {
		h.fail(ctx, w, "export failed", err, "shelter_id", shelterID.String())
		return
	}
	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+artifact.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(artifact.Data); err != nil {
		h.logger.WarnContext(ctx, "failed to write export body",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

func (h *Handler) HandleAnonymise(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shelterID, ok := h.shelterID(w, r)
	if !ok {
		return
	}
	res, err := h.service.Anonymise(ctx, shelterID)
	if err != nil {
		h.fail(ctx, w, "anonymise failed", err, "shelter_id", shelterID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleImport reads a multipart form with the workbook in "file" and an
// optional boolean "replace".
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shelterID, ok := h.shelterID(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "expected a multipart form with a workbook file"))
		return
	}
	replace := false
	if raw := strings.TrimSpace(r.FormValue("replace")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "replace must be true or false"))
			return
		}
		replace = v
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "file is required"))
		return
	}
	defer file.Close()

	rows, err := importer.ParseWorkbook(file)
	if err != nil {
		h.fail(ctx, w, "import parse failed", err, "shelter_id", shelterID.String(), "filename", header.Filename)
		return
	}
	res, err := h.service.ImportRegistrations(ctx, shelterID, rows, replace)
	if err != nil {
		h.fail(ctx, w, "import failed", err, "shelter_id", shelterID.String(), "filename", header.Filename)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleCreatePerson(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreatePersonRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	p, err := h.service.CreatePerson(ctx, req.Input())
	if err != nil {
		h.fail(ctx, w, "create person failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) HandleGetPerson(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	personID, ok := h.personID(w, r)
	if !ok {
		return
	}
	view, err := h.service.GetPerson(ctx, personID)
	if err != nil {
		h.fail(ctx, w, "get person failed", err, "person_id", personID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleHousehold(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	primaryID, ok := h.personID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[HouseholdRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.service.HouseholdCheckIn(ctx, primaryID, req.ParsedMemberID())
	if err != nil {
		h.fail(ctx, w, "household check-in failed", err, "person_id", primaryID.String(), "member_id", req.MemberID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleAddNextOfKin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	personID, ok := h.personID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[NextOfKinRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	nok, err := h.service.AddNextOfKin(ctx, personID, strings.TrimSpace(req.Relationship), req.Input())
	if err != nil {
		h.fail(ctx, w, "add next of kin failed", err, "person_id", personID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, nok)
}
