package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	schedmodels "shelterops/internal/scheduler/models"
	"shelterops/internal/shelter/models"
	id "shelterops/pkg/domain"
	"shelterops/pkg/platform/sentinel"
	txcontext "shelterops/pkg/platform/tx"
)

// PostgresStore persists entities in PostgreSQL. This store is pure I/O; all
// lifecycle rules belong in the shelter services.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// RunInTx opens a READ COMMITTED transaction; shelter rows are serialised with
// SELECT ... FOR UPDATE through LockShelter. A context already carrying a
// transaction joins it.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if sqlTx, ok := txcontext.From(ctx, s.db); ok {
		return fn(ctx, &pgTx{tx: sqlTx})
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return translate(fmt.Errorf("begin tx: %w", err))
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, s.db, sqlTx), &pgTx{tx: sqlTx}); err != nil {
		return translate(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return translate(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// translate maps driver errors onto store sentinels. Unique violations,
// serialization failures and deadlocks are all retryable conflicts. A CHECK
// violation means the engine tried to write a state the schema forbids.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "40001", "40P01":
			return fmt.Errorf("%w: %s", sentinel.ErrConflict, pgErr.Message)
		case "23503":
			return fmt.Errorf("%w: %s", sentinel.ErrNotFound, pgErr.Message)
		case "23514":
			return fmt.Errorf("%w: %s", sentinel.ErrInvalidState, pgErr.Message)
		}
	}
	return err
}

type pgTx struct {
	tx *sql.Tx
}

type rowScanner interface {
	Scan(dest ...any) error
}

func one[T any](row rowScanner, scan func(rowScanner) (T, error), kind string, key any) (T, error) {
	v, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, notFound(kind, key)
	}
	if err != nil {
		var zero T
		return zero, translate(fmt.Errorf("get %s: %w", kind, err))
	}
	return v, nil
}

func many[T any](rows *sql.Rows, err error, scan func(rowScanner) (T, error), kind string) ([]T, error) {
	if err != nil {
		return nil, translate(fmt.Errorf("list %s: %w", kind, err))
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", kind, err)
	}
	return out, nil
}

// exec runs a statement and reports NotFound when it touched no rows.
func (t *pgTx) exec(ctx context.Context, kind string, key any, query string, args ...any) error {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return translate(fmt.Errorf("write %s: %w", kind, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write %s rows affected: %w", kind, err)
	}
	if n == 0 {
		return notFound(kind, key)
	}
	return nil
}

func nullUUID[T ~[16]byte](v *T) uuid.NullUUID {
	if v == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*v), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// --- shelters ---------------------------------------------------------------

const shelterColumns = `id, name, type_id, service_id, location, phone, capacity, unavailable, tags, status, population, created_at, updated_at`

func scanShelter(row rowScanner) (*models.Shelter, error) {
	var (
		s       models.Shelter
		sid     uuid.UUID
		typeID  uuid.UUID
		tagsRaw []byte
		status  string
	)
	if err := row.Scan(&sid, &s.Name, &typeID, &s.ServiceID, &s.Location, &s.Phone, &s.Capacity,
		&s.Unavailable, &tagsRaw, &status, &s.Population, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.ID = id.ShelterID(sid)
	s.TypeID = id.ShelterTypeID(typeID)
	s.Status = models.Status(status)
	s.Tags = map[string]string{}
	if len(tagsRaw) > 0 {
		if err := json.Unmarshal(tagsRaw, &s.Tags); err != nil {
			return nil, fmt.Errorf("decode shelter tags: %w", err)
		}
	}
	return &s, nil
}

func (t *pgTx) GetShelter(ctx context.Context, shelterID id.ShelterID) (*models.Shelter, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+shelterColumns+` FROM shelters WHERE id = $1`, uuid.UUID(shelterID))
	return one(row, scanShelter, "shelter", shelterID)
}

func (t *pgTx) LockShelter(ctx context.Context, shelterID id.ShelterID) (*models.Shelter, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+shelterColumns+` FROM shelters WHERE id = $1 FOR UPDATE`, uuid.UUID(shelterID))
	return one(row, scanShelter, "shelter", shelterID)
}

func (t *pgTx) ListShelters(ctx context.Context) ([]*models.Shelter, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+shelterColumns+` FROM shelters ORDER BY lower(name)`)
	return many(rows, err, scanShelter, "shelters")
}

func (t *pgTx) InsertShelter(ctx context.Context, s *models.Shelter) error {
	tags, err := json.Marshal(s.Tags)
	if err != nil {
		return fmt.Errorf("encode shelter tags: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO shelters (`+shelterColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		uuid.UUID(s.ID), s.Name, uuid.UUID(s.TypeID), s.ServiceID, s.Location, s.Phone, s.Capacity,
		s.Unavailable, string(tags), string(s.Status), s.Population, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return translate(fmt.Errorf("insert shelter: %w", err))
	}
	return nil
}

func (t *pgTx) UpdateShelter(ctx context.Context, s *models.Shelter) error {
	tags, err := json.Marshal(s.Tags)
	if err != nil {
		return fmt.Errorf("encode shelter tags: %w", err)
	}
	return t.exec(ctx, "shelter", s.ID, `
		UPDATE shelters SET
			name = $2, type_id = $3, service_id = $4, location = $5, phone = $6, capacity = $7,
			unavailable = $8, tags = $9, status = $10, population = $11, updated_at = $12
		WHERE id = $1`,
		uuid.UUID(s.ID), s.Name, uuid.UUID(s.TypeID), s.ServiceID, s.Location, s.Phone, s.Capacity,
		s.Unavailable, string(tags), string(s.Status), s.Population, s.UpdatedAt)
}

func scanShelterType(row rowScanner) (*models.ShelterType, error) {
	var (
		st  models.ShelterType
		tid uuid.UUID
	)
	if err := row.Scan(&tid, &st.Name); err != nil {
		return nil, err
	}
	st.ID = id.ShelterTypeID(tid)
	return &st, nil
}

func (t *pgTx) GetShelterType(ctx context.Context, typeID id.ShelterTypeID) (*models.ShelterType, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT id, name FROM shelter_types WHERE id = $1`, uuid.UUID(typeID))
	return one(row, scanShelterType, "shelter type", typeID)
}

func (t *pgTx) FindShelterTypeByName(ctx context.Context, name string) (*models.ShelterType, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT id, name FROM shelter_types WHERE lower(name) = lower($1)`, name)
	return one(row, scanShelterType, "shelter type", name)
}

func (t *pgTx) ListShelterTypes(ctx context.Context) ([]*models.ShelterType, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id, name FROM shelter_types ORDER BY name`)
	return many(rows, err, scanShelterType, "shelter types")
}

func (t *pgTx) InsertShelterType(ctx context.Context, st *models.ShelterType) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO shelter_types (id, name) VALUES ($1, $2)`, uuid.UUID(st.ID), st.Name)
	if err != nil {
		return translate(fmt.Errorf("insert shelter type: %w", err))
	}
	return nil
}

// --- persons ----------------------------------------------------------------

const personColumns = `id, kind, reference_label, first_name, middle_name, last_name, date_of_birth, gender,
	comments, tags, pets, pet_details, organisation, current_shelter_id, created_at, updated_at`

func scanPerson(row rowScanner) (*models.Person, error) {
	var (
		p       models.Person
		pid     uuid.UUID
		kind    string
		dob     sql.NullTime
		tags    pq.StringArray
		shelter uuid.NullUUID
	)
	if err := row.Scan(&pid, &kind, &p.ReferenceLabel, &p.FirstName, &p.MiddleName, &p.LastName, &dob, &p.Gender,
		&p.Comments, &tags, &p.Pets, &p.PetDetails, &p.Organisation, &shelter, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ID = id.PersonID(pid)
	p.Kind = models.PersonKind(kind)
	p.DateOfBirth = timePtr(dob)
	if len(tags) > 0 {
		p.Tags = []string(tags)
	}
	if shelter.Valid {
		sid := id.ShelterID(shelter.UUID)
		p.CurrentShelterID = &sid
	}
	return &p, nil
}

func personArgs(p *models.Person) []any {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return []any{
		uuid.UUID(p.ID), string(p.Kind), p.ReferenceLabel, p.FirstName, p.MiddleName, p.LastName,
		nullTime(p.DateOfBirth), p.Gender, p.Comments, pq.Array(tags), p.Pets, p.PetDetails,
		p.Organisation, nullUUID(p.CurrentShelterID), p.CreatedAt, p.UpdatedAt,
	}
}

func (t *pgTx) GetPerson(ctx context.Context, personID id.PersonID) (*models.Person, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+personColumns+` FROM persons WHERE id = $1`, uuid.UUID(personID))
	return one(row, scanPerson, "person", personID)
}

func (t *pgTx) FindClientByReference(ctx context.Context, ref string) (*models.Person, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, notFound("client reference", ref)
	}
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+personColumns+` FROM persons
		WHERE kind = 'client' AND lower(reference_label) = lower($1)
		  AND first_name <> $2 AND last_name <> $2
		ORDER BY created_at
		LIMIT 1`, ref, models.AnonymisedName)
	return one(row, scanPerson, "client reference", ref)
}

func (t *pgTx) InsertPerson(ctx context.Context, p *models.Person) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO persons (`+personColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		personArgs(p)...)
	if err != nil {
		return translate(fmt.Errorf("insert person: %w", err))
	}
	return nil
}

func (t *pgTx) UpdatePerson(ctx context.Context, p *models.Person) error {
	return t.exec(ctx, "person", p.ID, `
		UPDATE persons SET
			kind = $2, reference_label = $3, first_name = $4, middle_name = $5, last_name = $6,
			date_of_birth = $7, gender = $8, comments = $9, tags = $10, pets = $11, pet_details = $12,
			organisation = $13, current_shelter_id = $14, updated_at = $15
		WHERE id = $1`,
		append(personArgs(p)[:14:14], p.UpdatedAt)...)
}

func scanAddress(row rowScanner) (*models.Address, error) {
	var (
		a        models.Address
		aid, pid uuid.UUID
		kind     string
	)
	if err := row.Scan(&aid, &pid, &kind, &a.Street, &a.Locality, &a.Postcode, &a.Comments); err != nil {
		return nil, err
	}
	a.ID = id.AddressID(aid)
	a.PersonID = id.PersonID(pid)
	a.Kind = models.AddressKind(kind)
	return &a, nil
}

func (t *pgTx) ListAddresses(ctx context.Context, personID id.PersonID) ([]*models.Address, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, person_id, kind, street, locality, postcode, comments
		FROM addresses WHERE person_id = $1 ORDER BY kind`, uuid.UUID(personID))
	return many(rows, err, scanAddress, "addresses")
}

func (t *pgTx) UpsertAddress(ctx context.Context, a *models.Address) error {
	var aid uuid.UUID
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO addresses (id, person_id, kind, street, locality, postcode, comments)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (person_id, kind) DO UPDATE SET
			street = EXCLUDED.street,
			locality = EXCLUDED.locality,
			postcode = EXCLUDED.postcode,
			comments = EXCLUDED.comments
		RETURNING id`,
		uuid.UUID(a.ID), uuid.UUID(a.PersonID), string(a.Kind), a.Street, a.Locality, a.Postcode, a.Comments,
	).Scan(&aid)
	if err != nil {
		return translate(fmt.Errorf("upsert address: %w", err))
	}
	a.ID = id.AddressID(aid)
	return nil
}

func scanContact(row rowScanner) (*models.Contact, error) {
	var (
		c        models.Contact
		cid, pid uuid.UUID
	)
	if err := row.Scan(&cid, &pid, &c.Method, &c.Value, &c.Deletable); err != nil {
		return nil, err
	}
	c.ID = id.ContactID(cid)
	c.PersonID = id.PersonID(pid)
	return &c, nil
}

func (t *pgTx) ListContacts(ctx context.Context, personID id.PersonID) ([]*models.Contact, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, person_id, method, value, deletable
		FROM contacts WHERE person_id = $1 ORDER BY method, id`, uuid.UUID(personID))
	return many(rows, err, scanContact, "contacts")
}

func (t *pgTx) InsertContact(ctx context.Context, c *models.Contact) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO contacts (id, person_id, method, value, deletable) VALUES ($1, $2, $3, $4, $5)`,
		uuid.UUID(c.ID), uuid.UUID(c.PersonID), c.Method, c.Value, c.Deletable)
	if err != nil {
		return translate(fmt.Errorf("insert contact: %w", err))
	}
	return nil
}

func (t *pgTx) UpdateContact(ctx context.Context, c *models.Contact) error {
	return t.exec(ctx, "contact", c.ID,
		`UPDATE contacts SET method = $2, value = $3, deletable = $4 WHERE id = $1`,
		uuid.UUID(c.ID), c.Method, c.Value, c.Deletable)
}

func (t *pgTx) DeleteContact(ctx context.Context, contactID id.ContactID) error {
	return t.exec(ctx, "contact", contactID, `DELETE FROM contacts WHERE id = $1`, uuid.UUID(contactID))
}

func scanNextOfKin(row rowScanner) (*models.NextOfKinLink, error) {
	var (
		l          models.NextOfKinLink
		pid, nokID uuid.UUID
	)
	if err := row.Scan(&pid, &nokID, &l.Relationship); err != nil {
		return nil, err
	}
	l.PersonID = id.PersonID(pid)
	l.NextOfKinID = id.PersonID(nokID)
	return &l, nil
}

func (t *pgTx) ListNextOfKin(ctx context.Context, personID id.PersonID) ([]*models.NextOfKinLink, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT person_id, next_of_kin_id, relationship FROM next_of_kin WHERE person_id = $1`, uuid.UUID(personID))
	return many(rows, err, scanNextOfKin, "next of kin")
}

func (t *pgTx) InsertNextOfKin(ctx context.Context, link *models.NextOfKinLink) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO next_of_kin (person_id, next_of_kin_id, relationship) VALUES ($1, $2, $3)`,
		uuid.UUID(link.PersonID), uuid.UUID(link.NextOfKinID), link.Relationship)
	if err != nil {
		return translate(fmt.Errorf("insert next of kin: %w", err))
	}
	return nil
}

func (t *pgTx) DeleteNextOfKin(ctx context.Context, personID, nextOfKinID id.PersonID) error {
	return t.exec(ctx, "next of kin link", nextOfKinID,
		`DELETE FROM next_of_kin WHERE person_id = $1 AND next_of_kin_id = $2`,
		uuid.UUID(personID), uuid.UUID(nextOfKinID))
}

// --- registrations ----------------------------------------------------------

const registrationColumns = `id, shelter_id, person_id, check_in, check_out, status, reason`

func scanRegistration(row rowScanner) (*models.Registration, error) {
	var (
		r             models.Registration
		rid, sid, pid uuid.UUID
		out           sql.NullTime
		status        string
	)
	if err := row.Scan(&rid, &sid, &pid, &r.CheckIn, &out, &status, &r.Reason); err != nil {
		return nil, err
	}
	r.ID = id.RegistrationID(rid)
	r.ShelterID = id.ShelterID(sid)
	r.PersonID = id.PersonID(pid)
	r.CheckOut = timePtr(out)
	r.Status = models.RegistrationStatus(status)
	return &r, nil
}

func (t *pgTx) GetRegistration(ctx context.Context, registrationID id.RegistrationID) (*models.Registration, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, uuid.UUID(registrationID))
	return one(row, scanRegistration, "registration", registrationID)
}

func (t *pgTx) ListRegistrations(ctx context.Context, filter models.RegistrationFilter) ([]*models.Registration, error) {
	var (
		where []string
		args  []any
	)
	if filter.ShelterID != nil {
		args = append(args, uuid.UUID(*filter.ShelterID))
		where = append(where, fmt.Sprintf("shelter_id = $%d", len(args)))
	}
	if filter.PersonID != nil {
		args = append(args, uuid.UUID(*filter.PersonID))
		where = append(where, fmt.Sprintf("person_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		args = append(args, pq.Array(statuses))
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	query := `SELECT ` + registrationColumns + ` FROM registrations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY check_in, id`
	rows, err := t.tx.QueryContext(ctx, query, args...)
	return many(rows, err, scanRegistration, "registrations")
}

func (t *pgTx) CountCheckedIn(ctx context.Context, shelterID id.ShelterID) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT count(*) FROM registrations WHERE shelter_id = $1 AND status = 'checked_in'`,
		uuid.UUID(shelterID)).Scan(&n)
	if err != nil {
		return 0, translate(fmt.Errorf("count checked in: %w", err))
	}
	return n, nil
}

func (t *pgTx) InsertRegistration(ctx context.Context, r *models.Registration) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO registrations (`+registrationColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.UUID(r.ID), uuid.UUID(r.ShelterID), uuid.UUID(r.PersonID), r.CheckIn, nullTime(r.CheckOut),
		string(r.Status), r.Reason)
	if err != nil {
		return translate(fmt.Errorf("insert registration: %w", err))
	}
	return nil
}

func (t *pgTx) UpdateRegistration(ctx context.Context, r *models.Registration) error {
	return t.exec(ctx, "registration", r.ID, `
		UPDATE registrations SET check_in = $2, check_out = $3, status = $4, reason = $5 WHERE id = $1`,
		uuid.UUID(r.ID), r.CheckIn, nullTime(r.CheckOut), string(r.Status), r.Reason)
}

func scanAssignment(row rowScanner) (*models.StaffAssignment, error) {
	var (
		a             models.StaffAssignment
		aid, sid, pid uuid.UUID
	)
	if err := row.Scan(&aid, &sid, &pid, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.ID = id.AssignmentID(aid)
	a.ShelterID = id.ShelterID(sid)
	a.PersonID = id.PersonID(pid)
	return &a, nil
}

func (t *pgTx) GetStaffAssignment(ctx context.Context, assignmentID id.AssignmentID) (*models.StaffAssignment, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, shelter_id, person_id, created_at FROM staff_assignments WHERE id = $1`, uuid.UUID(assignmentID))
	return one(row, scanAssignment, "staff assignment", assignmentID)
}

func (t *pgTx) ListStaffAssignments(ctx context.Context, shelterID id.ShelterID) ([]*models.StaffAssignment, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, shelter_id, person_id, created_at FROM staff_assignments
		WHERE shelter_id = $1 ORDER BY created_at`, uuid.UUID(shelterID))
	return many(rows, err, scanAssignment, "staff assignments")
}

func (t *pgTx) FindStaffAssignmentByPerson(ctx context.Context, personID id.PersonID) (*models.StaffAssignment, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, shelter_id, person_id, created_at FROM staff_assignments WHERE person_id = $1`, uuid.UUID(personID))
	return one(row, scanAssignment, "staff assignment for person", personID)
}

func (t *pgTx) InsertStaffAssignment(ctx context.Context, a *models.StaffAssignment) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO staff_assignments (id, shelter_id, person_id, created_at) VALUES ($1, $2, $3, $4)`,
		uuid.UUID(a.ID), uuid.UUID(a.ShelterID), uuid.UUID(a.PersonID), a.CreatedAt)
	if err != nil {
		return translate(fmt.Errorf("insert staff assignment: %w", err))
	}
	return nil
}

func (t *pgTx) DeleteStaffAssignment(ctx context.Context, assignmentID id.AssignmentID) error {
	return t.exec(ctx, "staff assignment", assignmentID,
		`DELETE FROM staff_assignments WHERE id = $1`, uuid.UUID(assignmentID))
}

// --- event log --------------------------------------------------------------

func scanEntry(row rowScanner) (*models.Entry, error) {
	var (
		e        models.Entry
		eid, sid uuid.UUID
		subject  uuid.NullUUID
		kind     string
		status   string
	)
	if err := row.Scan(&e.Seq, &eid, &sid, &e.ActorID, &e.ActorName, &e.Timestamp, &kind, &subject,
		&e.Comment, &e.Archived, &status); err != nil {
		return nil, err
	}
	e.ID = id.EntryID(eid)
	e.ShelterID = id.ShelterID(sid)
	e.Kind = models.EventKind(kind)
	e.StatusSnapshot = models.Status(status)
	if subject.Valid {
		pid := id.PersonID(subject.UUID)
		e.SubjectID = &pid
	}
	return &e, nil
}

func (t *pgTx) AppendEntry(ctx context.Context, e *models.Entry) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO event_log (id, shelter_id, actor_id, actor_name, ts, kind, subject_id, comment, archived, status_snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING seq`,
		uuid.UUID(e.ID), uuid.UUID(e.ShelterID), e.ActorID, e.ActorName, e.Timestamp, string(e.Kind),
		nullUUID(e.SubjectID), e.Comment, e.Archived, string(e.StatusSnapshot),
	).Scan(&e.Seq)
	if err != nil {
		return translate(fmt.Errorf("append event: %w", err))
	}
	return nil
}

func (t *pgTx) ListEntries(ctx context.Context, shelterID id.ShelterID, includeArchived bool) ([]*models.Entry, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT seq, id, shelter_id, actor_id, actor_name, ts, kind, subject_id, comment, archived, status_snapshot
		FROM event_log
		WHERE shelter_id = $1 AND ($2 OR NOT archived)
		ORDER BY ts, seq`, uuid.UUID(shelterID), includeArchived)
	return many(rows, err, scanEntry, "event log")
}

func (t *pgTx) ArchiveEntries(ctx context.Context, shelterID id.ShelterID) (int, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE event_log SET archived = TRUE WHERE shelter_id = $1 AND NOT archived`, uuid.UUID(shelterID))
	if err != nil {
		return 0, translate(fmt.Errorf("archive event log: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive event log rows affected: %w", err)
	}
	return int(n), nil
}

// --- workflow tags ----------------------------------------------------------

func scanTag(row rowScanner) (*models.WorkflowTag, error) {
	var (
		tag      models.WorkflowTag
		tid, sid uuid.UUID
		value    string
	)
	if err := row.Scan(&tid, &sid, &tag.Key, &value, &tag.UpdatedAt); err != nil {
		return nil, err
	}
	tag.ID = id.TagID(tid)
	tag.ShelterID = id.ShelterID(sid)
	tag.Value = models.WorkflowValue(value)
	return &tag, nil
}

func (t *pgTx) GetWorkflowTag(ctx context.Context, shelterID id.ShelterID, key string) (*models.WorkflowTag, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, shelter_id, key, value, updated_at FROM workflow_tags
		WHERE shelter_id = $1 AND key = $2`, uuid.UUID(shelterID), key)
	return one(row, scanTag, "workflow tag for shelter", shelterID)
}

func (t *pgTx) GetWorkflowTagByID(ctx context.Context, tagID id.TagID) (*models.WorkflowTag, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, shelter_id, key, value, updated_at FROM workflow_tags WHERE id = $1`, uuid.UUID(tagID))
	return one(row, scanTag, "workflow tag", tagID)
}

func (t *pgTx) UpsertWorkflowTag(ctx context.Context, tag *models.WorkflowTag) error {
	var tid uuid.UUID
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO workflow_tags (id, shelter_id, key, value, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (shelter_id, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
		RETURNING id`,
		uuid.UUID(tag.ID), uuid.UUID(tag.ShelterID), tag.Key, string(tag.Value), tag.UpdatedAt,
	).Scan(&tid)
	if err != nil {
		return translate(fmt.Errorf("upsert workflow tag: %w", err))
	}
	tag.ID = id.TagID(tid)
	return nil
}

func (t *pgTx) DeleteWorkflowTag(ctx context.Context, shelterID id.ShelterID, key string) error {
	return t.exec(ctx, "workflow tag for shelter", shelterID,
		`DELETE FROM workflow_tags WHERE shelter_id = $1 AND key = $2`, uuid.UUID(shelterID), key)
}

// --- scheduled tasks --------------------------------------------------------

const taskColumns = `id, name, args, vars, start_time, timeout_seconds, repeats, times_run, status, attempts,
	last_error, created_by, created_at, updated_at, last_run_time`

func scanTask(row rowScanner) (*schedmodels.Task, error) {
	var (
		task    schedmodels.Task
		tid     uuid.UUID
		timeout int
		status  string
		lastRun sql.NullTime
	)
	if err := row.Scan(&tid, &task.Name, &task.Args, &task.Vars, &task.StartTime, &timeout, &task.Repeats,
		&task.TimesRun, &status, &task.Attempts, &task.LastError, &task.CreatedBy, &task.CreatedAt,
		&task.UpdatedAt, &lastRun); err != nil {
		return nil, err
	}
	task.ID = id.TaskID(tid)
	task.Timeout = time.Duration(timeout) * time.Second
	task.Status = schedmodels.TaskStatus(status)
	task.LastRunTime = timePtr(lastRun)
	return &task, nil
}

func taskArgs(task *schedmodels.Task) []any {
	return []any{
		uuid.UUID(task.ID), task.Name, task.Args, task.Vars, task.StartTime, int(task.Timeout / time.Second),
		task.Repeats, task.TimesRun, string(task.Status), task.Attempts, task.LastError, task.CreatedBy,
		task.CreatedAt, task.UpdatedAt, nullTime(task.LastRunTime),
	}
}

func (t *pgTx) GetTask(ctx context.Context, taskID id.TaskID) (*schedmodels.Task, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = $1`, uuid.UUID(taskID))
	return one(row, scanTask, "task", taskID)
}

func (t *pgTx) FindTask(ctx context.Context, key schedmodels.Key) (*schedmodels.Task, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM scheduled_tasks WHERE name = $1 AND args = $2 AND vars = $3`,
		key.Name, key.Args, key.Vars)
	return one(row, scanTask, "task", key)
}

func (t *pgTx) InsertTask(ctx context.Context, task *schedmodels.Task) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		taskArgs(task)...)
	if err != nil {
		return translate(fmt.Errorf("insert task: %w", err))
	}
	return nil
}

func (t *pgTx) UpdateTask(ctx context.Context, task *schedmodels.Task) error {
	return t.exec(ctx, "task", task.ID, `
		UPDATE scheduled_tasks SET
			name = $2, args = $3, vars = $4, start_time = $5, timeout_seconds = $6, repeats = $7,
			times_run = $8, status = $9, attempts = $10, last_error = $11, created_by = $12,
			updated_at = $13, last_run_time = $14
		WHERE id = $1`,
		append(taskArgs(task)[:12:12], task.UpdatedAt, nullTime(task.LastRunTime))...)
}

func (t *pgTx) DeleteTask(ctx context.Context, taskID id.TaskID) error {
	return t.exec(ctx, "task", taskID, `DELETE FROM scheduled_tasks WHERE id = $1`, uuid.UUID(taskID))
}

// leaseExpired matches running rows whose claim outlived the task timeout
// plus the grace period. It mirrors schedmodels.Task.LeaseExpired.
var leaseExpired = fmt.Sprintf(`status = 'running' AND updated_at + make_interval(secs =>
	CASE WHEN timeout_seconds > 0 THEN timeout_seconds ELSE %d END + %d) <= $1`,
	int(schedmodels.DefaultTimeout/time.Second), int(schedmodels.LeaseGrace/time.Second))

// ClaimDueTasks uses SKIP LOCKED so concurrent workers never claim the same task.
func (t *pgTx) ClaimDueTasks(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*schedmodels.Task, error) {
	if _, err := t.tx.ExecContext(ctx, `
		UPDATE scheduled_tasks
		SET status = 'failed', last_error = $3, updated_at = $1
		WHERE `+leaseExpired+` AND attempts >= $2`,
		now, maxAttempts, schedmodels.LeaseExpiredError); err != nil {
		return nil, translate(fmt.Errorf("expire abandoned tasks: %w", err))
	}

	rows, err := t.tx.QueryContext(ctx, `
		WITH due AS (
			SELECT id FROM scheduled_tasks
			WHERE start_time <= $1
			  AND (status = 'queued'
			    OR (status = 'failed' AND attempts < $2)
			    OR (`+leaseExpired+` AND attempts < $2))
			ORDER BY start_time
			LIMIT NULLIF($3::int, 0)
			FOR UPDATE SKIP LOCKED
		)
		UPDATE scheduled_tasks st
		SET status = 'running', attempts = st.attempts + 1, updated_at = $1
		FROM due
		WHERE st.id = due.id
		RETURNING `+prefixColumns("st.", taskColumns),
		now, maxAttempts, limit)
	tasks, err := many(rows, err, scanTask, "due tasks")
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func prefixColumns(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
