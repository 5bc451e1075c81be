package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	schedmodels "shelterops/internal/scheduler/models"
	"shelterops/internal/shelter/models"
	id "shelterops/pkg/domain"
	"shelterops/pkg/platform/sentinel"
)

// MemoryStore keeps all entities in process. Transactions run one at a time
// against a private copy of the state that replaces the committed state only
// when the callback succeeds, so a failed operation leaves nothing behind.
type MemoryStore struct {
	mu    sync.Mutex
	state memoryState
}

type memoryState struct {
	shelters      map[id.ShelterID]*models.Shelter
	types         map[id.ShelterTypeID]*models.ShelterType
	persons       map[id.PersonID]*models.Person
	addresses     map[id.AddressID]*models.Address
	contacts      map[id.ContactID]*models.Contact
	nextOfKin     []*models.NextOfKinLink
	registrations map[id.RegistrationID]*models.Registration
	assignments   map[id.AssignmentID]*models.StaffAssignment
	entries       []*models.Entry
	tags          map[id.TagID]*models.WorkflowTag
	tasks         map[id.TaskID]*schedmodels.Task
	seq           int64
}

func newMemoryState() memoryState {
	return memoryState{
		shelters:      make(map[id.ShelterID]*models.Shelter),
		types:         make(map[id.ShelterTypeID]*models.ShelterType),
		persons:       make(map[id.PersonID]*models.Person),
		addresses:     make(map[id.AddressID]*models.Address),
		contacts:      make(map[id.ContactID]*models.Contact),
		registrations: make(map[id.RegistrationID]*models.Registration),
		assignments:   make(map[id.AssignmentID]*models.StaffAssignment),
		tags:          make(map[id.TagID]*models.WorkflowTag),
		tasks:         make(map[id.TaskID]*schedmodels.Task),
	}
}

func (s memoryState) clone() memoryState {
	cp := newMemoryState()
	for k, v := range s.shelters {
		cp.shelters[k] = v.Clone()
	}
	for k, v := range s.types {
		t := *v
		cp.types[k] = &t
	}
	for k, v := range s.persons {
		cp.persons[k] = v.Clone()
	}
	for k, v := range s.addresses {
		a := *v
		cp.addresses[k] = &a
	}
	for k, v := range s.contacts {
		c := *v
		cp.contacts[k] = &c
	}
	cp.nextOfKin = make([]*models.NextOfKinLink, 0, len(s.nextOfKin))
	for _, v := range s.nextOfKin {
		l := *v
		cp.nextOfKin = append(cp.nextOfKin, &l)
	}
	for k, v := range s.registrations {
		cp.registrations[k] = v.Clone()
	}
	for k, v := range s.assignments {
		a := *v
		cp.assignments[k] = &a
	}
	cp.entries = make([]*models.Entry, 0, len(s.entries))
	for _, v := range s.entries {
		cp.entries = append(cp.entries, v.Clone())
	}
	for k, v := range s.tags {
		t := *v
		cp.tags[k] = &t
	}
	for k, v := range s.tasks {
		cp.tasks[k] = v.Clone()
	}
	cp.seq = s.seq
	return cp
}

func NewMemory() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

type memTxKey struct{ store *MemoryStore }

// RunInTx runs fn against a copy of the state and commits it when fn returns nil.
// Nested calls with a transaction context join the outer transaction.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if tx, ok := ctx.Value(memTxKey{s}).(*memTx); ok {
		return fn(ctx, tx)
	}

	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{state: s.state.clone()}
	if err := fn(context.WithValue(ctx, memTxKey{s}, tx), tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.state = tx.state
	return nil
}

type memTx struct {
	state memoryState
}

func notFound(kind string, key any) error {
	return fmt.Errorf("%s %v: %w", kind, key, sentinel.ErrNotFound)
}

func conflict(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, sentinel.ErrConflict)...)
}

// --- shelters ---------------------------------------------------------------

func (t *memTx) GetShelter(_ context.Context, shelterID id.ShelterID) (*models.Shelter, error) {
	s, ok := t.state.shelters[shelterID]
	if !ok {
		return nil, notFound("shelter", shelterID)
	}
	return s.Clone(), nil
}

// LockShelter is a plain read: memory transactions are already serialised.
func (t *memTx) LockShelter(ctx context.Context, shelterID id.ShelterID) (*models.Shelter, error) {
	return t.GetShelter(ctx, shelterID)
}

func (t *memTx) ListShelters(context.Context) ([]*models.Shelter, error) {
	out := make([]*models.Shelter, 0, len(t.state.shelters))
	for _, s := range t.state.shelters {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NameKey() < out[j].NameKey() })
	return out, nil
}

func (t *memTx) InsertShelter(_ context.Context, s *models.Shelter) error {
	if _, ok := t.state.shelters[s.ID]; ok {
		return conflict("shelter %s exists", s.ID)
	}
	if err := t.checkShelterName(s); err != nil {
		return err
	}
	t.state.shelters[s.ID] = s.Clone()
	return nil
}

func (t *memTx) UpdateShelter(_ context.Context, s *models.Shelter) error {
	if _, ok := t.state.shelters[s.ID]; !ok {
		return notFound("shelter", s.ID)
	}
	if err := t.checkShelterName(s); err != nil {
		return err
	}
	t.state.shelters[s.ID] = s.Clone()
	return nil
}

func (t *memTx) checkShelterName(s *models.Shelter) error {
	for _, other := range t.state.shelters {
		if other.ID != s.ID && other.NameKey() == s.NameKey() {
			return conflict("shelter name %q taken", s.Name)
		}
	}
	return nil
}

func (t *memTx) GetShelterType(_ context.Context, typeID id.ShelterTypeID) (*models.ShelterType, error) {
	st, ok := t.state.types[typeID]
	if !ok {
		return nil, notFound("shelter type", typeID)
	}
	cp := *st
	return &cp, nil
}

func (t *memTx) FindShelterTypeByName(_ context.Context, name string) (*models.ShelterType, error) {
	for _, st := range t.state.types {
		if strings.EqualFold(st.Name, name) {
			cp := *st
			return &cp, nil
		}
	}
	return nil, notFound("shelter type", name)
}

func (t *memTx) ListShelterTypes(context.Context) ([]*models.ShelterType, error) {
	out := make([]*models.ShelterType, 0, len(t.state.types))
	for _, st := range t.state.types {
		cp := *st
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (t *memTx) InsertShelterType(_ context.Context, st *models.ShelterType) error {
	for _, other := range t.state.types {
		if other.ID == st.ID || strings.EqualFold(other.Name, st.Name) {
			return conflict("shelter type %q exists", st.Name)
		}
	}
	cp := *st
	t.state.types[st.ID] = &cp
	return nil
}

// --- persons ----------------------------------------------------------------

func (t *memTx) GetPerson(_ context.Context, personID id.PersonID) (*models.Person, error) {
	p, ok := t.state.persons[personID]
	if !ok {
		return nil, notFound("person", personID)
	}
	return p.Clone(), nil
}

func (t *memTx) FindClientByReference(_ context.Context, ref string) (*models.Person, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, notFound("client reference", ref)
	}
	var match *models.Person
	for _, p := range t.state.persons {
		if !p.IsClient() || p.IsAnonymised() || !strings.EqualFold(p.ReferenceLabel, ref) {
			continue
		}
		// Deterministic pick when legacy data holds duplicates.
		if match == nil || p.CreatedAt.Before(match.CreatedAt) {
			match = p
		}
	}
	if match == nil {
		return nil, notFound("client reference", ref)
	}
	return match.Clone(), nil
}

func (t *memTx) InsertPerson(_ context.Context, p *models.Person) error {
	if _, ok := t.state.persons[p.ID]; ok {
		return conflict("person %s exists", p.ID)
	}
	t.state.persons[p.ID] = p.Clone()
	return nil
}

func (t *memTx) UpdatePerson(_ context.Context, p *models.Person) error {
	if _, ok := t.state.persons[p.ID]; !ok {
		return notFound("person", p.ID)
	}
	t.state.persons[p.ID] = p.Clone()
	return nil
}

func (t *memTx) ListAddresses(_ context.Context, personID id.PersonID) ([]*models.Address, error) {
	var out []*models.Address
	for _, a := range t.state.addresses {
		if a.PersonID == personID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

func (t *memTx) UpsertAddress(_ context.Context, a *models.Address) error {
	if _, ok := t.state.persons[a.PersonID]; !ok {
		return notFound("person", a.PersonID)
	}
	for key, existing := range t.state.addresses {
		if existing.PersonID == a.PersonID && existing.Kind == a.Kind {
			a.ID = existing.ID
			delete(t.state.addresses, key)
		}
	}
	cp := *a
	t.state.addresses[a.ID] = &cp
	return nil
}

func (t *memTx) ListContacts(_ context.Context, personID id.PersonID) ([]*models.Contact, error) {
	var out []*models.Contact
	for _, c := range t.state.contacts {
		if c.PersonID == personID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method+out[i].ID.String() < out[j].Method+out[j].ID.String() })
	return out, nil
}

func (t *memTx) InsertContact(_ context.Context, c *models.Contact) error {
	if _, ok := t.state.persons[c.PersonID]; !ok {
		return notFound("person", c.PersonID)
	}
	cp := *c
	t.state.contacts[c.ID] = &cp
	return nil
}

func (t *memTx) UpdateContact(_ context.Context, c *models.Contact) error {
	if _, ok := t.state.contacts[c.ID]; !ok {
		return notFound("contact", c.ID)
	}
	cp := *c
	t.state.contacts[c.ID] = &cp
	return nil
}

func (t *memTx) DeleteContact(_ context.Context, contactID id.ContactID) error {
	if _, ok := t.state.contacts[contactID]; !ok {
		return notFound("contact", contactID)
	}
	delete(t.state.contacts, contactID)
	return nil
}

func (t *memTx) ListNextOfKin(_ context.Context, personID id.PersonID) ([]*models.NextOfKinLink, error) {
	var out []*models.NextOfKinLink
	for _, l := range t.state.nextOfKin {
		if l.PersonID == personID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (t *memTx) InsertNextOfKin(_ context.Context, link *models.NextOfKinLink) error {
	if _, ok := t.state.persons[link.PersonID]; !ok {
		return notFound("person", link.PersonID)
	}
	if _, ok := t.state.persons[link.NextOfKinID]; !ok {
		return notFound("person", link.NextOfKinID)
	}
	for _, l := range t.state.nextOfKin {
		if l.PersonID == link.PersonID && l.NextOfKinID == link.NextOfKinID {
			return conflict("next of kin link exists")
		}
	}
	cp := *link
	t.state.nextOfKin = append(t.state.nextOfKin, &cp)
	return nil
}

func (t *memTx) DeleteNextOfKin(_ context.Context, personID, nextOfKinID id.PersonID) error {
	for i, l := range t.state.nextOfKin {
		if l.PersonID == personID && l.NextOfKinID == nextOfKinID {
			t.state.nextOfKin = append(t.state.nextOfKin[:i], t.state.nextOfKin[i+1:]...)
			return nil
		}
	}
	return notFound("next of kin link", nextOfKinID)
}

// --- registrations ----------------------------------------------------------

func (t *memTx) GetRegistration(_ context.Context, registrationID id.RegistrationID) (*models.Registration, error) {
	r, ok := t.state.registrations[registrationID]
	if !ok {
		return nil, notFound("registration", registrationID)
	}
	return r.Clone(), nil
}

func (t *memTx) ListRegistrations(_ context.Context, filter models.RegistrationFilter) ([]*models.Registration, error) {
	var out []*models.Registration
	for _, r := range t.state.registrations {
		if filter.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CheckIn.Equal(out[j].CheckIn) {
			return out[i].CheckIn.Before(out[j].CheckIn)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (t *memTx) CountCheckedIn(_ context.Context, shelterID id.ShelterID) (int, error) {
	n := 0
	for _, r := range t.state.registrations {
		if r.ShelterID == shelterID && r.IsActive() {
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertRegistration(_ context.Context, r *models.Registration) error {
	if _, ok := t.state.registrations[r.ID]; ok {
		return conflict("registration %s exists", r.ID)
	}
	if r.IsActive() {
		if err := t.checkSingleActive(r); err != nil {
			return err
		}
	}
	t.state.registrations[r.ID] = r.Clone()
	return nil
}

func (t *memTx) UpdateRegistration(_ context.Context, r *models.Registration) error {
	if _, ok := t.state.registrations[r.ID]; !ok {
		return notFound("registration", r.ID)
	}
	if r.IsActive() {
		if err := t.checkSingleActive(r); err != nil {
			return err
		}
	}
	t.state.registrations[r.ID] = r.Clone()
	return nil
}

// checkSingleActive mirrors the partial unique index on active registrations.
func (t *memTx) checkSingleActive(r *models.Registration) error {
	for _, other := range t.state.registrations {
		if other.ID != r.ID && other.PersonID == r.PersonID && other.IsActive() {
			return conflict("person %s already checked in", r.PersonID)
		}
	}
	return nil
}

func (t *memTx) GetStaffAssignment(_ context.Context, assignmentID id.AssignmentID) (*models.StaffAssignment, error) {
	a, ok := t.state.assignments[assignmentID]
	if !ok {
		return nil, notFound("staff assignment", assignmentID)
	}
	cp := *a
	return &cp, nil
}

func (t *memTx) ListStaffAssignments(_ context.Context, shelterID id.ShelterID) ([]*models.StaffAssignment, error) {
	var out []*models.StaffAssignment
	for _, a := range t.state.assignments {
		if a.ShelterID == shelterID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) FindStaffAssignmentByPerson(_ context.Context, personID id.PersonID) (*models.StaffAssignment, error) {
	for _, a := range t.state.assignments {
		if a.PersonID == personID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, notFound("staff assignment for person", personID)
}

func (t *memTx) InsertStaffAssignment(_ context.Context, a *models.StaffAssignment) error {
	for _, other := range t.state.assignments {
		if other.PersonID == a.PersonID {
			return conflict("staff %s already assigned", a.PersonID)
		}
	}
	cp := *a
	t.state.assignments[a.ID] = &cp
	return nil
}

func (t *memTx) DeleteStaffAssignment(_ context.Context, assignmentID id.AssignmentID) error {
	if _, ok := t.state.assignments[assignmentID]; !ok {
		return notFound("staff assignment", assignmentID)
	}
	delete(t.state.assignments, assignmentID)
	return nil
}

// --- event log --------------------------------------------------------------

func (t *memTx) AppendEntry(_ context.Context, e *models.Entry) error {
	t.state.seq++
	e.Seq = t.state.seq
	t.state.entries = append(t.state.entries, e.Clone())
	return nil
}

func (t *memTx) ListEntries(_ context.Context, shelterID id.ShelterID, includeArchived bool) ([]*models.Entry, error) {
	var out []*models.Entry
	for _, e := range t.state.entries {
		if e.ShelterID != shelterID || (e.Archived && !includeArchived) {
			continue
		}
		out = append(out, e.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (t *memTx) ArchiveEntries(_ context.Context, shelterID id.ShelterID) (int, error) {
	n := 0
	for _, e := range t.state.entries {
		if e.ShelterID == shelterID && !e.Archived {
			e.Archived = true
			n++
		}
	}
	return n, nil
}

// --- workflow tags ----------------------------------------------------------

func (t *memTx) GetWorkflowTag(_ context.Context, shelterID id.ShelterID, key string) (*models.WorkflowTag, error) {
	for _, tag := range t.state.tags {
		if tag.ShelterID == shelterID && tag.Key == key {
			cp := *tag
			return &cp, nil
		}
	}
	return nil, notFound("workflow tag for shelter", shelterID)
}

func (t *memTx) GetWorkflowTagByID(_ context.Context, tagID id.TagID) (*models.WorkflowTag, error) {
	tag, ok := t.state.tags[tagID]
	if !ok {
		return nil, notFound("workflow tag", tagID)
	}
	cp := *tag
	return &cp, nil
}

func (t *memTx) UpsertWorkflowTag(_ context.Context, tag *models.WorkflowTag) error {
	for _, existing := range t.state.tags {
		if existing.ShelterID == tag.ShelterID && existing.Key == tag.Key {
			tag.ID = existing.ID
			break
		}
	}
	cp := *tag
	t.state.tags[tag.ID] = &cp
	return nil
}

func (t *memTx) DeleteWorkflowTag(_ context.Context, shelterID id.ShelterID, key string) error {
	for tagID, tag := range t.state.tags {
		if tag.ShelterID == shelterID && tag.Key == key {
			delete(t.state.tags, tagID)
			return nil
		}
	}
	return notFound("workflow tag for shelter", shelterID)
}

// --- scheduled tasks --------------------------------------------------------

func (t *memTx) GetTask(_ context.Context, taskID id.TaskID) (*schedmodels.Task, error) {
	task, ok := t.state.tasks[taskID]
	if !ok {
		return nil, notFound("task", taskID)
	}
	return task.Clone(), nil
}

func (t *memTx) FindTask(_ context.Context, key schedmodels.Key) (*schedmodels.Task, error) {
	for _, task := range t.state.tasks {
		if task.Key() == key {
			return task.Clone(), nil
		}
	}
	return nil, notFound("task", key)
}

func (t *memTx) InsertTask(_ context.Context, task *schedmodels.Task) error {
	for _, existing := range t.state.tasks {
		if existing.ID == task.ID || existing.Key() == task.Key() {
			return conflict("task %s exists", task.Key())
		}
	}
	t.state.tasks[task.ID] = task.Clone()
	return nil
}

func (t *memTx) UpdateTask(_ context.Context, task *schedmodels.Task) error {
	if _, ok := t.state.tasks[task.ID]; !ok {
		return notFound("task", task.ID)
	}
	t.state.tasks[task.ID] = task.Clone()
	return nil
}

func (t *memTx) DeleteTask(_ context.Context, taskID id.TaskID) error {
	if _, ok := t.state.tasks[taskID]; !ok {
		return notFound("task", taskID)
	}
	delete(t.state.tasks, taskID)
	return nil
}

func (t *memTx) ClaimDueTasks(_ context.Context, now time.Time, maxAttempts, limit int) ([]*schedmodels.Task, error) {
	var due []*schedmodels.Task
	for _, task := range t.state.tasks {
		switch {
		case task.IsDue(now, maxAttempts):
			due = append(due, task)
		case task.IsAbandoned(now, maxAttempts):
			task.Status = schedmodels.TaskFailed
			task.LastError = schedmodels.LeaseExpiredError
			task.UpdatedAt = now
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].StartTime.Before(due[j].StartTime) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]*schedmodels.Task, 0, len(due))
	for _, task := range due {
		task.Status = schedmodels.TaskRunning
		task.Attempts++
		task.UpdatedAt = now
		out = append(out, task.Clone())
	}
	return out, nil
}
