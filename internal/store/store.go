// Package store is the transactional entity store behind every engine operation.
//
// All reads and writes go through a Tx obtained from Store.RunInTx. A call made
// with a context that already carries a transaction of the same store joins it,
// so engine operations compose without opening nested transactions. Errors are
// sentinel facts (sentinel.ErrNotFound, sentinel.ErrConflict); services translate
// them into domain errors.
package store

import (
	"context"
	"time"

	schedmodels "shelterops/internal/scheduler/models"
	"shelterops/internal/shelter/models"
	id "shelterops/pkg/domain"
)

// DefaultTxTimeout bounds transactions started without a context deadline.
const DefaultTxTimeout = 5 * time.Second

// Store opens transactions.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the full set of entity operations available inside a transaction.
type Tx interface {
	ShelterTx
	PersonTx
	RegistrationTx
	EventTx
	WorkflowTx
	TaskTx
}

type ShelterTx interface {
	GetShelter(ctx context.Context, shelterID id.ShelterID) (*models.Shelter, error)
	// LockShelter loads the shelter and holds it for the rest of the transaction.
	LockShelter(ctx context.Context, shelterID id.ShelterID) (*models.Shelter, error)
	ListShelters(ctx context.Context) ([]*models.Shelter, error)
	InsertShelter(ctx context.Context, s *models.Shelter) error
	UpdateShelter(ctx context.Context, s *models.Shelter) error

	GetShelterType(ctx context.Context, typeID id.ShelterTypeID) (*models.ShelterType, error)
	FindShelterTypeByName(ctx context.Context, name string) (*models.ShelterType, error)
	ListShelterTypes(ctx context.Context) ([]*models.ShelterType, error)
	InsertShelterType(ctx context.Context, t *models.ShelterType) error
}

type PersonTx interface {
	GetPerson(ctx context.Context, personID id.PersonID) (*models.Person, error)
	// FindClientByReference matches client records only; next-of-kin and
	// anonymised persons never match.
	FindClientByReference(ctx context.Context, ref string) (*models.Person, error)
	InsertPerson(ctx context.Context, p *models.Person) error
	UpdatePerson(ctx context.Context, p *models.Person) error

	ListAddresses(ctx context.Context, personID id.PersonID) ([]*models.Address, error)
	// UpsertAddress replaces the person's address of the same kind.
	UpsertAddress(ctx context.Context, a *models.Address) error

	ListContacts(ctx context.Context, personID id.PersonID) ([]*models.Contact, error)
	InsertContact(ctx context.Context, c *models.Contact) error
	UpdateContact(ctx context.Context, c *models.Contact) error
	DeleteContact(ctx context.Context, contactID id.ContactID) error

	ListNextOfKin(ctx context.Context, personID id.PersonID) ([]*models.NextOfKinLink, error)
	InsertNextOfKin(ctx context.Context, link *models.NextOfKinLink) error
	DeleteNextOfKin(ctx context.Context, personID, nextOfKinID id.PersonID) error
}

type RegistrationTx interface {
	GetRegistration(ctx context.Context, registrationID id.RegistrationID) (*models.Registration, error)
	ListRegistrations(ctx context.Context, filter models.RegistrationFilter) ([]*models.Registration, error)
	CountCheckedIn(ctx context.Context, shelterID id.ShelterID) (int, error)
	InsertRegistration(ctx context.Context, r *models.Registration) error
	UpdateRegistration(ctx context.Context, r *models.Registration) error

	GetStaffAssignment(ctx context.Context, assignmentID id.AssignmentID) (*models.StaffAssignment, error)
	ListStaffAssignments(ctx context.Context, shelterID id.ShelterID) ([]*models.StaffAssignment, error)
	FindStaffAssignmentByPerson(ctx context.Context, personID id.PersonID) (*models.StaffAssignment, error)
	InsertStaffAssignment(ctx context.Context, a *models.StaffAssignment) error
	DeleteStaffAssignment(ctx context.Context, assignmentID id.AssignmentID) error
}

type EventTx interface {
	// AppendEntry assigns Seq and stores the entry.
	AppendEntry(ctx context.Context, e *models.Entry) error
	// ListEntries is ordered by (timestamp, seq).
	ListEntries(ctx context.Context, shelterID id.ShelterID, includeArchived bool) ([]*models.Entry, error)
	ArchiveEntries(ctx context.Context, shelterID id.ShelterID) (int, error)
}

type WorkflowTx interface {
	GetWorkflowTag(ctx context.Context, shelterID id.ShelterID, key string) (*models.WorkflowTag, error)
	GetWorkflowTagByID(ctx context.Context, tagID id.TagID) (*models.WorkflowTag, error)
	// UpsertWorkflowTag keeps the existing tag ID when one exists for (shelter, key)
	// and writes it back into t.
	UpsertWorkflowTag(ctx context.Context, t *models.WorkflowTag) error
	DeleteWorkflowTag(ctx context.Context, shelterID id.ShelterID, key string) error
}

type TaskTx interface {
	GetTask(ctx context.Context, taskID id.TaskID) (*schedmodels.Task, error)
	FindTask(ctx context.Context, key schedmodels.Key) (*schedmodels.Task, error)
	InsertTask(ctx context.Context, t *schedmodels.Task) error
	UpdateTask(ctx context.Context, t *schedmodels.Task) error
	DeleteTask(ctx context.Context, taskID id.TaskID) error
	// ClaimDueTasks marks up to limit due tasks as running and returns them.
	// Running tasks whose lease expired are claimed again while attempts
	// remain and marked failed once they are exhausted.
	ClaimDueTasks(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*schedmodels.Task, error)
}

// withDefaultTimeout applies DefaultTxTimeout when ctx has no deadline.
func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultTxTimeout)
}
