package retention

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/xuri/excelize/v2"
	"go.uber.org/mock/gomock"

	"shelterops/internal/notifier"
	"shelterops/internal/scheduler"
	schedmodels "shelterops/internal/scheduler/models"
	"shelterops/internal/shelter/eventlog"
	"shelterops/internal/shelter/lifecycle"
	"shelterops/internal/shelter/models"
	"shelterops/internal/shelter/occupancy"
	"shelterops/internal/shelter/registration"
	"shelterops/internal/shelter/retention/mocks"
	"shelterops/internal/store"
	id "shelterops/pkg/domain"
	dErrors "shelterops/pkg/domain-errors"
	"shelterops/pkg/testutil"
)

const officer = "retention@council.example"

// RetentionSuite drives the workflow against the memory store with the
// scheduler and mailer mocked.
//
//go:generate mockgen -source=retention.go -destination=mocks/mocks.go -package=mocks Scheduler Mailer
type RetentionSuite struct {
	suite.Suite
	store     *store.MemoryStore
	events    *eventlog.Log
	tasks     *mocks.MockScheduler
	mailer    *mocks.MockMailer
	workflow  *Workflow
	lifecycle *lifecycle.Machine
	checkIns  *registration.Engine
	ctx       context.Context
	now       time.Time
	types     map[string]*models.ShelterType
	// comment given at every client check-in in givenClosedShelter
	checkInComment string
}

func TestRetentionSuite(t *testing.T) {
	suite.Run(t, new(RetentionSuite))
}

func (s *RetentionSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.store = store.NewMemory()
	s.now = time.Date(2026, 1, 20, 16, 0, 0, 0, time.UTC)
	s.ctx = testutil.ActorContext("officer-9", s.now)
	types, err := store.SeedShelterTypes(s.ctx, s.store)
	s.Require().NoError(err)
	s.types = types

	s.events = eventlog.New(s.store)
	occ := occupancy.New(s.store)
	s.tasks = mocks.NewMockScheduler(ctrl)
	s.mailer = mocks.NewMockMailer(ctrl)
	s.workflow = New(s.store, s.events, s.tasks, WithMailer(s.mailer), WithRetentionOfficer(officer))
	s.lifecycle = lifecycle.New(s.store, s.events, occ, nil)
	s.checkIns = registration.New(s.store, s.events, occ)
	s.checkInComment = ""
}

type fixture struct {
	shelter *models.Shelter
	alice   *models.Person
	bob     *models.Person
	kin     *models.Person
	staff   *models.Person
}

// givenClosedShelter builds a shelter with two clients (Alice has a
// next-of-kin, contacts and an address), one staff member, then closes it.
func (s *RetentionSuite) givenClosedShelter(name string) fixture {
	var f fixture
	var err error
	f.shelter, err = models.NewShelter(id.NewShelterID(), name, s.types[models.TypeNominated].ID, s.now)
	s.Require().NoError(err)

	dob := time.Date(1984, time.July, 12, 0, 0, 0, 0, time.UTC)
	f.alice = s.person(models.PersonKindClient, "Alice", "Smith", "K-1")
	f.alice.DateOfBirth = &dob
	f.alice.Gender = "F"
	f.bob = s.person(models.PersonKindClient, "Bob", "Jones", "K-2")
	f.kin = s.person(models.PersonKindNextOfKin, "Carol", "Smith", "")
	f.staff = s.person(models.PersonKindStaff, "Dan", "Warden", "")
	f.staff.Organisation = "Red Cross"

	s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertShelter(ctx, f.shelter); err != nil {
			return err
		}
		for _, p := range []*models.Person{f.alice, f.bob, f.kin, f.staff} {
			if err := tx.InsertPerson(ctx, p); err != nil {
				return err
			}
		}
		if err := tx.InsertNextOfKin(ctx, &models.NextOfKinLink{PersonID: f.alice.ID, NextOfKinID: f.kin.ID, Relationship: "sister"}); err != nil {
			return err
		}
		for _, c := range []*models.Contact{
			{ID: id.NewContactID(), PersonID: f.alice.ID, Method: "phone", Value: "07700 900000", Deletable: false},
			{ID: id.NewContactID(), PersonID: f.alice.ID, Method: "email", Value: "alice@example.com", Deletable: true},
			{ID: id.NewContactID(), PersonID: f.kin.ID, Method: "phone", Value: "07700 900001", Deletable: false},
		} {
			if err := tx.InsertContact(ctx, c); err != nil {
				return err
			}
		}
		return tx.UpsertAddress(ctx, &models.Address{
			ID: id.NewAddressID(), PersonID: f.alice.ID, Kind: models.AddressCurrent,
			Street: "4 Lake Road", Locality: "Keswick", Postcode: "CA12 5DQ", Comments: "ground floor flat",
		})
	}))

	for _, p := range []*models.Person{f.alice, f.bob} {
		_, err := s.checkIns.CheckInClient(s.ctx, registration.CheckInParams{ShelterID: f.shelter.ID, PersonID: p.ID, Comment: s.checkInComment})
		s.Require().NoError(err)
	}
	_, err = s.checkIns.AssignStaff(s.ctx, f.shelter.ID, f.staff.ID)
	s.Require().NoError(err)
	_, err = s.lifecycle.SetStatus(s.ctx, f.shelter.ID, models.StatusClosedRequest)
	s.Require().NoError(err)
	return f
}

func (s *RetentionSuite) person(kind models.PersonKind, first, last, ref string) *models.Person {
	p, err := models.NewPerson(id.NewPersonID(), kind, first, last, s.now)
	s.Require().NoError(err)
	p.ReferenceLabel = ref
	return p
}

func (s *RetentionSuite) reload(personID id.PersonID) *models.Person {
	var p *models.Person
	s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		p, err = tx.GetPerson(ctx, personID)
		return err
	}))
	return p
}

func (s *RetentionSuite) tag(shelterID id.ShelterID) *models.WorkflowTag {
	var tag *models.WorkflowTag
	_ = s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		tag, err = tx.GetWorkflowTag(ctx, shelterID, models.WorkflowKey)
		return err
	})
	return tag
}

func (s *RetentionSuite) expectSchedule(captured *scheduler.TaskSpec) {
	s.tasks.EXPECT().ScheduleOnce(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, spec scheduler.TaskSpec) (id.TaskID, error) {
			*captured = spec
			return id.NewTaskID(), nil
		})
}

func (s *RetentionSuite) export(f fixture) *Artifact {
	var spec scheduler.TaskSpec
	s.expectSchedule(&spec)
	s.mailer.EXPECT().SendEmail(gomock.Any(), gomock.Any())
	artifact, err := s.workflow.Export(s.ctx, f.shelter.ID)
	s.Require().NoError(err)
	return artifact
}

func (s *RetentionSuite) TestExportRequiresClosedShelter() {
	sh, err := models.NewShelter(id.NewShelterID(), "Open Hall", s.types[models.TypeNominated].ID, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertShelter(ctx, sh)
	}))

	_, err = s.workflow.Export(s.ctx, sh.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeShelterOpen))
	s.Nil(s.tag(sh.ID))
}

func (s *RetentionSuite) TestExport() {
	f := s.givenClosedShelter("Keswick")

	var spec scheduler.TaskSpec
	s.expectSchedule(&spec)
	var sent notifier.Message
	s.mailer.EXPECT().SendEmail(gomock.Any(), gomock.Any()).Do(func(_ context.Context, msg notifier.Message) {
		sent = msg
	})

	artifact, err := s.workflow.Export(s.ctx, f.shelter.ID)
	s.Require().NoError(err)

	s.Run("flags the shelter exported", func() {
		tag := s.tag(f.shelter.ID)
		s.Require().NotNil(tag)
		s.Equal(models.WorkflowExported, tag.Value)
		s.Equal(tag.ID, artifact.TagID)
	})

	s.Run("schedules anonymisation at the end of the retention period", func() {
		s.Equal(models.AnonymiseTaskName, spec.Name)
		s.Equal(models.AnonymiseTaskArgs(f.shelter.ID, artifact.TagID), spec.Args)
		s.True(spec.StartTime.Equal(s.now.Add(30 * 24 * time.Hour)))
		s.Equal(300*time.Second, spec.Timeout)
		s.Equal(1, spec.Repeats)
		s.Equal("officer-9", spec.CreatedBy)
	})

	s.Run("logs the export", func() {
		entries, err := s.events.List(s.ctx, f.shelter.ID, false)
		s.Require().NoError(err)
		last := entries[len(entries)-1]
		s.Equal(models.EventDataExport, last.Kind)
		s.Equal(models.CommentShelter, last.Comment)
	})

	s.Run("counts what went into the workbook", func() {
		s.Equal(2, artifact.Clients)
		s.Equal(1, artifact.Staff)
		s.GreaterOrEqual(artifact.LogRows, 4)
		s.Equal("keswick-export-20260120.xlsx", artifact.Filename)
	})

	s.Run("renders the three sheets", func() {
		wb, err := excelize.OpenReader(bytes.NewReader(artifact.Data))
		s.Require().NoError(err)
		defer wb.Close()
		s.Equal([]string{SheetClients, SheetStaff, SheetLog}, wb.GetSheetList())

		clients, err := wb.GetRows(SheetClients)
		s.Require().NoError(err)
		s.Require().Len(clients, 3)
		s.Equal(ClientHeaders, clients[0])
		s.Equal([]string{"K-1", "Smith", "", "Alice", "F", "12/07/1984"}, clients[1])

		staff, err := wb.GetRows(SheetStaff)
		s.Require().NoError(err)
		s.Require().Len(staff, 2)
		s.Equal([]string{"Red Cross", "Warden", "Dan"}, staff[1])

		log, err := wb.GetRows(SheetLog)
		s.Require().NoError(err)
		s.Equal(LogHeaders, log[0])
		s.Equal(artifact.LogRows+1, len(log))
	})

	s.Run("mails the artifact to the retention officer", func() {
		s.Equal([]string{officer}, sent.To)
		s.Contains(sent.Subject, "Keswick")
		s.Require().Len(sent.Attachments, 1)
		s.Equal(artifact.Filename, sent.Attachments[0].Filename)
	})
}

func (s *RetentionSuite) TestExportSwallowsScheduleFailure() {
	f := s.givenClosedShelter("Penrith")
	s.tasks.EXPECT().ScheduleOnce(gomock.Any(), gomock.Any()).Return(id.TaskID{}, errors.New("scheduler down"))
	s.mailer.EXPECT().SendEmail(gomock.Any(), gomock.Any())

	artifact, err := s.workflow.Export(s.ctx, f.shelter.ID)
	s.Require().NoError(err)
	s.NotEmpty(artifact.Data)
	s.Equal(models.WorkflowExported, s.tag(f.shelter.ID).Value)
}

// rosterFailingStore hands out transactions whose staff roster read fails,
// which only the export's workbook gathering performs.
type rosterFailingStore struct {
	store.Store
}

type rosterFailingTx struct {
	store.Tx
}

var errRosterUnavailable = errors.New("staff roster unavailable")

func (f rosterFailingStore) RunInTx(ctx context.Context, fn func(context.Context, store.Tx) error) error {
	return f.Store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, rosterFailingTx{Tx: tx})
	})
}

func (rosterFailingTx) ListStaffAssignments(context.Context, id.ShelterID) ([]*models.StaffAssignment, error) {
	return nil, errRosterUnavailable
}

func (s *RetentionSuite) TestFailedExportLeavesStoreUnchanged() {
	f := s.givenClosedShelter("Egremont")
	before, err := s.events.List(s.ctx, f.shelter.ID, false)
	s.Require().NoError(err)
	closedTag := s.tag(f.shelter.ID)
	s.Require().NotNil(closedTag)

	workflow := New(rosterFailingStore{Store: s.store}, s.events, s.tasks,
		WithMailer(s.mailer), WithRetentionOfficer(officer))
	// No ScheduleOnce or SendEmail expectation: neither may happen.
	_, err = workflow.Export(s.ctx, f.shelter.ID)
	s.Require().Error(err)
	s.ErrorIs(err, errRosterUnavailable)

	s.Equal(models.WorkflowClosed, s.tag(f.shelter.ID).Value, "the flag is not moved to EXPORTED")
	after, err := s.events.List(s.ctx, f.shelter.ID, false)
	s.Require().NoError(err)
	s.Equal(len(before), len(after), "no DataExport entry is kept")
}

func (s *RetentionSuite) TestExportTwiceKeepsOneTag() {
	f := s.givenClosedShelter("Cockermouth")
	first := s.export(f)
	second := s.export(f)
	s.Equal(first.TagID, second.TagID)
}

func (s *RetentionSuite) TestAnonymise() {
	f := s.givenClosedShelter("Keswick")
	artifact := s.export(f)

	s.tasks.EXPECT().Cancel(gomock.Any(), models.AnonymiseTaskName, models.AnonymiseTaskArgs(f.shelter.ID, artifact.TagID), gomock.Nil())
	s.mailer.EXPECT().SendEmail(gomock.Any(), gomock.Any())

	result, err := s.workflow.Anonymise(s.ctx, f.shelter.ID, artifact.TagID)
	s.Require().NoError(err)
	s.False(result.AlreadyDone)
	s.Equal(3, result.Persons)

	s.Run("clients lose their personal data", func() {
		alice := s.reload(f.alice.ID)
		s.Equal(models.AnonymisedName, alice.FirstName)
		s.Equal(models.AnonymisedName, alice.LastName)
		s.Empty(alice.ReferenceLabel)
		s.Require().NotNil(alice.DateOfBirth)
		s.Equal(time.Date(1984, time.January, 1, 0, 0, 0, 0, time.UTC), *alice.DateOfBirth)
		s.True(s.reload(f.bob.ID).IsAnonymised())
	})

	s.Run("next of kin are anonymised and unlinked", func() {
		s.True(s.reload(f.kin.ID).IsAnonymised())
		s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
			links, err := tx.ListNextOfKin(ctx, f.alice.ID)
			s.Require().NoError(err)
			s.Empty(links)

			contacts, err := tx.ListContacts(ctx, f.kin.ID)
			s.Require().NoError(err)
			s.Require().Len(contacts, 1)
			s.Equal(models.AnonymisedName, contacts[0].Value)
			return nil
		}))
	})

	s.Run("contacts and addresses are scrubbed", func() {
		s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
			contacts, err := tx.ListContacts(ctx, f.alice.ID)
			s.Require().NoError(err)
			s.Require().Len(contacts, 1)
			s.Equal("phone", contacts[0].Method)
			s.Equal(models.AnonymisedName, contacts[0].Value)

			addresses, err := tx.ListAddresses(ctx, f.alice.ID)
			s.Require().NoError(err)
			s.Require().Len(addresses, 1)
			s.Equal(models.AnonymisedName, addresses[0].Street)
			s.Equal("CA12", addresses[0].Postcode)
			s.Equal("Keswick", addresses[0].Locality)
			s.Empty(addresses[0].Comments)
			return nil
		}))
	})

	s.Run("staff are untouched", func() {
		s.False(s.reload(f.staff.ID).IsAnonymised())
	})

	s.Run("log archived and flag removed", func() {
		live, err := s.events.List(s.ctx, f.shelter.ID, false)
		s.Require().NoError(err)
		s.Empty(live)
		all, err := s.events.List(s.ctx, f.shelter.ID, true)
		s.Require().NoError(err)
		s.Equal(result.EntriesArchived, len(all))
		s.Nil(s.tag(f.shelter.ID))
	})

	s.Run("running again is a no-op", func() {
		again, err := s.workflow.Anonymise(s.ctx, f.shelter.ID, artifact.TagID)
		s.Require().NoError(err)
		s.True(again.AlreadyDone)

		current, err := s.workflow.AnonymiseCurrent(s.ctx, f.shelter.ID)
		s.Require().NoError(err)
		s.True(current.AlreadyDone)
	})

	s.Run("later shelter updates do not undo the run", func() {
		_, err := s.lifecycle.SetAvailability(s.ctx, f.shelter.ID, true)
		s.Require().NoError(err)
		live, err := s.events.List(s.ctx, f.shelter.ID, false)
		s.Require().NoError(err)
		s.Require().NotEmpty(live)

		current, err := s.workflow.AnonymiseCurrent(s.ctx, f.shelter.ID)
		s.Require().NoError(err)
		s.True(current.AlreadyDone)
	})
}

func (s *RetentionSuite) TestFreeTextCheckInCommentsKeepClientsInScope() {
	s.checkInComment = "Walk-in from the bus station"
	f := s.givenClosedShelter("Ambleside")

	artifact := s.export(f)
	s.Equal(2, artifact.Clients)

	s.tasks.EXPECT().Cancel(gomock.Any(), models.AnonymiseTaskName, models.AnonymiseTaskArgs(f.shelter.ID, artifact.TagID), gomock.Nil())
	s.mailer.EXPECT().SendEmail(gomock.Any(), gomock.Any())
	result, err := s.workflow.Anonymise(s.ctx, f.shelter.ID, artifact.TagID)
	s.Require().NoError(err)
	s.Equal(3, result.Persons)
	s.True(s.reload(f.alice.ID).IsAnonymised())
	s.True(s.reload(f.bob.ID).IsAnonymised())
	s.False(s.reload(f.staff.ID).IsAnonymised())
}

func (s *RetentionSuite) TestAnonymiseRequiresExport() {
	f := s.givenClosedShelter("Wigton")
	closed := s.tag(f.shelter.ID)
	s.Require().NotNil(closed)

	_, err := s.workflow.Anonymise(s.ctx, f.shelter.ID, closed.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotExported))

	_, err = s.workflow.AnonymiseCurrent(s.ctx, f.shelter.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotExported))

	s.False(s.reload(f.alice.ID).IsAnonymised())
}

func (s *RetentionSuite) TestAnonymiseRefusesReopenedShelter() {
	f := s.givenClosedShelter("Ambleside")
	artifact := s.export(f)
	s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		sh, err := tx.GetShelter(ctx, f.shelter.ID)
		if err != nil {
			return err
		}
		sh.Status = models.StatusAmber
		return tx.UpdateShelter(ctx, sh)
	}))

	_, err := s.workflow.Anonymise(s.ctx, f.shelter.ID, artifact.TagID)
	s.True(dErrors.HasCode(err, dErrors.CodeShelterOpen))
	s.NotNil(s.tag(f.shelter.ID))
}

func (s *RetentionSuite) TestHandleAnonymiseTask() {
	f := s.givenClosedShelter("Keswick")
	artifact := s.export(f)
	key, err := schedmodels.NewKey(models.AnonymiseTaskName, models.AnonymiseTaskArgs(f.shelter.ID, artifact.TagID), nil)
	s.Require().NoError(err)
	task := &schedmodels.Task{ID: id.NewTaskID(), Name: key.Name, Args: key.Args, Vars: key.Vars}

	s.Run("anonymises the shelter", func() {
		s.tasks.EXPECT().Cancel(gomock.Any(), models.AnonymiseTaskName, gomock.Any(), gomock.Any())
		s.mailer.EXPECT().SendEmail(gomock.Any(), gomock.Any())
		s.Require().NoError(s.workflow.HandleAnonymiseTask(s.ctx, task))
		s.True(s.reload(f.alice.ID).IsAnonymised())
	})

	s.Run("completes quietly once done", func() {
		s.Require().NoError(s.workflow.HandleAnonymiseTask(s.ctx, task))
	})

	s.Run("rejects malformed arguments", func() {
		bad := &schedmodels.Task{Name: models.AnonymiseTaskName, Args: `["only-one"]`}
		s.Error(s.workflow.HandleAnonymiseTask(s.ctx, bad))
	})
}
