package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"shelterops/internal/scheduler"
	"shelterops/internal/shelter/eventlog"
	shelmetrics "shelterops/internal/shelter/metrics"
	"shelterops/internal/shelter/models"
	"shelterops/internal/shelter/occupancy"
	"shelterops/internal/store"
	id "shelterops/pkg/domain"
	dErrors "shelterops/pkg/domain-errors"
	"shelterops/pkg/testutil"
)

type LifecycleSuite struct {
	suite.Suite
	store     *store.MemoryStore
	events    *eventlog.Log
	occupancy *occupancy.Tracker
	tasks     *scheduler.Scheduler
	machine   *Machine
	ctx       context.Context
	now       time.Time
	types     map[string]*models.ShelterType
}

func TestLifecycleSuite(t *testing.T) {
	suite.Run(t, new(LifecycleSuite))
}

func (s *LifecycleSuite) SetupTest() {
	s.store = store.NewMemory()
	s.now = time.Date(2026, 2, 14, 18, 30, 0, 0, time.UTC)
	s.ctx = testutil.ActorContext("officer-1", s.now)
	types, err := store.SeedShelterTypes(s.ctx, s.store)
	s.Require().NoError(err)
	s.types = types

	m := shelmetrics.NewWithRegisterer(prometheus.NewRegistry())
	s.events = eventlog.New(s.store)
	s.occupancy = occupancy.New(s.store, occupancy.WithMetrics(m))
	s.tasks = scheduler.New(s.store)
	s.machine = New(s.store, s.events, s.occupancy, s.tasks, WithMetrics(m))
}

func (s *LifecycleSuite) givenShelter(typeName string) *models.Shelter {
	sh, err := models.NewShelter(id.NewShelterID(), "Town Hall "+id.NewShelterID().String()[:8], s.types[typeName].ID, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertShelter(ctx, sh)
	}))
	return sh
}

func (s *LifecycleSuite) givenCheckedInClients(sh *models.Shelter, n int) []id.PersonID {
	var ids []id.PersonID
	s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		for i := 0; i < n; i++ {
			p, err := models.NewPerson(id.NewPersonID(), models.PersonKindClient, "Client", "Number", s.now)
			if err != nil {
				return err
			}
			if err := tx.InsertPerson(ctx, p); err != nil {
				return err
			}
			if err := tx.InsertRegistration(ctx, &models.Registration{
				ID:        id.NewRegistrationID(),
				ShelterID: sh.ID,
				PersonID:  p.ID,
				CheckIn:   s.now.Add(-time.Hour),
				Status:    models.RegistrationCheckedIn,
			}); err != nil {
				return err
			}
			ids = append(ids, p.ID)
		}
		_, err := s.occupancy.Recompute(ctx, sh.ID)
		return err
	}))
	return ids
}

func (s *LifecycleSuite) shelter(shelterID id.ShelterID) *models.Shelter {
	var sh *models.Shelter
	s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		sh, err = tx.GetShelter(ctx, shelterID)
		return err
	}))
	return sh
}

func (s *LifecycleSuite) tag(shelterID id.ShelterID) *models.WorkflowTag {
	var tag *models.WorkflowTag
	_ = s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		tag, err = tx.GetWorkflowTag(ctx, shelterID, models.WorkflowKey)
		return err
	})
	return tag
}

func (s *LifecycleSuite) entries(shelterID id.ShelterID) []*models.Entry {
	entries, err := s.events.List(s.ctx, shelterID, true)
	s.Require().NoError(err)
	return entries
}

func (s *LifecycleSuite) TestCloseCascade() {
	sh := s.givenShelter(models.TypeNominated)
	clients := s.givenCheckedInClients(sh, 3)
	s.Require().Equal(3, s.shelter(sh.ID).Population)

	result, err := s.machine.SetStatus(s.ctx, sh.ID, "closed")
	s.Require().NoError(err)

	s.Run("canonicalises closed by shelter type", func() {
		s.Equal(models.StatusClosedNominated, result.Status)
	})

	s.Run("checks out every client and zeroes the population", func() {
		s.Equal(0, s.shelter(sh.ID).Population)
		var regs []*models.Registration
		s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
			var err error
			regs, err = tx.ListRegistrations(ctx, models.RegistrationFilter{ShelterID: &sh.ID})
			return err
		}))
		s.Len(regs, 3)
		for _, reg := range regs {
			s.Equal(models.RegistrationCheckedOut, reg.Status)
			s.Equal(models.ReasonAutoClosed, reg.Reason)
			s.Require().NotNil(reg.CheckOut)
			s.True(reg.CheckOut.Equal(s.now))
		}
	})

	s.Run("logs a check-out per client then the status change", func() {
		entries := s.entries(sh.ID)
		s.Require().Len(entries, len(clients)+1)
		for _, e := range entries[:len(clients)] {
			s.Equal(models.EventCheckOut, e.Kind)
			s.Equal(models.ReasonAutoClosed, e.Comment)
			s.Equal("officer-1", e.ActorID)
		}
		last := entries[len(entries)-1]
		s.Equal(models.EventStatusChange, last.Kind)
		s.Equal("Green -> Closed-Nominated", last.Comment)
		s.Equal(models.StatusClosedNominated, last.StatusSnapshot)
	})

	s.Run("flags the shelter closed", func() {
		tag := s.tag(sh.ID)
		s.Require().NotNil(tag)
		s.Equal(models.WorkflowClosed, tag.Value)
	})
}

func (s *LifecycleSuite) TestCommunityShelterClosesToCommunityStatus() {
	sh := s.givenShelter(models.TypeCommunity)

	result, err := s.machine.SetStatus(s.ctx, sh.ID, string(models.StatusClosedNominated))
	s.Require().NoError(err)
	s.Equal(models.StatusClosedCommunity, result.Status)
}

func (s *LifecycleSuite) TestUnchangedStatusIsNoOp() {
	sh := s.givenShelter(models.TypeNominated)

	result, err := s.machine.SetStatus(s.ctx, sh.ID, string(models.StatusGreen))
	s.Require().NoError(err)
	s.Equal(models.StatusGreen, result.Status)
	s.Empty(s.entries(sh.ID))
	s.Nil(s.tag(sh.ID))
}

func (s *LifecycleSuite) TestOpenTransitionBetweenOpenStatuses() {
	sh := s.givenShelter(models.TypeNominated)
	s.givenCheckedInClients(sh, 2)

	result, err := s.machine.SetStatus(s.ctx, sh.ID, string(models.StatusAmber))
	s.Require().NoError(err)
	s.Equal(models.StatusAmber, result.Status)
	s.Equal(2, result.Population)
	s.Nil(s.tag(sh.ID))
}

func (s *LifecycleSuite) TestRejections() {
	s.Run("unknown status", func() {
		sh := s.givenShelter(models.TypeNominated)
		_, err := s.machine.SetStatus(s.ctx, sh.ID, "purple")
		s.Require().Error(err)
		s.False(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("opening an unavailable shelter", func() {
		sh := s.givenShelter(models.TypeNominated)
		_, err := s.machine.SetStatus(s.ctx, sh.ID, "closed")
		s.Require().NoError(err)
		_, err = s.machine.SetAvailability(s.ctx, sh.ID, true)
		s.Require().NoError(err)

		_, err = s.machine.SetStatus(s.ctx, sh.ID, string(models.StatusGreen))
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
		s.Equal(models.StatusClosedNominated, s.shelter(sh.ID).Status)
	})

	s.Run("shelter type unknown", func() {
		sh, err := models.NewShelter(id.NewShelterID(), "Orphan Hall", id.NewShelterTypeID(), s.now)
		s.Require().NoError(err)
		s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.InsertShelter(ctx, sh)
		}))

		_, err = s.machine.SetStatus(s.ctx, sh.ID, "closed")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidType))
	})

	s.Run("shelter missing", func() {
		_, err := s.machine.SetStatus(s.ctx, id.NewShelterID(), "closed")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *LifecycleSuite) TestReopenRevokesRetention() {
	sh := s.givenShelter(models.TypeNominated)
	_, err := s.machine.SetStatus(s.ctx, sh.ID, "closed")
	s.Require().NoError(err)
	tag := s.tag(sh.ID)
	s.Require().NotNil(tag)

	args := models.AnonymiseTaskArgs(sh.ID, tag.ID)
	_, err = s.tasks.ScheduleOnce(s.ctx, scheduler.TaskSpec{
		Name:      models.AnonymiseTaskName,
		Args:      args,
		StartTime: s.now.Add(30 * 24 * time.Hour),
		Repeats:   1,
	})
	s.Require().NoError(err)

	result, err := s.machine.SetStatus(s.ctx, sh.ID, string(models.StatusGreen))
	s.Require().NoError(err)
	s.Equal(models.StatusGreen, result.Status)

	s.Nil(s.tag(sh.ID))
	_, err = s.tasks.Find(s.ctx, models.AnonymiseTaskName, args, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *LifecycleSuite) TestReclosingKeepsExportedFlag() {
	sh := s.givenShelter(models.TypeNominated)
	_, err := s.machine.SetStatus(s.ctx, sh.ID, "closed")
	s.Require().NoError(err)

	exported := s.tag(sh.ID)
	exported.Value = models.WorkflowExported
	s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.UpsertWorkflowTag(ctx, exported)
	}))

	// Moving between the two closed values must not downgrade the flag.
	s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.GetShelter(ctx, sh.ID)
		if err != nil {
			return err
		}
		current.Status = models.StatusRed
		return tx.UpdateShelter(ctx, current)
	}))
	_, err = s.machine.SetStatus(s.ctx, sh.ID, "closed")
	s.Require().NoError(err)

	tag := s.tag(sh.ID)
	s.Require().NotNil(tag)
	s.Equal(models.WorkflowExported, tag.Value)
	s.Equal(exported.ID, tag.ID)
}

func (s *LifecycleSuite) TestSetAvailability() {
	s.Run("open shelter cannot be marked unavailable", func() {
		sh := s.givenShelter(models.TypeNominated)
		_, err := s.machine.SetAvailability(s.ctx, sh.ID, true)
		s.True(dErrors.HasCode(err, dErrors.CodeShelterOpen))
		s.False(s.shelter(sh.ID).Unavailable)
	})

	s.Run("closed shelter toggles and logs", func() {
		sh := s.givenShelter(models.TypeNominated)
		_, err := s.machine.SetStatus(s.ctx, sh.ID, "closed")
		s.Require().NoError(err)

		result, err := s.machine.SetAvailability(s.ctx, sh.ID, true)
		s.Require().NoError(err)
		s.True(result.Unavailable)

		_, err = s.machine.SetAvailability(s.ctx, sh.ID, true)
		s.Require().NoError(err)

		result, err = s.machine.SetAvailability(s.ctx, sh.ID, false)
		s.Require().NoError(err)
		s.False(result.Unavailable)

		var comments []string
		for _, e := range s.entries(sh.ID) {
			if e.Kind == models.EventUpdate {
				comments = append(comments, e.Comment)
			}
		}
		s.Equal([]string{"Unavailable", "Available"}, comments)
	})
}

func (s *LifecycleSuite) TestUpdateDetails() {
	first := s.givenShelter(models.TypeNominated)
	second := s.givenShelter(models.TypeNominated)

	s.Run("records changed fields", func() {
		phone := "01632 960000"
		capacity := 120
		result, err := s.machine.UpdateDetails(s.ctx, first.ID, models.ShelterDetailsUpdate{Phone: &phone, Capacity: &capacity})
		s.Require().NoError(err)
		s.Equal(phone, result.Phone)
		s.Equal(capacity, s.shelter(first.ID).Capacity)

		entries := s.entries(first.ID)
		s.Require().NotEmpty(entries)
		s.Equal(models.EventUpdate, entries[len(entries)-1].Kind)
		s.Contains(entries[len(entries)-1].Comment, "Updated: ")
	})

	s.Run("renaming onto another shelter's name conflicts", func() {
		name := " " + second.Name + " "
		_, err := s.machine.UpdateDetails(s.ctx, first.ID, models.ShelterDetailsUpdate{Name: &name})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("no changes writes nothing", func() {
		before := len(s.entries(second.ID))
		_, err := s.machine.UpdateDetails(s.ctx, second.ID, models.ShelterDetailsUpdate{})
		s.Require().NoError(err)
		s.Len(s.entries(second.ID), before)
	})
}
