package importer

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"shelterops/internal/shelter/eventlog"
	shelmetrics "shelterops/internal/shelter/metrics"
	"shelterops/internal/shelter/models"
	"shelterops/internal/shelter/occupancy"
	"shelterops/internal/shelter/registration"
	"shelterops/internal/store"
	id "shelterops/pkg/domain"
	dErrors "shelterops/pkg/domain-errors"
	"shelterops/pkg/testutil"
)

type ImporterSuite struct {
	suite.Suite
	store    *store.MemoryStore
	events   *eventlog.Log
	engine   *registration.Engine
	importer *Importer
	ctx      context.Context
	now      time.Time
	shelter  *models.Shelter
}

func TestImporterSuite(t *testing.T) {
	suite.Run(t, new(ImporterSuite))
}

func (s *ImporterSuite) SetupTest() {
	s.store = store.NewMemory()
	s.now = time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	s.ctx = testutil.ActorContext("importer-1", s.now)
	types, err := store.SeedShelterTypes(s.ctx, s.store)
	s.Require().NoError(err)

	m := shelmetrics.NewWithRegisterer(prometheus.NewRegistry())
	occ := occupancy.New(s.store, occupancy.WithMetrics(m))
	s.events = eventlog.New(s.store)
	s.engine = registration.New(s.store, s.events, occ, registration.WithMetrics(m))
	s.importer = New(s.store, s.events, s.engine, occ, WithMetrics(m))

	s.shelter, err = models.NewShelter(id.NewShelterID(), "Carlisle Sands", types[models.TypeNominated].ID, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertShelter(ctx, s.shelter)
	}))
}

func (s *ImporterSuite) givenPerson(kind models.PersonKind, first, last, ref string) *models.Person {
	p, err := models.NewPerson(id.NewPersonID(), kind, first, last, s.now)
	s.Require().NoError(err)
	p.ReferenceLabel = ref
	s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertPerson(ctx, p)
	}))
	return p
}

func (s *ImporterSuite) activeAt(shelterID id.ShelterID) []*models.Registration {
	var regs []*models.Registration
	s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		regs, err = tx.ListRegistrations(ctx, models.RegistrationFilter{
			ShelterID: &shelterID,
			Statuses:  []models.RegistrationStatus{models.RegistrationCheckedIn},
		})
		return err
	}))
	return regs
}

func (s *ImporterSuite) population() int {
	var n int
	s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		sh, err := tx.GetShelter(ctx, s.shelter.ID)
		n = sh.Population
		return err
	}))
	return n
}

func (s *ImporterSuite) TestImport() {
	existing := s.givenPerson(models.PersonKindClient, "Alice", "Smith", "K-1")
	at := s.now.Add(-3 * time.Hour)

	result, err := s.importer.ImportRegistrations(s.ctx, s.shelter.ID, []Row{
		{Line: 2, Reference: "k-1", LastName: "Smith", FirstName: "Alice", Sex: "F"},
		{Line: 3, Reference: "K-2", LastName: "Jones", FirstName: "Bob", CheckIn: &at},
		{Line: 4, LastName: "Brown", FirstName: "Cara"},
	}, false)
	s.Require().NoError(err)

	s.Equal(3, result.Rows)
	s.Equal(2, result.Created)
	s.Equal(1, result.Updated)
	s.Equal(3, result.Population)
	s.Equal(3, s.population())

	s.Run("matches existing clients by reference", func() {
		var match *models.Registration
		for _, reg := range s.activeAt(s.shelter.ID) {
			if reg.PersonID == existing.ID {
				match = reg
			}
			if !reg.CheckIn.Equal(s.now) {
				s.True(reg.CheckIn.Equal(at))
			}
		}
		s.NotNil(match)
	})

	s.Run("logs one import entry after the check-ins", func() {
		entries, err := s.events.List(s.ctx, s.shelter.ID, false)
		s.Require().NoError(err)
		s.Require().Len(entries, 4)
		for _, e := range entries[:3] {
			s.Equal(models.EventCheckIn, e.Kind)
			s.Equal(models.CommentClientImport, e.Comment)
		}
		s.Equal(models.EventDataImport, entries[3].Kind)
		s.Equal(models.CommentSpreadsheet, entries[3].Comment)
	})
}

func (s *ImporterSuite) TestNextOfKinNeverMatches() {
	kin := s.givenPerson(models.PersonKindNextOfKin, "Dora", "Smith", "K-9")

	result, err := s.importer.ImportRegistrations(s.ctx, s.shelter.ID, []Row{
		{Line: 2, Reference: "K-9", LastName: "Smith", FirstName: "Dora"},
	}, false)
	s.Require().NoError(err)
	s.Equal(1, result.Created)

	regs := s.activeAt(s.shelter.ID)
	s.Require().Len(regs, 1)
	s.NotEqual(kin.ID, regs[0].PersonID)
}

func (s *ImporterSuite) TestReplaceChecksOutCurrentClients() {
	old := s.givenPerson(models.PersonKindClient, "Old", "Guest", "")
	_, err := s.engine.CheckInClient(s.ctx, registration.CheckInParams{ShelterID: s.shelter.ID, PersonID: old.ID})
	s.Require().NoError(err)

	result, err := s.importer.ImportRegistrations(s.ctx, s.shelter.ID, []Row{
		{Line: 2, LastName: "New", FirstName: "Guest"},
	}, true)
	s.Require().NoError(err)
	s.Equal(1, result.CheckedOut)
	s.Equal(1, s.population())

	s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		regs, err := tx.ListRegistrations(ctx, models.RegistrationFilter{PersonID: &old.ID})
		s.Require().NoError(err)
		s.Require().Len(regs, 1)
		s.Equal(models.RegistrationCheckedOut, regs[0].Status)
		s.Equal(models.ReasonImportReplace, regs[0].Reason)
		return nil
	}))
}

func (s *ImporterSuite) TestRowErrorRollsBackEverything() {
	old := s.givenPerson(models.PersonKindClient, "Old", "Guest", "")
	_, err := s.engine.CheckInClient(s.ctx, registration.CheckInParams{ShelterID: s.shelter.ID, PersonID: old.ID})
	s.Require().NoError(err)
	before, err := s.events.List(s.ctx, s.shelter.ID, true)
	s.Require().NoError(err)

	_, err = s.importer.ImportRegistrations(s.ctx, s.shelter.ID, []Row{
		{Line: 2, Reference: "K-5", LastName: "Fine", FirstName: "Row"},
		{Line: 3, Reference: "K-6"},
	}, true)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Contains(err.Error(), "row 3")

	regs := s.activeAt(s.shelter.ID)
	s.Require().Len(regs, 1)
	s.Equal(old.ID, regs[0].PersonID)
	s.Equal(1, s.population())

	after, err := s.events.List(s.ctx, s.shelter.ID, true)
	s.Require().NoError(err)
	s.Len(after, len(before))

	s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.FindClientByReference(ctx, "K-5")
		s.Error(err)
		return nil
	}))
}

func (s *ImporterSuite) TestClosedShelter() {
	s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
		sh, err := tx.GetShelter(ctx, s.shelter.ID)
		if err != nil {
			return err
		}
		sh.Status = models.StatusClosedNominated
		return tx.UpdateShelter(ctx, sh)
	}))

	_, err := s.importer.ImportRegistrations(s.ctx, s.shelter.ID, []Row{{Line: 2, LastName: "A", FirstName: "B"}}, false)
	s.True(dErrors.HasCode(err, dErrors.CodeShelterClosed))
}
