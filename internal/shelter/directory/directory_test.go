package directory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"shelterops/internal/shelter/eventlog"
	"shelterops/internal/shelter/models"
	"shelterops/internal/shelter/occupancy"
	"shelterops/internal/shelter/registration"
	"shelterops/internal/store"
	id "shelterops/pkg/domain"
	dErrors "shelterops/pkg/domain-errors"
	"shelterops/pkg/testutil"
)

type DirectorySuite struct {
	suite.Suite
	store  *store.MemoryStore
	events *eventlog.Log
	dir    *Directory
	reg    *registration.Engine
	ctx    context.Context
	now    time.Time
}

func TestDirectorySuite(t *testing.T) {
	suite.Run(t, new(DirectorySuite))
}

func (s *DirectorySuite) SetupTest() {
	s.store = store.NewMemory()
	s.now = time.Date(2026, 2, 14, 8, 30, 0, 0, time.UTC)
	s.ctx = testutil.ActorContext("coord-1", s.now)
	_, err := store.SeedShelterTypes(s.ctx, s.store)
	s.Require().NoError(err)
	s.events = eventlog.New(s.store)
	s.dir = New(s.store, s.events)
	s.reg = registration.New(s.store, s.events, occupancy.New(s.store))
}

func (s *DirectorySuite) TestCreateShelter() {
	s.Run("defaults to green and opens the log", func() {
		sh, err := s.dir.CreateShelter(s.ctx, CreateShelterInput{Name: " Keswick Hall ", TypeName: "nominated", Capacity: 80})
		s.Require().NoError(err)
		s.Equal("Keswick Hall", sh.Name)
		s.Equal(models.StatusGreen, sh.Status)
		s.Equal(0, sh.Population)

		entries, err := s.events.List(s.ctx, sh.ID, false)
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(models.EventOpen, entries[0].Kind)
		s.Equal(models.CommentShelter, entries[0].Comment)
		s.Equal("coord-1", entries[0].ActorID)
	})

	s.Run("generic closed resolves against the type", func() {
		sh, err := s.dir.CreateShelter(s.ctx, CreateShelterInput{Name: "Village Hall", TypeName: models.TypeCommunity, Status: "closed"})
		s.Require().NoError(err)
		s.Equal(models.StatusClosedCommunity, sh.Status)
	})

	s.Run("names are unique regardless of case", func() {
		_, err := s.dir.CreateShelter(s.ctx, CreateShelterInput{Name: "KESWICK HALL", TypeName: models.TypeNominated})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown type", func() {
		_, err := s.dir.CreateShelter(s.ctx, CreateShelterInput{Name: "Barn", TypeName: "Marquee"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidType))
	})

	s.Run("empty name", func() {
		_, err := s.dir.CreateShelter(s.ctx, CreateShelterInput{Name: "  ", TypeName: models.TypeNominated})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *DirectorySuite) TestShelterViews() {
	nominated, err := s.dir.CreateShelter(s.ctx, CreateShelterInput{Name: "Brampton School", TypeName: models.TypeNominated, Status: "closed"})
	s.Require().NoError(err)
	_, err = s.dir.CreateShelter(s.ctx, CreateShelterInput{Name: "Appleby Hall", TypeName: models.TypeCommunity, Status: "closed"})
	s.Require().NoError(err)

	s.Run("list collapses closed values and sorts by name", func() {
		list, err := s.dir.ListShelters(s.ctx)
		s.Require().NoError(err)
		s.Require().Len(list, 2)
		s.Equal("Appleby Hall", list[0].Name)
		s.Equal("closed", list[0].Status)
		s.Equal(models.TypeCommunity, list[0].TypeName)
		s.Equal("closed", list[1].Status)
	})

	s.Run("detail keeps the canonical value", func() {
		view, err := s.dir.GetShelter(s.ctx, nominated.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusClosedNominated, view.Status)
		s.Equal("Closed-Nominated", view.StatusLabel)
		s.Equal(models.TypeNominated, view.TypeName)
		s.Empty(view.WorkflowStatus)
	})

	s.Run("unknown shelter", func() {
		_, err := s.dir.GetShelter(s.ctx, id.NewShelterID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("types", func() {
		types, err := s.dir.ListShelterTypes(s.ctx)
		s.Require().NoError(err)
		s.Len(types, 2)
	})
}

func (s *DirectorySuite) TestPersons() {
	dob := time.Date(1990, 5, 1, 0, 0, 0, 0, time.UTC)
	s.Run("creates a client with addresses and contacts", func() {
		p, err := s.dir.CreatePerson(s.ctx, CreatePersonInput{
			ReferenceLabel: "K-9",
			FirstName:      "Maya",
			LastName:       "Patel",
			DateOfBirth:    &dob,
			Tags:           []string{" Diabetic", "diabetic", "wheelchair  user"},
			Addresses:      []AddressInput{{Street: "1 Lake Rd", Postcode: "ca12 5dq"}},
			Contacts:       []ContactInput{{Method: "phone", Value: "07700 900123", Deletable: true}},
		})
		s.Require().NoError(err)
		s.Equal(models.PersonKindClient, p.Kind)
		s.Equal([]string{"diabetic", "wheelchair user"}, p.Tags)

		view, err := s.dir.GetPerson(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal("K-9", view.ReferenceLabel)
		s.Require().Len(view.Addresses, 1)
		s.Equal(models.AddressCurrent, view.Addresses[0].Kind)
		s.Equal("CA12 5DQ", view.Addresses[0].Postcode)
		s.Len(view.Contacts, 1)
		s.Empty(view.NextOfKin)
	})

	s.Run("rejects the anonymised sentinel as a name", func() {
		_, err := s.dir.CreatePerson(s.ctx, CreatePersonInput{FirstName: "-", LastName: "Smith"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects two addresses of one kind", func() {
		_, err := s.dir.CreatePerson(s.ctx, CreatePersonInput{
			FirstName: "Tom", LastName: "Reed",
			Addresses: []AddressInput{{Street: "a"}, {Street: "b"}},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown person", func() {
		_, err := s.dir.GetPerson(s.ctx, id.NewPersonID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *DirectorySuite) TestAddNextOfKin() {
	master, err := s.dir.CreatePerson(s.ctx, CreatePersonInput{FirstName: "Ruth", LastName: "Hale"})
	s.Require().NoError(err)

	nok, err := s.dir.AddNextOfKin(s.ctx, master.ID, "daughter", CreatePersonInput{
		Kind: models.PersonKindClient, ReferenceLabel: "X", FirstName: "Jo", LastName: "Hale",
	})
	s.Require().NoError(err)
	s.Equal(models.PersonKindNextOfKin, nok.Kind)
	s.Empty(nok.ReferenceLabel)

	view, err := s.dir.GetPerson(s.ctx, master.ID)
	s.Require().NoError(err)
	s.Require().Len(view.NextOfKin, 1)
	s.Equal(nok.ID, view.NextOfKin[0].NextOfKinID)
	s.Equal("daughter", view.NextOfKin[0].Relationship)

	_, err = s.dir.AddNextOfKin(s.ctx, nok.ID, "", CreatePersonInput{FirstName: "Al", LastName: "Hale"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *DirectorySuite) TestListClients() {
	sh, err := s.dir.CreateShelter(s.ctx, CreateShelterInput{Name: "Penrith Leisure", TypeName: models.TypeNominated})
	s.Require().NoError(err)

	checkIn := func(first string, at time.Time) *models.Person {
		p, err := s.dir.CreatePerson(s.ctx, CreatePersonInput{FirstName: first, LastName: "Doe"})
		s.Require().NoError(err)
		_, err = s.reg.CheckInClient(s.ctx, registration.CheckInParams{ShelterID: sh.ID, PersonID: p.ID, At: at})
		s.Require().NoError(err)
		return p
	}
	early := checkIn("Early", s.now.Add(-2*time.Hour))
	late := checkIn("Late", s.now.Add(-time.Hour))
	gone := checkIn("Gone", s.now.Add(-3*time.Hour))
	_, err = s.reg.CheckOutClient(s.ctx, registration.CheckOutParams{ShelterID: sh.ID, PersonID: gone.ID})
	s.Require().NoError(err)

	s.Run("defaults to active registrations newest first", func() {
		list, err := s.dir.ListClients(s.ctx, sh.ID, nil)
		s.Require().NoError(err)
		s.Require().Len(list, 2)
		s.Equal(late.ID, list[0].Person.ID)
		s.Equal(early.ID, list[1].Person.ID)
	})

	s.Run("status filter", func() {
		list, err := s.dir.ListClients(s.ctx, sh.ID, []models.RegistrationStatus{models.RegistrationCheckedOut})
		s.Require().NoError(err)
		s.Require().Len(list, 1)
		s.Equal(gone.ID, list[0].Person.ID)
	})

	s.Run("hides anonymised clients", func() {
		s.Require().NoError(s.store.RunInTx(s.ctx, func(ctx context.Context, tx store.Tx) error {
			p, err := tx.GetPerson(ctx, early.ID)
			if err != nil {
				return err
			}
			p.Anonymise(s.now)
			return tx.UpdatePerson(ctx, p)
		}))
		list, err := s.dir.ListClients(s.ctx, sh.ID, nil)
		s.Require().NoError(err)
		s.Require().Len(list, 1)
		s.Equal(late.ID, list[0].Person.ID)
	})

	s.Run("unknown status", func() {
		_, err := s.dir.ListClients(s.ctx, sh.ID, []models.RegistrationStatus{"sleeping"})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("unknown shelter", func() {
		_, err := s.dir.ListClients(s.ctx, id.NewShelterID(), nil)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
