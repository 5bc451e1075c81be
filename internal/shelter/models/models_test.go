package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "shelterops/pkg/domain"
	dErrors "shelterops/pkg/domain-errors"
)

func TestStatusRequest_Resolve(t *testing.T) {
	nominated := &ShelterType{Name: TypeNominated}
	community := &ShelterType{Name: TypeCommunity}
	other := &ShelterType{Name: "Rest Centre"}

	t.Run("generic closed follows the shelter type", func(t *testing.T) {
		req, err := ParseStatusRequest("closed")
		require.NoError(t, err)

		s, err := req.Resolve(nominated)
		require.NoError(t, err)
		assert.Equal(t, StatusClosedNominated, s)

		s, err = req.Resolve(community)
		require.NoError(t, err)
		assert.Equal(t, StatusClosedCommunity, s)
	})

	t.Run("explicit closed value is canonicalised too", func(t *testing.T) {
		req, err := ParseStatusRequest("Closed-Community")
		require.NoError(t, err)
		s, err := req.Resolve(nominated)
		require.NoError(t, err)
		assert.Equal(t, StatusClosedNominated, s)
	})

	t.Run("unknown type cannot close", func(t *testing.T) {
		req, _ := ParseStatusRequest("closed")
		_, err := req.Resolve(other)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidType))

		_, err = req.Resolve(nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidType))
	})

	t.Run("open values pass through", func(t *testing.T) {
		req, err := ParseStatusRequest(" AMBER ")
		require.NoError(t, err)
		s, err := req.Resolve(other)
		require.NoError(t, err)
		assert.Equal(t, StatusAmber, s)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		_, err := ParseStatusRequest("purple")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestStatus_ListLabelCollapsesClosed(t *testing.T) {
	assert.Equal(t, "closed", StatusClosedNominated.ListLabel())
	assert.Equal(t, "closed", StatusClosedCommunity.ListLabel())
	assert.Equal(t, "red", StatusRed.ListLabel())
}

func TestShelter_Guards(t *testing.T) {
	s, err := NewShelter(id.NewShelterID(), "  Keswick ", id.NewShelterTypeID(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Keswick", s.Name)
	assert.Equal(t, StatusGreen, s.Status)

	assert.True(t, dErrors.HasCode(s.CanMarkUnavailable(), dErrors.CodeShelterOpen))
	s.Status = StatusClosedNominated
	assert.NoError(t, s.CanMarkUnavailable())

	s.Unavailable = true
	assert.True(t, dErrors.HasCode(s.CanOpen(), dErrors.CodeUnavailable))

	_, err = NewShelter(id.NewShelterID(), " ", id.NewShelterTypeID(), time.Now())
	assert.Error(t, err)
}

func TestShelterDetailsUpdate_Apply(t *testing.T) {
	s, _ := NewShelter(id.NewShelterID(), "Keswick", id.NewShelterTypeID(), time.Now())
	s.Tags[TagWifi] = "yes"
	phone := "017687 12345"
	capacity := 120

	changed, err := ShelterDetailsUpdate{
		Phone:    &phone,
		Capacity: &capacity,
		Tags:     map[string]string{TagWifi: "", TagCatering: "hot meals"},
	}.Apply(s)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"phone", "capacity", "tag:wifi", "tag:catering"}, changed)
	assert.NotContains(t, s.Tags, TagWifi)
	assert.Equal(t, "hot meals", s.Tags[TagCatering])

	negative := -1
	_, err = ShelterDetailsUpdate{Capacity: &negative}.Apply(s)
	assert.Error(t, err)
}

func TestPerson_Anonymise(t *testing.T) {
	dob := time.Date(1984, time.July, 23, 0, 0, 0, 0, time.UTC)
	p, err := NewPerson(id.NewPersonID(), PersonKindClient, "Alice", "Smith", time.Now())
	require.NoError(t, err)
	p.MiddleName = "Jane"
	p.ReferenceLabel = "K-001"
	p.DateOfBirth = &dob
	p.Comments = "allergic to nuts"
	p.Tags = []string{"diabetic"}
	p.PetDetails = "one dog"

	p.Anonymise(time.Now())

	assert.True(t, p.IsAnonymised())
	assert.Equal(t, AnonymisedName, p.FirstName)
	assert.Equal(t, AnonymisedName, p.LastName)
	assert.Empty(t, p.ReferenceLabel)
	assert.Equal(t, time.Date(1984, time.January, 1, 0, 0, 0, 0, time.UTC), *p.DateOfBirth)
	assert.Empty(t, p.Comments)
	assert.Empty(t, p.Tags)
	assert.Empty(t, p.PetDetails)
}

func TestAddress_Anonymise(t *testing.T) {
	a := Address{Street: "1 Lake Road", Locality: "Keswick", Postcode: "ca12 5dq", Comments: "blue door"}
	a.Anonymise()
	assert.Equal(t, AnonymisedName, a.Street)
	assert.Equal(t, "Keswick", a.Locality)
	assert.Equal(t, "CA12", a.Postcode)
	assert.Empty(t, a.Comments)

	assert.Equal(t, "CA12", OutwardCode("CA125DQ"))
	assert.Equal(t, "", OutwardCode(""))
}

func TestEntry_IsClientCheckIn(t *testing.T) {
	subject := id.NewPersonID()
	cases := []struct {
		name  string
		entry Entry
		want  bool
	}{
		{"client", Entry{Kind: EventCheckIn, SubjectID: &subject, Comment: CommentClient}, true},
		{"import", Entry{Kind: EventCheckIn, SubjectID: &subject, Comment: CommentClientImport}, true},
		{"household", Entry{Kind: EventCheckIn, SubjectID: &subject, Comment: "Client Ref: K-001"}, true},
		{"staff", Entry{Kind: EventCheckIn, SubjectID: &subject, Comment: CommentStaff}, false},
		{"check-out", Entry{Kind: EventCheckOut, SubjectID: &subject, Comment: CommentClient}, false},
		{"no subject", Entry{Kind: EventCheckIn, Comment: CommentClient}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.entry.IsClientCheckIn())
		})
	}
}
