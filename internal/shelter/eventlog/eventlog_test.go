package eventlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelterops/internal/shelter/models"
	"shelterops/internal/store"
	id "shelterops/pkg/domain"
	dErrors "shelterops/pkg/domain-errors"
	"shelterops/pkg/requestcontext"
	"shelterops/pkg/testutil"
)

func newShelter(t *testing.T, st store.Store, now time.Time) *models.Shelter {
	t.Helper()
	types, err := store.SeedShelterTypes(context.Background(), st)
	require.NoError(t, err)
	sh, err := models.NewShelter(id.NewShelterID(), "Leisure Centre "+id.NewShelterID().String()[:8], types[models.TypeNominated].ID, now)
	require.NoError(t, err)
	require.NoError(t, st.RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.InsertShelter(ctx, sh)
	}))
	return sh
}

func TestAppend(t *testing.T) {
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	st := store.NewMemory()
	sh := newShelter(t, st, now)
	log := New(st)

	testutil.Given(t, "an actor on the context", func(t *testing.T) {
		ctx := testutil.ActorContext("warden-7", now)
		_, err := log.Append(ctx, AppendParams{ShelterID: sh.ID, Kind: models.EventOpen, Comment: "Shelter"})
		require.NoError(t, err)

		testutil.Then(t, "the entry records the actor and the request clock", func(t *testing.T) {
			entries, err := log.List(ctx, sh.ID, false)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "warden-7", entries[0].ActorID)
			assert.True(t, entries[0].Timestamp.Equal(now))
		})
	})

	testutil.Given(t, "no actor anywhere", func(t *testing.T) {
		shelter := newShelter(t, st, now)
		_, err := log.Append(context.Background(), AppendParams{ShelterID: shelter.ID, Kind: models.EventUpdate})
		require.NoError(t, err)

		testutil.Then(t, "the system actor is recorded", func(t *testing.T) {
			entries, err := log.List(context.Background(), shelter.ID, false)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, requestcontext.SystemActor.UserID, entries[0].ActorID)
		})
	})

	testutil.Given(t, "identical appends at the same instant", func(t *testing.T) {
		shelter := newShelter(t, st, now)
		ctx := testutil.ActorContext("warden-7", now)
		p := AppendParams{ShelterID: shelter.ID, Kind: models.EventCheckIn, Comment: "Client"}
		first, err := log.Append(ctx, p)
		require.NoError(t, err)
		second, err := log.Append(ctx, p)
		require.NoError(t, err)

		testutil.Then(t, "both are kept in insertion order", func(t *testing.T) {
			entries, err := log.List(ctx, shelter.ID, false)
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, first, entries[0].ID)
			assert.Equal(t, second, entries[1].ID)
			assert.Less(t, entries[0].Seq, entries[1].Seq)
		})
	})

	t.Run("requires a shelter", func(t *testing.T) {
		_, err := log.Append(context.Background(), AppendParams{Kind: models.EventUpdate})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func TestAppendRollsBackWithCaller(t *testing.T) {
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	st := store.NewMemory()
	sh := newShelter(t, st, now)
	log := New(st)
	ctx := testutil.ActorContext("warden-7", now)

	boom := errors.New("boom")
	err := st.RunInTx(ctx, func(ctx context.Context, _ store.Tx) error {
		if _, err := log.Append(ctx, AppendParams{ShelterID: sh.ID, Kind: models.EventUpdate}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	entries, err := log.List(ctx, sh.ID, true)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestArchive(t *testing.T) {
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	st := store.NewMemory()
	sh := newShelter(t, st, now)
	log := New(st)
	ctx := testutil.ActorContext("warden-7", now)

	for i := 0; i < 3; i++ {
		_, err := log.Append(ctx, AppendParams{ShelterID: sh.ID, Kind: models.EventUpdate})
		require.NoError(t, err)
	}

	n, err := log.Archive(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	live, err := log.List(ctx, sh.ID, false)
	require.NoError(t, err)
	assert.Empty(t, live)

	all, err := log.List(ctx, sh.ID, true)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	again, err := log.Archive(ctx, sh.ID)
	require.NoError(t, err)
	assert.Zero(t, again)
}
