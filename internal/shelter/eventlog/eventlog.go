// Package eventlog is the append-only per-shelter history. Archive is the only
// mutation; entries are otherwise immutable.
package eventlog

import (
	"context"

	"shelterops/internal/shelter/models"
	"shelterops/internal/shelter/storeerr"
	"shelterops/internal/store"
	id "shelterops/pkg/domain"
	dErrors "shelterops/pkg/domain-errors"
	"shelterops/pkg/requestcontext"
)

// AppendParams describes one entry. A zero Actor is taken from the context,
// falling back to the system actor.
type AppendParams struct {
	ShelterID      id.ShelterID
	Actor          requestcontext.Actor
	Kind           models.EventKind
	SubjectID      *id.PersonID
	Comment        string
	StatusSnapshot models.Status
}

type Log struct {
	store store.Store
}

func New(st store.Store) *Log {
	return &Log{store: st}
}

// Append stamps the entry with the request clock. Called with a transaction
// context it joins that transaction, so the entry commits or rolls back with
// the action it records.
func (l *Log) Append(ctx context.Context, p AppendParams) (id.EntryID, error) {
	if p.ShelterID.IsNil() {
		return id.EntryID{}, dErrors.New(dErrors.CodeBadRequest, "event log entry requires a shelter")
	}
	actor := p.Actor
	if actor.IsZero() {
		actor = requestcontext.ActorFrom(ctx)
	}
	if actor.IsZero() {
		actor = requestcontext.SystemActor
	}
	entry := &models.Entry{
		ID:             id.NewEntryID(),
		ShelterID:      p.ShelterID,
		ActorID:        actor.UserID,
		ActorName:      actor.DisplayName(),
		Timestamp:      requestcontext.Now(ctx),
		Kind:           p.Kind,
		SubjectID:      p.SubjectID,
		Comment:        p.Comment,
		StatusSnapshot: p.StatusSnapshot,
	}
	err := l.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.AppendEntry(ctx, entry)
	})
	if err != nil {
		return id.EntryID{}, storeerr.Wrap(err, "shelter", "failed to append event")
	}
	return entry.ID, nil
}

// List returns entries ordered by timestamp, ties broken by insertion order.
func (l *Log) List(ctx context.Context, shelterID id.ShelterID, includeArchived bool) ([]*models.Entry, error) {
	var entries []*models.Entry
	err := l.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		entries, err = tx.ListEntries(ctx, shelterID, includeArchived)
		return err
	})
	if err != nil {
		return nil, storeerr.Wrap(err, "shelter", "failed to list events")
	}
	return entries, nil
}

// Archive flags every entry of the shelter and returns how many changed.
func (l *Log) Archive(ctx context.Context, shelterID id.ShelterID) (int, error) {
	var n int
	err := l.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		n, err = tx.ArchiveEntries(ctx, shelterID)
		return err
	})
	if err != nil {
		return 0, storeerr.Wrap(err, "shelter", "failed to archive events")
	}
	return n, nil
}
