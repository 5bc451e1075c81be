package retention

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"shelterops/internal/notifier"
	"shelterops/internal/platform/tracing"
	schedmodels "shelterops/internal/scheduler/models"
	"shelterops/internal/shelter/models"
	"shelterops/internal/shelter/storeerr"
	"shelterops/internal/store"
	id "shelterops/pkg/domain"
	dErrors "shelterops/pkg/domain-errors"
	"shelterops/pkg/requestcontext"
)

// Anonymise strips personal data from every client the shelter's live log
// shows checked in, archives the log and removes the EXPORTED flag. Running it
// again on an already anonymised shelter succeeds without changes.
func (w *Workflow) Anonymise(ctx context.Context, shelterID id.ShelterID, tagID id.TagID) (_ *AnonymiseResult, err error) {
	ctx, end := tracing.Start(ctx, "retention", "Anonymise",
		attribute.String("shelter.id", shelterID.String()), attribute.String("tag.id", tagID.String()))
	defer end(&err)
	start := time.Now()

	result := &AnonymiseResult{}
	var sh *models.Shelter
	err = w.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		sh, err = tx.LockShelter(ctx, shelterID)
		if err != nil {
			return storeerr.Wrap(err, "shelter", "failed to load shelter")
		}
		tag, err := tx.GetWorkflowTagByID(ctx, tagID)
		if storeerr.IsNotFound(err) {
			done, err := alreadyAnonymised(ctx, tx, sh.ID)
			if err != nil {
				return err
			}
			if done {
				result.AlreadyDone = true
				return nil
			}
			return dErrors.New(dErrors.CodeNotExported, "shelter has not been exported")
		}
		if err != nil {
			return storeerr.Wrap(err, "workflow tag", "failed to load workflow tag")
		}
		if tag.ShelterID != sh.ID {
			return dErrors.New(dErrors.CodeNotFound, "workflow tag not found for this shelter")
		}
		if tag.Value != models.WorkflowExported {
			return dErrors.New(dErrors.CodeNotExported, "shelter has not been exported")
		}
		if !sh.IsClosed() {
			return dErrors.New(dErrors.CodeShelterOpen, "shelter was reopened after export")
		}

		entries, err := tx.ListEntries(ctx, sh.ID, false)
		if err != nil {
			return storeerr.Wrap(err, "shelter", "failed to list events")
		}
		subjects, err := clientSubjects(ctx, newPersonCache(tx), entries)
		if err != nil {
			return storeerr.Wrap(err, "person", "failed to resolve checked-in clients")
		}
		now := requestcontext.Now(ctx)
		visited := make(map[id.PersonID]bool)
		for _, personID := range subjects {
			n, err := anonymisePerson(ctx, tx, personID, visited, now)
			if err != nil {
				return err
			}
			result.Persons += n
		}

		if result.EntriesArchived, err = tx.ArchiveEntries(ctx, sh.ID); err != nil {
			return storeerr.Wrap(err, "shelter", "failed to archive events")
		}
		if err := tx.DeleteWorkflowTag(ctx, sh.ID, models.WorkflowKey); err != nil {
			return storeerr.Wrap(err, "workflow tag", "failed to delete workflow tag")
		}
		if w.tasks != nil {
			return w.tasks.Cancel(ctx, models.AnonymiseTaskName, w.taskArgs(sh.ID, tag.ID), nil)
		}
		return nil
	})
	if err != nil {
		return nil, storeerr.Wrap(err, "shelter", "failed to anonymise shelter")
	}
	if result.AlreadyDone {
		w.logger.InfoContext(ctx, "shelter already anonymised", "shelter_id", shelterID.String())
		return result, nil
	}

	w.logger.InfoContext(ctx, "shelter anonymised",
		"shelter_id", shelterID.String(),
		"persons", result.Persons,
		"entries_archived", result.EntriesArchived,
	)
	if w.metrics != nil {
		w.metrics.IncrementAnonymisations(result.Persons)
		w.metrics.ObserveOperation("anonymise", start)
	}
	w.notify(ctx, notifier.Message{
		Subject: "Shelter data anonymised: " + sh.Name,
		Body:    "Personal data held for " + sh.Name + " has been anonymised and its log archived.",
	})
	return result, nil
}

// AnonymiseCurrent resolves the shelter's workflow tag and anonymises now.
// Only an exported shelter qualifies.
func (w *Workflow) AnonymiseCurrent(ctx context.Context, shelterID id.ShelterID) (*AnonymiseResult, error) {
	var tag *models.WorkflowTag
	var done bool
	err := w.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetShelter(ctx, shelterID); err != nil {
			return storeerr.Wrap(err, "shelter", "failed to load shelter")
		}
		var err error
		tag, err = tx.GetWorkflowTag(ctx, shelterID, models.WorkflowKey)
		if storeerr.IsNotFound(err) {
			done, err = alreadyAnonymised(ctx, tx, shelterID)
			if err != nil {
				return err
			}
			if !done {
				return dErrors.New(dErrors.CodeNotExported, "shelter has not been exported")
			}
			return nil
		}
		if err != nil {
			return storeerr.Wrap(err, "workflow tag", "failed to load workflow tag")
		}
		if tag.Value != models.WorkflowExported {
			return dErrors.New(dErrors.CodeNotExported, "shelter has not been exported")
		}
		return nil
	})
	if err != nil {
		return nil, storeerr.Wrap(err, "shelter", "failed to anonymise shelter")
	}
	if done {
		return &AnonymiseResult{AlreadyDone: true}, nil
	}
	return w.Anonymise(ctx, shelterID, tag.ID)
}

// alreadyAnonymised reports whether a previous run finished: no flag left, an
// archived log and no check-in recorded since. Later updates such as an
// availability change do not undo a finished run.
func alreadyAnonymised(ctx context.Context, tx store.Tx, shelterID id.ShelterID) (bool, error) {
	_, err := tx.GetWorkflowTag(ctx, shelterID, models.WorkflowKey)
	switch {
	case err == nil:
		return false, nil
	case !storeerr.IsNotFound(err):
		return false, storeerr.Wrap(err, "workflow tag", "failed to load workflow tag")
	}
	all, err := tx.ListEntries(ctx, shelterID, true)
	if err != nil {
		return false, storeerr.Wrap(err, "shelter", "failed to list events")
	}
	archived := false
	for _, e := range all {
		switch {
		case e.Archived:
			archived = true
		case e.Kind == models.EventCheckIn:
			return false, nil
		}
	}
	return archived, nil
}

// anonymisePerson removes personal data for the person and everything reachable
// from it: contacts, addresses and next-of-kin, whose links are removed. It
// returns how many person records changed. visited guards against cycles.
func anonymisePerson(ctx context.Context, tx store.Tx, personID id.PersonID, visited map[id.PersonID]bool, now time.Time) (int, error) {
	if visited[personID] {
		return 0, nil
	}
	visited[personID] = true

	p, err := tx.GetPerson(ctx, personID)
	if storeerr.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, storeerr.Wrap(err, "person", "failed to load person")
	}
	changed := 0
	if !p.IsAnonymised() || p.ReferenceLabel != "" || p.Comments != "" {
		p.Anonymise(now)
		if err := tx.UpdatePerson(ctx, p); err != nil {
			return 0, storeerr.Wrap(err, "person", "failed to anonymise person")
		}
		changed = 1
	}

	contacts, err := tx.ListContacts(ctx, personID)
	if err != nil {
		return 0, storeerr.Wrap(err, "contact", "failed to list contacts")
	}
	for _, c := range contacts {
		if c.Deletable {
			if err := tx.DeleteContact(ctx, c.ID); err != nil {
				return 0, storeerr.Wrap(err, "contact", "failed to delete contact")
			}
			continue
		}
		if c.Value == models.AnonymisedName {
			continue
		}
		c.Value = models.AnonymisedName
		if err := tx.UpdateContact(ctx, c); err != nil {
			return 0, storeerr.Wrap(err, "contact", "failed to blank contact")
		}
	}

	addresses, err := tx.ListAddresses(ctx, personID)
	if err != nil {
		return 0, storeerr.Wrap(err, "address", "failed to list addresses")
	}
	for _, a := range addresses {
		if a.Street == models.AnonymisedName && a.Comments == "" {
			continue
		}
		a.Anonymise()
		if err := tx.UpsertAddress(ctx, a); err != nil {
			return 0, storeerr.Wrap(err, "address", "failed to anonymise address")
		}
	}

	links, err := tx.ListNextOfKin(ctx, personID)
	if err != nil {
		return 0, storeerr.Wrap(err, "next of kin", "failed to list next of kin")
	}
	for _, link := range links {
		n, err := anonymisePerson(ctx, tx, link.NextOfKinID, visited, now)
		if err != nil {
			return 0, err
		}
		changed += n
		if err := tx.DeleteNextOfKin(ctx, personID, link.NextOfKinID); err != nil {
			return 0, storeerr.Wrap(err, "next of kin", "failed to unlink next of kin")
		}
	}
	return changed, nil
}

// HandleAnonymiseTask runs a scheduled anonymise_task. A shelter that was
// reopened or already anonymised completes the task instead of retrying it.
func (w *Workflow) HandleAnonymiseTask(ctx context.Context, task *schedmodels.Task) error {
	var args []string
	if err := task.DecodeArgs(&args); err != nil || len(args) != 2 {
		return dErrors.New(dErrors.CodeBadRequest, "anonymise_task expects [shelter_id, tag_id]")
	}
	shelterID, err := id.ParseShelterID(args[0])
	if err != nil {
		return err
	}
	tagID, err := id.ParseTagID(args[1])
	if err != nil {
		return err
	}
	_, err = w.Anonymise(ctx, shelterID, tagID)
	switch {
	case dErrors.HasCode(err, dErrors.CodeNotExported), dErrors.HasCode(err, dErrors.CodeShelterOpen):
		w.logger.WarnContext(ctx, "anonymise task skipped",
			"shelter_id", shelterID.String(), "tag_id", tagID.String(), "reason", err.Error())
		return nil
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		w.logger.WarnContext(ctx, "anonymise task target missing",
			"shelter_id", shelterID.String(), "tag_id", tagID.String())
		return nil
	}
	return err
}
