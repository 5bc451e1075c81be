package retention

import (
	"context"
	"strings"
	"time"
	"unicode"

	"shelterops/internal/shelter/models"
	"shelterops/internal/shelter/storeerr"
	"shelterops/internal/store"
	id "shelterops/pkg/domain"
	dErrors "shelterops/pkg/domain-errors"
)

// buildArtifact reads the three rosters inside the export transaction and
// renders them, so a failure here rolls the export back.
func buildArtifact(ctx context.Context, tx store.Tx, sh *models.Shelter, now time.Time) (*Artifact, error) {
	entries, err := tx.ListEntries(ctx, sh.ID, false)
	if err != nil {
		return nil, storeerr.Wrap(err, "shelter", "failed to gather export data")
	}
	people := newPersonCache(tx)

	clients, err := clientRoster(ctx, people, entries)
	if err != nil {
		return nil, storeerr.Wrap(err, "shelter", "failed to gather export data")
	}
	staff, err := staffRoster(ctx, tx, people, sh.ID, entries)
	if err != nil {
		return nil, storeerr.Wrap(err, "shelter", "failed to gather export data")
	}
	logRows, err := buildLogRows(ctx, people, entries)
	if err != nil {
		return nil, storeerr.Wrap(err, "shelter", "failed to gather export data")
	}

	data, err := BuildWorkbook(clients, staff, logRows)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build export workbook")
	}
	return &Artifact{
		Filename:    exportFilename(sh.Name, now),
		ContentType: WorkbookContentType,
		Data:        data,
		Clients:     len(clients),
		Staff:       len(staff),
		LogRows:     len(logRows),
		ExportedAt:  now,
	}, nil
}

// personCache loads each person once per transaction. A missing person is
// cached as nil.
type personCache struct {
	tx   store.Tx
	byID map[id.PersonID]*models.Person
}

func newPersonCache(tx store.Tx) *personCache {
	return &personCache{tx: tx, byID: make(map[id.PersonID]*models.Person)}
}

func (c *personCache) get(ctx context.Context, personID id.PersonID) (*models.Person, error) {
	if p, ok := c.byID[personID]; ok {
		return p, nil
	}
	p, err := c.tx.GetPerson(ctx, personID)
	switch {
	case storeerr.IsNotFound(err):
		p = nil
	case err != nil:
		return nil, err
	}
	c.byID[personID] = p
	return p, nil
}

// clientSubjects returns the distinct clients the log shows being checked in,
// in first check-in order. A check-in counts when its comment marks a client
// or when its subject is a client record.
func clientSubjects(ctx context.Context, people *personCache, entries []*models.Entry) ([]id.PersonID, error) {
	seen := make(map[id.PersonID]bool)
	var out []id.PersonID
	for _, e := range entries {
		if e.Kind != models.EventCheckIn || e.SubjectID == nil || seen[*e.SubjectID] {
			continue
		}
		subject := *e.SubjectID
		if !e.IsClientCheckIn() {
			p, err := people.get(ctx, subject)
			if err != nil {
				return nil, err
			}
			if p == nil || !p.IsClient() {
				continue
			}
		}
		seen[subject] = true
		out = append(out, subject)
	}
	return out, nil
}

func clientRoster(ctx context.Context, people *personCache, entries []*models.Entry) ([]ClientRow, error) {
	subjects, err := clientSubjects(ctx, people, entries)
	if err != nil {
		return nil, err
	}
	var rows []ClientRow
	for _, personID := range subjects {
		p, err := people.get(ctx, personID)
		if err != nil {
			return nil, err
		}
		if p == nil || p.IsAnonymised() {
			continue
		}
		rows = append(rows, ClientRow{
			Ref:         p.ReferenceLabel,
			LastName:    p.LastName,
			MiddleName:  p.MiddleName,
			FirstName:   p.FirstName,
			Sex:         p.Gender,
			DateOfBirth: p.DateOfBirth,
		})
	}
	return rows, nil
}

// staffRoster covers current postings and everyone the log shows posted here.
func staffRoster(ctx context.Context, tx store.Tx, people *personCache, shelterID id.ShelterID, entries []*models.Entry) ([]StaffRow, error) {
	seen := make(map[id.PersonID]bool)
	var ids []id.PersonID
	add := func(personID id.PersonID) {
		if !seen[personID] {
			seen[personID] = true
			ids = append(ids, personID)
		}
	}

	assignments, err := tx.ListStaffAssignments(ctx, shelterID)
	if err != nil {
		return nil, err
	}
	for _, a := range assignments {
		add(a.PersonID)
	}
	for _, e := range entries {
		if e.Kind == models.EventCheckIn && e.Comment == models.CommentStaff && e.SubjectID != nil {
			add(*e.SubjectID)
		}
	}

	var rows []StaffRow
	for _, personID := range ids {
		p, err := people.get(ctx, personID)
		if err != nil {
			return nil, err
		}
		if p == nil || !p.IsStaff() {
			continue
		}
		rows = append(rows, StaffRow{Organisation: p.Organisation, LastName: p.LastName, FirstName: p.FirstName})
	}
	return rows, nil
}

func buildLogRows(ctx context.Context, people *personCache, entries []*models.Entry) ([]LogRow, error) {
	rows := make([]LogRow, 0, len(entries))
	for _, e := range entries {
		var person string
		if e.SubjectID != nil {
			p, err := people.get(ctx, *e.SubjectID)
			if err != nil {
				return nil, err
			}
			if p != nil {
				person = p.DisplayName()
			}
		}
		rows = append(rows, LogRow{
			At:      e.Timestamp,
			User:    e.ActorName,
			Event:   e.Kind.Label(),
			Comment: e.Comment,
			Person:  person,
			Status:  e.StatusSnapshot.Label(),
		})
	}
	return rows, nil
}

func exportFilename(shelterName string, now time.Time) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(shelterName) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		slug = "shelter"
	}
	return slug + "-export-" + now.Format("20060102") + ".xlsx"
}
