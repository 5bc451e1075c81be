package models

import (
	"time"

	id "shelterops/pkg/domain"
)

type EventKind string

const (
	EventOpen         EventKind = "open"
	EventCheckIn      EventKind = "check_in"
	EventCheckOut     EventKind = "check_out"
	EventUpdate       EventKind = "update"
	EventDataExport   EventKind = "data_export"
	EventDataImport   EventKind = "data_import"
	EventStatusChange EventKind = "status_change"
)

// Label is the human readable form used in the export workbook.
func (k EventKind) Label() string {
	switch k {
	case EventOpen:
		return "Open"
	case EventCheckIn:
		return "Check-In"
	case EventCheckOut:
		return "Check-Out"
	case EventUpdate:
		return "Update"
	case EventDataExport:
		return "Data Export"
	case EventDataImport:
		return "Data Import"
	case EventStatusChange:
		return "Status Change"
	}
	return string(k)
}

// Comments written by the engine. Anonymisation collects client subjects from
// check-in entries carrying one of the client comments.
const (
	CommentClient          = "Client"
	CommentClientImport    = "Client Import"
	CommentClientRefPrefix = "Client Ref: "
	CommentClientGoingTo   = "Client going to: "
	CommentStaff           = "Staff"
	CommentShelter         = "Shelter"
	CommentSpreadsheet     = "Spreadsheet Import"
)

// Entry is one immutable event log line. Archived is the only field that ever changes.
type Entry struct {
	ID             id.EntryID   `json:"id"`
	Seq            int64        `json:"seq"`
	ShelterID      id.ShelterID `json:"shelter_id"`
	ActorID        string       `json:"actor_id"`
	ActorName      string       `json:"actor_name,omitempty"`
	Timestamp      time.Time    `json:"timestamp"`
	Kind           EventKind    `json:"kind"`
	SubjectID      *id.PersonID `json:"subject_id,omitempty"`
	Comment        string       `json:"comment,omitempty"`
	Archived       bool         `json:"archived"`
	StatusSnapshot Status       `json:"status_snapshot,omitempty"`
}

// IsClientCheckIn reports whether the entry records a client arriving.
func (e *Entry) IsClientCheckIn() bool {
	if e.Kind != EventCheckIn || e.SubjectID == nil {
		return false
	}
	return IsClientCheckInComment(e.Comment)
}

// IsClientCheckInComment reports whether a check-in comment marks a client.
// The retention workflow finds the clients to anonymise by these comments.
func IsClientCheckInComment(comment string) bool {
	switch {
	case comment == CommentClient, comment == CommentClientImport:
		return true
	case len(comment) >= len(CommentClientRefPrefix) && comment[:len(CommentClientRefPrefix)] == CommentClientRefPrefix:
		return true
	}
	return false
}

func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	cp := *e
	if e.SubjectID != nil {
		sid := *e.SubjectID
		cp.SubjectID = &sid
	}
	return &cp
}
