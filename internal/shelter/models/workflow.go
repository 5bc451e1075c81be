package models

import (
	"time"

	id "shelterops/pkg/domain"
)

// WorkflowKey is the only workflow tag key in use.
const WorkflowKey = "workflow_status"

// WorkflowValue drives the retention state machine.
type WorkflowValue string

const (
	WorkflowClosed   WorkflowValue = "CLOSED"
	WorkflowExported WorkflowValue = "EXPORTED"
)

// WorkflowTag is unique per (shelter, key).
//
// Invariants:
//   - EXPORTED implies the shelter is closed and an anonymise task is
//     scheduled or the log is already archived
//   - CLOSED implies the shelter is closed and has not been exported
type WorkflowTag struct {
	ID        id.TagID      `json:"id"`
	ShelterID id.ShelterID  `json:"shelter_id"`
	Key       string        `json:"key"`
	Value     WorkflowValue `json:"value"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// AnonymiseTaskName is the scheduled task that runs the anonymisation cascade.
const AnonymiseTaskName = "anonymise_task"

// AnonymiseTaskArgs is the positional argument tuple identifying the task.
func AnonymiseTaskArgs(shelterID id.ShelterID, tagID id.TagID) []any {
	return []any{shelterID.String(), tagID.String()}
}
