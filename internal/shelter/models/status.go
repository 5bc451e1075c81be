package models

import (
	"strings"

	dErrors "shelterops/pkg/domain-errors"
)

// Status is the operational state of a shelter.
type Status string

const (
	StatusClosedNominated Status = "closed_nominated"
	StatusGreen           Status = "green"
	StatusAmber           Status = "amber"
	StatusRed             Status = "red"
	StatusClosedCommunity Status = "closed_community"
)

// StatusClosedRequest is the generic closed value callers may send; it is
// canonicalised against the shelter type before being applied.
const StatusClosedRequest = "closed"

// DefaultStatus is applied to newly created shelters.
const DefaultStatus = StatusGreen

func (s Status) IsValid() bool {
	switch s {
	case StatusClosedNominated, StatusGreen, StatusAmber, StatusRed, StatusClosedCommunity:
		return true
	}
	return false
}

func (s Status) IsClosed() bool {
	return s == StatusClosedNominated || s == StatusClosedCommunity
}

func (s Status) IsOpen() bool {
	return s.IsValid() && !s.IsClosed()
}

// ListLabel collapses both closed values to "closed" for list views.
// Reports and exports keep the distinction.
func (s Status) ListLabel() string {
	if s.IsClosed() {
		return StatusClosedRequest
	}
	return string(s)
}

// Label is the human readable form used in workbooks and log comments.
func (s Status) Label() string {
	switch s {
	case StatusClosedNominated:
		return "Closed-Nominated"
	case StatusClosedCommunity:
		return "Closed-Community"
	case StatusGreen:
		return "Green"
	case StatusAmber:
		return "Amber"
	case StatusRed:
		return "Red"
	}
	return string(s)
}

func (s Status) String() string { return string(s) }

// StatusRequest is a parsed, not yet canonicalised, requested status.
type StatusRequest struct {
	status Status
	closed bool
}

// ParseStatusRequest accepts any concrete status, the generic "closed", and the
// hyphenated labels ("Closed-Nominated").
func ParseStatusRequest(raw string) (StatusRequest, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	v = strings.ReplaceAll(v, "-", "_")
	if v == StatusClosedRequest {
		return StatusRequest{closed: true}, nil
	}
	s := Status(v)
	if !s.IsValid() {
		return StatusRequest{}, dErrors.New(dErrors.CodeValidation, "unknown shelter status: "+raw)
	}
	return StatusRequest{status: s, closed: s.IsClosed()}, nil
}

func (r StatusRequest) IsClosed() bool { return r.closed }

// Resolve returns the status to apply for a shelter of the given type.
// Any closed request maps to the closed value legal for the type.
func (r StatusRequest) Resolve(t *ShelterType) (Status, error) {
	if !r.closed {
		return r.status, nil
	}
	return ClosedStatusFor(t)
}

// ClosedStatusFor maps a shelter type to its only legal closed status.
func ClosedStatusFor(t *ShelterType) (Status, error) {
	if t == nil {
		return "", dErrors.New(dErrors.CodeInvalidType, "shelter has no type")
	}
	switch {
	case strings.EqualFold(t.Name, TypeNominated):
		return StatusClosedNominated, nil
	case strings.EqualFold(t.Name, TypeCommunity):
		return StatusClosedCommunity, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidType, "shelter type "+t.Name+" has no closed status")
}
