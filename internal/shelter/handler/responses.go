package handler

// ListResponse wraps collections so the body stays an object.
type ListResponse[T any] struct {
	Items []T `json:"items"`
}
