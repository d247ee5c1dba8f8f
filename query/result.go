package query

import (
	"fmt"
	"time"
)

// Result is the typed view returned by [Get].
type Result[T any] struct {
	// Data is the last good payload; it survives failed refreshes.
	Data      T
	HasData   bool
	IsLoading bool
	IsError   bool
	Err       error
	Stale     bool
	UpdatedAt time.Time
}

func resultOf[T any](s Snapshot) Result[T] {
	r := Result[T]{
		HasData:   s.HasData,
		IsLoading: s.IsLoading,
		IsError:   s.Err != nil,
		Err:       s.Err,
		Stale:     s.Stale,
		UpdatedAt: s.UpdatedAt,
	}
	if !s.HasData {
		return r
	}
	v, ok := s.Data.(T)
	if !ok {
		var zero T
		r.HasData = false
		r.IsError = true
		r.Err = fmt.Errorf("%w: have %T, want %T", ErrTypeMismatch, s.Data, zero)
		return r
	}
	r.Data = v
	return r
}

// Typed converts a snapshot to a [Result], e.g. inside an observer.
func Typed[T any](s Snapshot) Result[T] {
	return resultOf[T](s)
}
