package models

import "time"

type AvailabilityKind string

const (
	AvailabilityValid   AvailabilityKind = "valid"
	AvailabilityOverlap AvailabilityKind = "overlap"
)

// AvailabilityResult is produced by the backend and consumed read-only: either
// Valid{Start, End} or Overlap{ConflictStart, ConflictEnd, Message}.
type AvailabilityResult struct {
	Kind          AvailabilityKind `json:"kind"`
	Start         time.Time        `json:"start"`
	End           time.Time        `json:"end"`
	ConflictStart time.Time        `json:"conflict_start,omitempty"`
	ConflictEnd   time.Time        `json:"conflict_end,omitempty"`
	Message       string           `json:"message,omitempty"`
}

func (r AvailabilityResult) IsValid() bool {
	return r.Kind == AvailabilityValid
}

func ValidPeriod(start, end time.Time) AvailabilityResult {
	return AvailabilityResult{Kind: AvailabilityValid, Start: start, End: end}
}

func OverlapPeriod(start, end, conflictStart, conflictEnd time.Time, message string) AvailabilityResult {
	return AvailabilityResult{
		Kind:          AvailabilityOverlap,
		Start:         start,
		End:           end,
		ConflictStart: conflictStart,
		ConflictEnd:   conflictEnd,
		Message:       message,
	}
}
