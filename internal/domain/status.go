package domain

import (
	"fmt"
	"strings"
)

// Status represents the canonical, provider-agnostic lifecycle state of a
// notification.
type Status string

const (
	StatusCreated          Status = "created"
	StatusSending          Status = "sending"
	StatusPending          Status = "pending"
	StatusDelivered        Status = "delivered"
	StatusTemporaryFailure Status = "temporary-failure"
	StatusPermanentFailure Status = "permanent-failure"
	StatusTechnicalFailure Status = "technical-failure"
)

// StatusFailed is a filter-only value accepted by SubstituteStatus; it is
// never stored.
const StatusFailed = "failed"

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusSending, StatusPending, StatusDelivered,
		StatusTemporaryFailure, StatusPermanentFailure, StatusTechnicalFailure:
		return true
	}
	return false
}

// IsTerminal reports whether no further provider-driven transition is
// accepted from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusPermanentFailure, StatusTechnicalFailure:
		return true
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// statusTransitions is the DAG of allowed transitions. Technical failure
// is platform-driven and can land before dispatch; every other move out of
// created and sending is provider-driven. Terminal statuses have no
// successors.
var statusTransitions = map[Status][]Status{
	StatusCreated: {StatusSending, StatusTechnicalFailure},
	StatusSending: {
		StatusPending,
		StatusDelivered,
		StatusTemporaryFailure,
		StatusPermanentFailure,
		StatusTechnicalFailure,
	},
	StatusPending: {
		StatusDelivered,
		StatusTemporaryFailure,
		StatusPermanentFailure,
		StatusTechnicalFailure,
	},
	StatusTemporaryFailure: {
		StatusDelivered,
		StatusPermanentFailure,
		StatusTechnicalFailure,
	},
	StatusDelivered:        {},
	StatusPermanentFailure: {},
	StatusTechnicalFailure: {},
}

// CanTransition reports whether the DAG allows moving from one status to
// another.
func CanTransition(from, to Status) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Finality ranks statuses by how final they are. The status store only
// writes a status strictly more final than the current one, which makes
// duplicate and out-of-order callbacks no-ops.
func Finality(s Status) int {
	switch s {
	case StatusCreated:
		return 0
	case StatusSending:
		return 1
	case StatusPending:
		return 2
	case StatusTemporaryFailure:
		return 3
	case StatusDelivered, StatusPermanentFailure, StatusTechnicalFailure:
		return 4
	}
	return -1
}

// StatusUpdateAllowed reports whether next may overwrite current. Equal or
// less-final statuses are duplicates, not errors; the caller records an
// observation and skips the write.
func StatusUpdateAllowed(current, next Status) bool {
	return Finality(next) > Finality(current)
}

// SubstituteStatus expands a caller-supplied filter value into the storage
// statuses it represents. "failed" covers every failure status; storage
// values pass through unchanged. The result is deduplicated.
func SubstituteStatus(filters ...string) ([]Status, error) {
	seen := make(map[Status]struct{}, len(filters))
	out := make([]Status, 0, len(filters))

	add := func(s Status) {
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	for _, f := range filters {
		normalized := strings.ToLower(strings.TrimSpace(f))
		if normalized == StatusFailed {
			add(StatusTemporaryFailure)
			add(StatusPermanentFailure)
			add(StatusTechnicalFailure)
			continue
		}

		st, err := ParseStatusFromString(normalized)
		if err != nil {
			return nil, err
		}
		add(st)
	}

	return out, nil
}
