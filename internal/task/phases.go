// Package task implements the Task Phase Machine: pure functions over a
// task's type and current phase, consulted before any phase write.
package task

import (
	"strings"

	"calmd/internal/calmerr"
	"calmd/internal/model"
)

// phaseChains lists, for each task type, the full forward phase order.
// DONE is terminal: it has no successors for either type.
var phaseChains = map[model.TaskType][]string{
	model.TaskTypeFeature: {"SPEC", "DESIGN", "IMPLEMENT", "CODE_REVIEW", "TEST", "INTEGRATE", "VERIFY", "DONE"},
	model.TaskTypeBug:     {"REPORTED", "INVESTIGATED", "FIXED", "REVIEWED", "TESTED", "MERGED", "DONE"},
}

func chainFor(taskType model.TaskType) ([]string, error) {
	chain, ok := phaseChains[taskType]
	if !ok {
		return nil, calmerr.New(calmerr.KindValidation, "task_type %q is not one of: feature, bug", taskType)
	}
	return chain, nil
}

func indexOf(chain []string, phase string) int {
	for i, p := range chain {
		if p == phase {
			return i
		}
	}
	return -1
}

// InitialPhase returns the first phase a new task of this type starts in.
func InitialPhase(taskType model.TaskType) (string, error) {
	chain, err := chainFor(taskType)
	if err != nil {
		return "", err
	}
	return chain[0], nil
}

// NextPhases returns the phases reachable in one step from phase. DONE (and
// its bug equivalent) has no successors, and an unrecognized phase name
// yields a validation error rather than an empty silently-accepted result.
func NextPhases(taskType model.TaskType, phase string) ([]string, error) {
	chain, err := chainFor(taskType)
	if err != nil {
		return nil, err
	}
	i := indexOf(chain, phase)
	if i < 0 {
		return nil, calmerr.New(calmerr.KindValidation,
			"phase %q is not valid for task_type %q; valid phases are: %s", phase, taskType, strings.Join(chain, ", "))
	}
	if i == len(chain)-1 {
		return nil, nil // DONE is terminal
	}
	return []string{chain[i+1]}, nil
}

// IsValidTransition reports whether moving from `from` to `to` is one of the
// forward edges in the phase chain for taskType. Any non-adjacent, sideways,
// or backward move is invalid, as is DONE -> anything.
func IsValidTransition(taskType model.TaskType, from, to string) (bool, error) {
	next, err := NextPhases(taskType, from)
	if err != nil {
		return false, err
	}
	for _, p := range next {
		if p == to {
			return true, nil
		}
	}
	return false, nil
}

// ValidateTransition is IsValidTransition plus a typed error describing the
// one legal next phase, for callers that want to reject a write outright.
func ValidateTransition(taskType model.TaskType, from, to string) error {
	ok, err := IsValidTransition(taskType, from, to)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	next, nextErr := NextPhases(taskType, from)
	if nextErr != nil {
		return nextErr
	}
	if len(next) == 0 {
		return calmerr.New(calmerr.KindValidation, "%q is terminal for task_type %q; no transition to %q is valid", from, taskType, to)
	}
	return calmerr.New(calmerr.KindValidation,
		"%s -> %s is not a valid transition for task_type %q; the only legal next phase from %s is %s", from, to, taskType, from, strings.Join(next, " or "))
}
