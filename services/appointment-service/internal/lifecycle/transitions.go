// Package lifecycle holds the appointment status transition table. It is the
// single source of truth: adding a status means editing this table, never a
// call site.
package lifecycle

import "github.com/garageboard/garageboard/services/appointment-service/internal/model"

var transitions = map[model.Status][]model.Status{
	model.StatusScheduled:  {model.StatusInProgress, model.StatusCanceled},
	model.StatusInProgress: {model.StatusReady, model.StatusCanceled},
	model.StatusReady:      {model.StatusCompleted, model.StatusCanceled},
	model.StatusCompleted:  {},
	model.StatusCanceled:   {},
}

// Allowed reports whether an appointment may move from one status to another.
func Allowed(from, to model.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status has no outgoing edges.
func Terminal(s model.Status) bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}
