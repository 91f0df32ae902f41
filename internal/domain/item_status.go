package domain

import "fmt"

type ItemStatus string

func (s ItemStatus) String() string {
	return string(s)
}

const (
	StatusPending    ItemStatus = "pending"
	StatusProcessing ItemStatus = "processing"
	StatusCompleted  ItemStatus = "completed"
	StatusFailed     ItemStatus = "failed"
)

var allowedTransitions = map[ItemStatus]map[ItemStatus]bool{
	"": {
		StatusPending: true,
	},
	StatusPending: {
		StatusProcessing: true,
		StatusFailed:     true, // attempt budget already spent before a restart
	},
	StatusProcessing: {
		StatusProcessing: true, // in-run retry after backoff
		StatusCompleted:  true,
		StatusFailed:     true,
		StatusPending:    true, // interrupted, picked up again on resume
	},
	StatusFailed: {
		StatusPending: true, // explicit requeue by the operator
	},
	StatusCompleted: {},
}

// IsTerminal reports whether the item needs no further work in this run
func (s ItemStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func IsKnownStatus(status ItemStatus) bool {
	_, ok := allowedTransitions[status]
	return ok && status != ""
}

func CanTransition(from, to ItemStatus) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// TransitionItem moves the item to the given status or returns an error for an illegal move
func TransitionItem(item *QueueItem, to ItemStatus) error {
	if !CanTransition(item.Status, to) {
		return fmt.Errorf("invalid item status transition: %q -> %q (remote_id=%s)", item.Status, to, item.RemoteID)
	}
	item.Status = to
	return nil
}
