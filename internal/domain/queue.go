package domain

import (
	"fmt"
	"time"
)

// Downloads records which deliverables were written for an item
type Downloads struct {
	MetadataSaved bool `json:"metadata_saved"`
	ContentSaved  bool `json:"content_saved"`
	AssetSaved    bool `json:"asset_saved"`
}

// QueueItem is the unit of work of a harvesting job
type QueueItem struct {
	RemoteID      string     `json:"remote_id"`
	Slug          string     `json:"slug"`                     // Resolved or candidate slug used for API calls
	CanonicalSlug string     `json:"canonical_slug,omitempty"` // Selected localized variant
	Title         string     `json:"title,omitempty"`
	Status        ItemStatus `json:"status"`
	Attempts      int        `json:"attempts"` // Network attempts spent, persisted across restarts
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	NoTarget      bool       `json:"no_target,omitempty"` // Completed without a canonical variant
	Downloads     Downloads  `json:"downloads"`
}

// QueueState is the persisted aggregate and the only source of truth for resumption
type QueueState struct {
	RunID      string      `json:"run_id"`
	TotalItems int         `json:"total_items"`
	Completed  int         `json:"completed"`
	Failed     int         `json:"failed"`
	Excluded   int         `json:"excluded"` // Catalog entries left out because no slug was resolved
	Cursor     int         `json:"cursor"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	Items      []QueueItem `json:"items"`
}

func NewQueueState(runID string, items []QueueItem, excluded int, now time.Time) *QueueState {
	s := &QueueState{
		RunID:     runID,
		Excluded:  excluded,
		CreatedAt: now,
		UpdatedAt: now,
		Items:     items,
	}
	s.Recount()
	return s
}

// Recount recomputes the aggregate counters from the items
func (s *QueueState) Recount() {
	s.TotalItems = len(s.Items)
	s.Completed = 0
	s.Failed = 0
	for i := range s.Items {
		switch s.Items[i].Status {
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		}
	}
}

// AdvanceCursor moves the cursor over the prefix of terminal items. It never moves backwards.
func (s *QueueState) AdvanceCursor() {
	for s.Cursor < len(s.Items) && s.Items[s.Cursor].Status.IsTerminal() {
		s.Cursor++
	}
}

// Validate checks the structural invariants of a loaded state
func (s *QueueState) Validate() error {
	seen := make(map[string]struct{}, len(s.Items))
	for _, item := range s.Items {
		if item.RemoteID == "" {
			return fmt.Errorf("queue item without remote id")
		}
		if _, dup := seen[item.RemoteID]; dup {
			return fmt.Errorf("duplicate queue item %s", item.RemoteID)
		}
		seen[item.RemoteID] = struct{}{}
		if !IsKnownStatus(item.Status) {
			return fmt.Errorf("queue item %s has unknown status %q", item.RemoteID, item.Status)
		}
	}
	if s.Cursor < 0 || s.Cursor > len(s.Items) {
		return fmt.Errorf("cursor %d out of range [0,%d]", s.Cursor, len(s.Items))
	}
	if s.Completed+s.Failed > s.TotalItems {
		return fmt.Errorf("completed (%d) + failed (%d) exceeds total (%d)", s.Completed, s.Failed, s.TotalItems)
	}
	return nil
}

// Clone returns a deep copy safe to hand to readers outside the commit lock
func (s *QueueState) Clone() *QueueState {
	c := *s
	c.Items = make([]QueueItem, len(s.Items))
	copy(c.Items, s.Items)
	for i := range c.Items {
		if t := s.Items[i].LastAttemptAt; t != nil {
			v := *t
			c.Items[i].LastAttemptAt = &v
		}
	}
	return &c
}

type Summary struct {
	Total       int     `json:"total"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	Pending     int     `json:"pending"`
	NoTarget    int     `json:"no_target"`
	Excluded    int     `json:"excluded"`
	Cursor      int     `json:"cursor"`
	SuccessRate float64 `json:"success_rate"` // Completed over finished items, in percent
}

func (s *QueueState) Summary() Summary {
	sum := Summary{
		Total:     s.TotalItems,
		Completed: s.Completed,
		Failed:    s.Failed,
		Pending:   s.TotalItems - s.Completed - s.Failed,
		Excluded:  s.Excluded,
		Cursor:    s.Cursor,
	}
	for i := range s.Items {
		if s.Items[i].NoTarget {
			sum.NoTarget++
		}
	}
	if finished := s.Completed + s.Failed; finished > 0 {
		sum.SuccessRate = float64(s.Completed) * 100 / float64(finished)
	}
	return sum
}

// Failures lists failed items in queue order
func (s *QueueState) Failures() []QueueItem {
	var failed []QueueItem
	for _, item := range s.Items {
		if item.Status == StatusFailed {
			failed = append(failed, item)
		}
	}
	return failed
}
