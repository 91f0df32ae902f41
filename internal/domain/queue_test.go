package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCanTransition_AllowsExpectedPaths(t *testing.T) {
	cases := []struct {
		from ItemStatus
		to   ItemStatus
	}{
		{"", StatusPending},
		{StatusPending, StatusProcessing},
		{StatusProcessing, StatusCompleted},
		{StatusProcessing, StatusFailed},
		{StatusProcessing, StatusPending},
		{StatusProcessing, StatusProcessing},
		{StatusFailed, StatusPending},
	}

	for _, tc := range cases {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransition_RejectsInvalidPaths(t *testing.T) {
	cases := []struct {
		from ItemStatus
		to   ItemStatus
	}{
		{StatusPending, StatusCompleted},
		{StatusCompleted, StatusProcessing},
		{StatusCompleted, StatusPending},
		{StatusFailed, StatusProcessing},
		{"bogus", StatusPending},
	}

	for _, tc := range cases {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be rejected", tc.from, tc.to)
		}
	}
}

func TestTransitionItem_BlocksCompletedReprocessing(t *testing.T) {
	item := QueueItem{RemoteID: "SW-1", Status: StatusCompleted}
	if err := TransitionItem(&item, StatusProcessing); err == nil {
		t.Fatalf("expected completed item to stay completed")
	}
	if item.Status != StatusCompleted {
		t.Fatalf("status changed to %q", item.Status)
	}
}

func TestAdvanceCursor_StopsAtFirstOpenItem(t *testing.T) {
	state := NewQueueState("run", []QueueItem{
		{RemoteID: "a", Status: StatusCompleted},
		{RemoteID: "b", Status: StatusFailed},
		{RemoteID: "c", Status: StatusPending},
		{RemoteID: "d", Status: StatusCompleted},
	}, 0, time.Now())

	state.AdvanceCursor()
	if state.Cursor != 2 {
		t.Fatalf("expected cursor 2, got %d", state.Cursor)
	}

	state.Items[2].Status = StatusCompleted
	state.AdvanceCursor()
	if state.Cursor != 4 {
		t.Fatalf("expected cursor 4, got %d", state.Cursor)
	}

	state.Recount()
	if state.Completed != 3 || state.Failed != 1 || state.TotalItems != 4 {
		t.Fatalf("unexpected counters: %+v", state.Summary())
	}
	if err := state.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidate_RejectsDuplicates(t *testing.T) {
	state := NewQueueState("run", []QueueItem{
		{RemoteID: "a", Status: StatusPending},
		{RemoteID: "a", Status: StatusPending},
	}, 0, time.Now())
	if err := state.Validate(); err == nil {
		t.Fatalf("expected duplicate remote ids to be rejected")
	}
}

func TestSummary_SuccessRate(t *testing.T) {
	state := NewQueueState("run", []QueueItem{
		{RemoteID: "a", Status: StatusCompleted},
		{RemoteID: "b", Status: StatusCompleted, NoTarget: true},
		{RemoteID: "c", Status: StatusCompleted},
		{RemoteID: "d", Status: StatusFailed, LastError: "not found"},
		{RemoteID: "e", Status: StatusPending},
	}, 2, time.Now())

	sum := state.Summary()
	if sum.Pending != 1 || sum.NoTarget != 1 || sum.Excluded != 2 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum.SuccessRate != 75 {
		t.Fatalf("expected success rate 75, got %v", sum.SuccessRate)
	}
	if failures := state.Failures(); len(failures) != 1 || failures[0].RemoteID != "d" {
		t.Fatalf("unexpected failures: %+v", failures)
	}
}

func TestErrorKind_ClassifiesWrappedErrors(t *testing.T) {
	rle := &RateLimitError{URL: "http://x", RetryAfter: 3 * time.Second}
	wrapped := fmt.Errorf("fetch metadata: %w", rle)

	if !IsRetryable(wrapped) {
		t.Fatalf("expected rate limit to be retryable")
	}
	if got := RetryAfter(wrapped); got != 3*time.Second {
		t.Fatalf("expected retry after 3s, got %v", got)
	}
	if ErrorKind(wrapped) != "rate_limited" {
		t.Fatalf("unexpected kind %q", ErrorKind(wrapped))
	}
	if ErrorKind(fmt.Errorf("%w: short body", ErrMalformed)) != "malformed" {
		t.Fatalf("expected malformed kind")
	}
	if IsRetryable(ErrAntiBot) || IsRetryable(errors.New("boom")) {
		t.Fatalf("only rate limits are retryable")
	}
}
