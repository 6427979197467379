package service

import (
	"context"
	"time"
)

// Budget tuning. Every sub-call budget is carved from what is left of the
// request deadline, so sub-budgets plus safetyMargin never exceed it.
const (
	retrievalCap     = 12 * time.Second
	minGeneration    = 5 * time.Second
	retryReserve     = 4 * time.Second
	retryCap         = 6 * time.Second
	minRetry         = time.Second
	safetyMargin     = time.Second
	budgetFloorStage = "budget"
)

// Budget is the deadline clock of one request, measured once at start.
type Budget struct {
	start    time.Time
	deadline time.Duration
	now      func() time.Time
}

// NewBudget starts the clock.
func NewBudget(deadline time.Duration) *Budget {
	return newBudgetAt(time.Now, deadline)
}

func newBudgetAt(now func() time.Time, deadline time.Duration) *Budget {
	return &Budget{start: now(), deadline: deadline, now: now}
}

// Deadline is the configured total.
func (b *Budget) Deadline() time.Duration { return b.deadline }

// Elapsed since start.
func (b *Budget) Elapsed() time.Duration { return b.now().Sub(b.start) }

// Remaining is deadline − elapsed, never negative.
func (b *Budget) Remaining() time.Duration {
	return max(b.deadline-b.Elapsed(), 0)
}

// Context derives the request context that expires with the budget.
func (b *Budget) Context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithDeadline(parent, b.start.Add(b.deadline))
}

// Retrieval returns the search sub-budget, leaving room for a minimal
// generation afterwards.
func (b *Budget) Retrieval() (time.Duration, error) {
	d := min(retrievalCap, b.Remaining()-minGeneration-safetyMargin)
	if d <= 0 {
		return 0, &DeadlineError{Stage: budgetFloorStage}
	}
	return d, nil
}

// Generation returns the completion sub-budget. When resumable, a slice is
// held back for the single follow-up retrieval.
func (b *Budget) Generation(resumable bool) (time.Duration, error) {
	d := b.Remaining() - safetyMargin
	if resumable {
		d -= retryReserve
	}
	if d <= 0 {
		return 0, &DeadlineError{Stage: budgetFloorStage}
	}
	return d, nil
}

// Retry returns what the follow-up retrieval may use and whether it is worth
// attempting at all.
func (b *Budget) Retry() (time.Duration, bool) {
	d := min(retryCap, b.Remaining()-safetyMargin)
	return d, d > minRetry
}
