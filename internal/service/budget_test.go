package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestBudget_SubBudgetsFitDeadline(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := newBudgetAt(clock.Now, 55*time.Second)

	retrieval, err := b.Retrieval()
	require.NoError(t, err)
	assert.Equal(t, retrievalCap, retrieval)

	clock.Advance(retrieval)
	gen, err := b.Generation(true)
	require.NoError(t, err)

	clock.Advance(gen)
	retry, ok := b.Retry()
	require.True(t, ok)

	total := retrieval + gen + retry
	assert.Less(t, total, b.Deadline(), "sub-budgets %s must stay under the deadline", total)
}

func TestBudget_RetrievalLeavesRoomForGeneration(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := newBudgetAt(clock.Now, 8*time.Second)

	retrieval, err := b.Retrieval()
	require.NoError(t, err)
	assert.Equal(t, 8*time.Second-minGeneration-safetyMargin, retrieval)
}

func TestBudget_Exhausted(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	b := newBudgetAt(clock.Now, 8*time.Second)
	clock.Advance(7 * time.Second)

	_, err := b.Retrieval()
	assert.True(t, IsDeadline(err))

	_, err = b.Generation(true)
	assert.True(t, IsDeadline(err))

	_, ok := b.Retry()
	assert.False(t, ok)
	assert.Equal(t, time.Second, b.Remaining())

	clock.Advance(time.Minute)
	assert.Zero(t, b.Remaining())
}
