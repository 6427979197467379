package client

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrepreneur-whisperer/site/server/internal/models"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestConversation_CapsAt40(t *testing.T) {
	clk := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	path := filepath.Join(t.TempDir(), "conv.json")
	conv, err := openConversation(path, clk.now)
	require.NoError(t, err)

	for i := range 50 {
		require.NoError(t, conv.Append(models.RoleUser, fmt.Sprintf("m%d", i)))
	}
	h := conv.History()
	require.Len(t, h, MaxStoredTurns)
	assert.Equal(t, "m10", h[0].Content)
	assert.Equal(t, "m49", h[len(h)-1].Content)
}

func TestConversation_IdleReset(t *testing.T) {
	clk := &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	path := filepath.Join(t.TempDir(), "conv.json")
	conv, err := openConversation(path, clk.now)
	require.NoError(t, err)
	require.NoError(t, conv.Append(models.RoleUser, "hello"))

	clk.t = clk.t.Add(44 * time.Minute)
	reopened, err := openConversation(path, clk.now)
	require.NoError(t, err)
	assert.Len(t, reopened.History(), 1)

	clk.t = clk.t.Add(2 * time.Minute)
	assert.Empty(t, conv.History())
	stale, err := openConversation(path, clk.now)
	require.NoError(t, err)
	assert.Empty(t, stale.History())
}

func TestConversation_CorruptAndReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conv.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	conv, err := OpenConversation(path)
	require.NoError(t, err)
	assert.Empty(t, conv.History())

	require.NoError(t, conv.Append(models.RoleUser, "hi"))
	require.NoError(t, conv.Reset())
	assert.Empty(t, conv.History())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
