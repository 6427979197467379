package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrepreneur-whisperer/site/server/internal/models"
)

// Local history limits.
const (
	IdleReset      = 45 * time.Minute
	MaxStoredTurns = 40
)

// Conversation is the locally persisted chat history, stored as one JSON
// file. It is meant for a single interactive user.
type Conversation struct {
	path string
	now  func() time.Time

	turns     []models.ChatTurn
	updatedAt time.Time
}

type conversationFile struct {
	UpdatedAt time.Time         `json:"updated_at"`
	Turns     []models.ChatTurn `json:"turns"`
}

// OpenConversation loads the history at path. A missing file, or one idle
// for longer than IdleReset, starts an empty conversation.
func OpenConversation(path string) (*Conversation, error) {
	return openConversation(path, time.Now)
}

func openConversation(path string, now func() time.Time) (*Conversation, error) {
	c := &Conversation{path: path, now: now}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read conversation: %w", err)
	}

	var f conversationFile
	if err := json.Unmarshal(raw, &f); err != nil {
		// A corrupt file starts a fresh conversation.
		return c, nil
	}
	if now().Sub(f.UpdatedAt) > IdleReset {
		return c, nil
	}
	c.turns, c.updatedAt = capTurns(f.Turns), f.UpdatedAt
	return c, nil
}

// History returns a copy of the stored turns, oldest first.
func (c *Conversation) History() []models.ChatTurn {
	if c.idle() {
		c.turns = nil
	}
	return append([]models.ChatTurn(nil), c.turns...)
}

// Append stores one turn and saves the file.
func (c *Conversation) Append(role, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if c.idle() {
		c.turns = nil
	}
	c.turns = capTurns(append(c.turns, models.ChatTurn{Role: role, Content: content}))
	c.updatedAt = c.now()
	return c.save()
}

// Reset clears the history and removes the file.
func (c *Conversation) Reset() error {
	c.turns, c.updatedAt = nil, time.Time{}
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove conversation: %w", err)
	}
	return nil
}

func (c *Conversation) idle() bool {
	return !c.updatedAt.IsZero() && c.now().Sub(c.updatedAt) > IdleReset
}

func (c *Conversation) save() error {
	raw, err := json.MarshalIndent(conversationFile{UpdatedAt: c.updatedAt, Turns: c.turns}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create conversation dir: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write conversation: %w", err)
	}
	return os.Rename(tmp, c.path)
}

func capTurns(turns []models.ChatTurn) []models.ChatTurn {
	if len(turns) > MaxStoredTurns {
		turns = turns[len(turns)-MaxStoredTurns:]
	}
	return turns
}
