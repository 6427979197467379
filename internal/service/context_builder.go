package service

import (
	"fmt"
	"strings"

	"github.com/entrepreneur-whisperer/site/server/internal/models"
)

// Context assembly limits.
const (
	MaxHistoryTurns   = 12
	contextPassages   = 2
	contextExcerptMax = 1200
	contextSeparator  = "\n\n---\n\n"
)

// TrimHistory keeps the last MaxHistoryTurns turns, normalises roles and
// drops turns whose content is blank.
func TrimHistory(history []models.ChatTurn) []models.ChatTurn {
	if len(history) > MaxHistoryTurns {
		history = history[len(history)-MaxHistoryTurns:]
	}
	out := make([]models.ChatTurn, 0, len(history))
	for _, h := range history {
		content := strings.TrimSpace(h.Content)
		if content == "" {
			continue
		}
		role := models.RoleUser
		if h.Role == models.RoleAssistant {
			role = models.RoleAssistant
		}
		out = append(out, models.ChatTurn{Role: role, Content: content})
	}
	return out
}

// AssembleContext renders up to two passages as one developer message. It
// never returns an empty string.
func AssembleContext(l Lang, passages []models.Passage) string {
	msgs := messagesFor(l)
	if len(passages) == 0 {
		return msgs.noExcerpt
	}

	parts := make([]string, 0, contextPassages)
	for i, p := range passages {
		if i == contextPassages {
			break
		}
		text := truncateRunes(strings.TrimSpace(strings.Join(p.Chunks, "\n")), contextExcerptMax)
		parts = append(parts, fmt.Sprintf("[%d] %s\n%s", i+1, p.SourceName, text))
	}
	return msgs.contextHeader + "\n\n" + strings.Join(parts, contextSeparator)
}

// truncateRunes cuts s to at most n runes, marking the cut with an ellipsis.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
