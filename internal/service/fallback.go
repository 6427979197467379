package service

import (
	"fmt"
	"strings"

	"github.com/entrepreneur-whisperer/site/server/internal/models"
)

const (
	fallbackPassages   = 2
	fallbackExcerptMax = 500
)

// BuildFallbackAnswer composes a degraded answer straight from the retrieved
// passages. It is pure: the same inputs always give the same text.
func BuildFallbackAnswer(l Lang, question string, passages []models.Passage) string {
	msgs := messagesFor(l)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(msgs.fallbackApology, strings.TrimSpace(question)))
	sb.WriteString("\n\n")

	var bullets []string
	for _, p := range passages {
		if len(bullets) == fallbackPassages {
			break
		}
		if len(p.Chunks) == 0 {
			continue
		}
		excerpt := truncateRunes(strings.Join(strings.Fields(p.Chunks[0]), " "), fallbackExcerptMax)
		if excerpt == "" {
			continue
		}
		bullets = append(bullets, fmt.Sprintf("• %s : %s", p.SourceName, excerpt))
	}

	if len(bullets) == 0 {
		sb.WriteString(msgs.noExcerpt)
		return sb.String()
	}
	sb.WriteString(msgs.fallbackIntro)
	sb.WriteString("\n")
	sb.WriteString(strings.Join(bullets, "\n"))
	return sb.String()
}
