package events

import (
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/fairyhunter13/agent-storefront/internal/model"
)

// UnknownAgent labels visits that carry no recognizable agent identity.
const UnknownAgent = "unknown"

// knownAgents are crawler and assistant User-Agent tokens, most specific
// first so "ChatGPT-User" is not reported as a generic match.
var knownAgents = []string{
	"ChatGPT-User",
	"OAI-SearchBot",
	"GPTBot",
	"Claude-User",
	"ClaudeBot",
	"anthropic-ai",
	"PerplexityBot",
	"Google-Extended",
	"Bytespider",
	"CCBot",
	"Amazonbot",
	"Applebot-Extended",
}

const maxAgentParam = 64

// DetectAgent names the agent behind r: the ?agent= query parameter when
// present, else a known token in the User-Agent header, else UnknownAgent.
func DetectAgent(r *http.Request) string {
	if a := strings.TrimSpace(strings.ToValidUTF8(r.URL.Query().Get("agent"), "")); a != "" {
		return truncateRunes(a, maxAgentParam)
	}
	ua := strings.ToLower(r.UserAgent())
	for _, token := range knownAgents {
		if strings.Contains(ua, strings.ToLower(token)) {
			return token
		}
	}
	return UnknownAgent
}

// truncateRunes cuts s to at most n bytes without splitting a character.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// NewVisit builds a visit record for a feed read.
func NewVisit(r *http.Request, storeID, format string, at time.Time) model.Visit {
	return model.Visit{
		ID:        uuid.NewString(),
		StoreID:   storeID,
		Agent:     DetectAgent(r),
		Format:    format,
		UserAgent: r.UserAgent(),
		VisitedAt: at.UTC(),
	}
}
