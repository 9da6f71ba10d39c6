package model

import (
	"time"

	"github.com/google/uuid"
)

// ResearchStatus tracks the lifecycle of a competitor's deep-research task.
//
// Transitions: not_started → pending → completed | error. A retry after a
// terminal error goes back through pending. A competitor that is pending
// rejects new research triggers; a completed one is only re-researched on
// an explicit refresh.
type ResearchStatus string

const (
	ResearchNotStarted ResearchStatus = "not_started"
	ResearchPending    ResearchStatus = "pending"
	ResearchCompleted  ResearchStatus = "completed"
	ResearchError      ResearchStatus = "error"
)

// Valid reports whether s is one of the four known statuses.
func (s ResearchStatus) Valid() bool {
	switch s {
	case ResearchNotStarted, ResearchPending, ResearchCompleted, ResearchError:
		return true
	}
	return false
}

// Terminal reports whether s is an end state for a research run.
func (s ResearchStatus) Terminal() bool {
	return s == ResearchCompleted || s == ResearchError
}

// CanStartResearch reports whether a new research task may be accepted.
// Pending rejects double dispatch; completed requires an explicit refresh
// path, so only not_started and error accept a trigger.
func (s ResearchStatus) CanStartResearch() bool {
	return s == ResearchNotStarted || s == ResearchError
}

// Competitor is a rival of a Company. Research fields are mutated only by
// the research runner; once ResearchStatus leaves not_started,
// ResearchMarkdown is always a non-empty string (content or a Markdown
// diagnostic, never null).
type Competitor struct {
	ID               uuid.UUID      `json:"id"`
	CompanyID        uuid.UUID      `json:"company_id"`
	Name             string         `json:"name"`
	Description      string         `json:"description,omitempty"`
	Strengths        []string       `json:"strengths,omitempty"`
	Weaknesses       []string       `json:"weaknesses,omitempty"`
	ResearchStatus   ResearchStatus `json:"research_status"`
	ResearchMarkdown string         `json:"research_markdown,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// NewsArticle is a news item gathered for a competitor.
type NewsArticle struct {
	ID           uuid.UUID `json:"id"`
	CompetitorID uuid.UUID `json:"competitor_id"`
	Title        string    `json:"title"`
	Source       string    `json:"source"`
	URL          string    `json:"url,omitempty"`
	Content      string    `json:"content"`
	PublishedAt  time.Time `json:"published_at"`
	CreatedAt    time.Time `json:"created_at"`
}
