// Package model defines the core domain entities: companies under analysis,
// their competitors, gathered news, generated insights, and the knowledge
// chunks derived from all of them for retrieval.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Company is the subject of an analysis session. Created on the first
// analysis request with only a name; description, industry, and welcome
// message are filled in once background analysis completes.
type Company struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Industry       string    `json:"industry,omitempty"`
	WelcomeMessage string    `json:"welcome_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Insight is a strategic observation synthesized from competitor profiles
// and news. Kind is one of "opportunity", "threat", or "trend".
type Insight struct {
	ID                 uuid.UUID `json:"id"`
	CompanyID          uuid.UUID `json:"company_id"`
	Title              string    `json:"title"`
	Content            string    `json:"content"`
	Kind               string    `json:"kind"`
	RelatedCompetitors []string  `json:"related_competitors,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}
