// Package llm provides text generation backends. The service depends on the
// Generator interface; production uses the Gemini client, tests use fakes.
package llm

import "context"

// Request describes one generation call.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	// MaxOutputTokens caps the response; zero uses the client default.
	MaxOutputTokens int
	// JSONOutput asks the model for a JSON response body.
	JSONOutput bool
	// WebSearch enables search grounding for long-form research calls.
	WebSearch bool
}

// Generator produces model text for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}
