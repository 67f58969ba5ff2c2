package ai

import (
	"context"
)

// Briefer generates a pre-departure briefing for the courier of an approved
// delivery. Implementations may call out to an LLM; callers must treat the
// result as advisory text, never as dispatch state.
type Briefer interface {
	// GenerateBriefing produces handling and routing guidance for one delivery.
	GenerateBriefing(ctx context.Context, input BriefingInput) (*Briefing, error)
}
