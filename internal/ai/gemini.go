package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiBriefer implements Briefer using Google's Gemini models.
type GeminiBriefer struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGeminiBriefer initializes a new Gemini client.
// apiKey should be provided from environment variables.
func NewGeminiBriefer(ctx context.Context, apiKey string) (*GeminiBriefer, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	// Gemini 2.0 Flash keeps the briefing call cheap and fast enough to run
	// inline at dispatch time.
	model := client.GenerativeModel("gemini-2.0-flash")

	// Force JSON so the response parses straight into Briefing.
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.4)

	return &GeminiBriefer{
		client: client,
		model:  model,
	}, nil
}

// Close cleans up the Gemini client resources.
func (b *GeminiBriefer) Close() {
	b.client.Close()
}

// GenerateBriefing builds the courier's pre-departure briefing for one delivery.
func (b *GeminiBriefer) GenerateBriefing(ctx context.Context, input BriefingInput) (*Briefing, error) {
	prompt := buildBriefingPrompt(input)

	resp, err := b.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("gemini generation error: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response candidates from Gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		}
	}

	// JSON mode should already return bare JSON, but strip markdown fences in
	// case the model wraps the payload anyway.
	cleanJSON := cleanJSONString(responseText.String())

	var out Briefing
	if err := json.Unmarshal([]byte(cleanJSON), &out); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w. Raw: %s", err, cleanJSON)
	}

	return &out, nil
}

func buildBriefingPrompt(in BriefingInput) string {
	destination := in.Destination
	if destination == "" {
		destination = "UNKNOWN_DESTINATION"
	}
	arrival := in.EstimatedArrival
	if arrival == "" {
		arrival = "UNKNOWN_TIME"
	}
	priority := in.Priority
	if priority == "" {
		priority = "normal"
	}

	return fmt.Sprintf(`Role: You are the dispatch assistant for a hospital blood-bank
delivery service. A courier is about to depart with a medical consignment and
needs a short, factual briefing.

Consignment:
- Blood group: %s
- Component: %s
- Quantity (units): %d
- Priority: %s
- Destination: %s
- Committed arrival time: %s

RULES:
1. HANDLING NOTES must match the component being carried:
   - Whole blood and red cells: keep at 2-6 degrees C in the validated transport box; never freeze.
   - Platelets: keep at 20-24 degrees C with gentle agitation; NEVER refrigerate.
   - Plasma (fresh frozen): keep frozen; deliver before any visible thawing.
   - Always: no direct sunlight, no stacking heavy items on the box, log the box seal number.
2. ROUTE ADVICE: one or two sentences about pacing against the committed
   arrival time. Do not invent road names or traffic facts.
3. HANDOFF REMINDER: remind the courier that the receiver confirms the handoff
   with a one-time code at the destination, and the delivery is not complete
   until that code is accepted.
4. TONE: plain, professional English. No emoji, no markdown, no all-caps
   system tokens.

Output JSON Schema:
{
  "summary": "string (one short paragraph)",
  "handling_notes": ["string"],
  "route_advice": "string",
  "handoff_reminder": "string"
}
`, in.BloodGroup, in.Component, in.Quantity, priority, destination, arrival)
}

// cleanJSONString removes markdown code blocks if present (e.g. ```json ... ```)
func cleanJSONString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```json")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	return strings.TrimSpace(input)
}
