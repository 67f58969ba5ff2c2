package ai

// BriefingInput is the delivery context handed to the model. All fields are
// plain strings so the prompt never depends on other modules' types.
type BriefingInput struct {
	BloodGroup string
	Component  string
	Quantity   int
	Priority   string

	// Destination is the receiving hospital's name and address.
	Destination string

	// EstimatedArrival is the RFC3339 arrival commitment made at approval.
	EstimatedArrival string
}

// Briefing captures the structured output from the model.
type Briefing struct {
	// Summary is a one-paragraph overview the courier reads before departure.
	Summary string `json:"summary"`

	// HandlingNotes lists cold-chain and handling rules for the component
	// being carried (e.g. platelets must not be refrigerated).
	HandlingNotes []string `json:"handling_notes"`

	// RouteAdvice suggests how to drive the leg given the arrival commitment.
	RouteAdvice string `json:"route_advice"`

	// HandoffReminder restates the OTP confirmation step at the destination.
	HandoffReminder string `json:"handoff_reminder"`
}
