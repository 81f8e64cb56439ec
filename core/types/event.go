package types

// Event is the canonical, transport-friendly form of a state change.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
