package types

// Event is the wire-friendly representation of a state change. Attributes are
// flat string pairs so RPC subscribers and log pipelines can consume them
// without schema knowledge.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
