package domain

// Turn is a single role/content entry in a conversation. The manual chat
// surface round-trips these; the email pipeline builds them per run and
// discards them afterwards.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
