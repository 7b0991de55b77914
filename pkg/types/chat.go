package types

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one user message paired with its reply. Assistant stays empty
// until the inference call for this turn returns.
type Turn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Pending reports whether the turn is still waiting for a reply.
func (t Turn) Pending() bool { return t.Assistant == "" }

// History is the ordered list of turns of one conversation.
type History []Turn

// Clone returns an independent copy of h.
func (h History) Clone() History {
	if h == nil {
		return nil
	}
	out := make(History, len(h))
	copy(out, h)
	return out
}

// Last returns the final turn, if any.
func (h History) Last() (Turn, bool) {
	if len(h) == 0 {
		return Turn{}, false
	}
	return h[len(h)-1], true
}
