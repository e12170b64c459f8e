package types

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one entry in a session's conversation history.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// UserTurn builds a candidate turn.
func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

// ModelTurn builds an examiner turn.
func ModelTurn(text string) Turn {
	return Turn{Role: RoleModel, Text: text}
}

// CloneTurns returns a copy of turns that the caller may append to freely.
func CloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns), len(turns)+2)
	copy(out, turns)
	return out
}
