package session

import "github.com/vango-go/vai-examiner/pkg/core/types"

// historyManager keeps the conversation sent to the generation backend.
// Turns only ever enter as a user/model pair, after the reply is known,
// so a failed generation never leaves a dangling user turn behind.
type historyManager struct {
	turns []types.Turn
}

func newHistoryManager() *historyManager {
	return &historyManager{turns: make([]types.Turn, 0, 16)}
}

func (h *historyManager) appendPair(userContent, reply string) {
	h.turns = append(h.turns, types.UserTurn(userContent), types.ModelTurn(reply))
}

// withPending returns a copy of the history followed by the pending user turn.
func (h *historyManager) withPending(userContent string) []types.Turn {
	out := types.CloneTurns(h.turns)
	return append(out, types.UserTurn(userContent))
}

func (h *historyManager) snapshot() []types.Turn {
	out := make([]types.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *historyManager) reset() {
	h.turns = h.turns[:0]
}

func (h *historyManager) len() int {
	return len(h.turns)
}
