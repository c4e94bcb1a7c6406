package orchestrator

import (
	tiktoken "github.com/pkoukk/tiktoken-go"
)

// tokenGuard estimates the token cost of user input before it is sent.
// When the encoding cannot be loaded the guard degrades to a bytes/4
// heuristic instead of blocking the turn.
type tokenGuard struct {
	enc *tiktoken.Tiktoken
}

func newTokenGuard() *tokenGuard {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &tokenGuard{}
	}
	return &tokenGuard{enc: enc}
}

func (g *tokenGuard) estimate(text string) int {
	if g.enc == nil {
		return len(text) / 4
	}
	return len(g.enc.Encode(text, nil, nil))
}
