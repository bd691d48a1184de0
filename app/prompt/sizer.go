package prompt

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Sizer measures text in budget units. The unit is a deployment choice:
// tiktoken tokens for LLM context windows, runes when no BPE files should be
// fetched.
type Sizer interface {
	Size(text string) int
}

type TokenSizer struct {
	enc *tiktoken.Tiktoken
}

func NewTokenSizer() (*TokenSizer, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &TokenSizer{enc: enc}, nil
}

func (s *TokenSizer) Size(text string) int {
	return len(s.enc.Encode(text, nil, nil))
}

type RuneSizer struct{}

func (RuneSizer) Size(text string) int {
	return len([]rune(text))
}

// NewSizer maps the config unit to a Sizer.
func NewSizer(unit string) (Sizer, error) {
	switch unit {
	case "", "tokens":
		return NewTokenSizer()
	case "runes":
		return RuneSizer{}, nil
	default:
		return nil, fmt.Errorf("unknown context unit %q", unit)
	}
}
