package agent

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter measures text in model tokens.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts tokens with a BPE encoding. Qwen models use their own
// vocabulary, so counts are an approximation good enough for budgeting.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter picks the encoding registered for model, falling back to
// cl100k_base for models tiktoken does not know. Loading an encoding may
// download its ranks file on first use.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}
