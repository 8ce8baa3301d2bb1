// Package tiktoken counts tokens with OpenAI's BPE encodings. The gateway uses
// it to estimate usage for backends that do not report token counts.
package tiktoken

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used when the model name is not known to tiktoken.
const DefaultEncoding = "cl100k_base"

type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New resolves an encoder for a model name, falling back to an encoding name.
func New(name string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		// try by name
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, err
		}
	}
	return &Tokenizer{enc: enc}, nil
}

func (t *Tokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// Count returns the number of tokens in text.
func (t *Tokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.Encode(text))
}

func (t *Tokenizer) Decode(ids []int) string {
	return t.enc.Decode(ids)
}

// WordCounter approximates tokens by whitespace-separated words. It is the
// fallback when no BPE encoding can be loaded.
type WordCounter struct{}

func (WordCounter) Count(text string) int {
	return len(strings.Fields(text))
}
