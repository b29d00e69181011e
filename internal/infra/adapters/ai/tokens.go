package ai

import (
	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"

	"document-intelligence/internal/domain/ports/adapter"
)

var _ adapter.TokenCounter = (*TokenCounter)(nil)

// runesPerToken approximates tokens when no encoder is loaded.
const runesPerToken = 4

// TokenCounter measures text in model tokens. Without an encoder it falls
// back to a rune estimate.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter loads the named BPE encoding (default cl100k_base). A load
// failure is logged and yields the rune-based fallback.
func NewTokenCounter(encoding string, logger *zerolog.Logger) *TokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		logger.Warn().Err(err).Str("encoding", encoding).Msg("tokenizer unavailable, estimating tokens from runes")
		return &TokenCounter{}
	}
	return &TokenCounter{enc: enc}
}

func (t *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if t.enc != nil {
		return len(t.enc.Encode(text, nil, nil))
	}
	n := len([]rune(text))
	return (n + runesPerToken - 1) / runesPerToken
}

// Truncate cuts text to at most maxTokens tokens.
func (t *TokenCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if t.enc != nil {
		toks := t.enc.Encode(text, nil, nil)
		if len(toks) <= maxTokens {
			return text
		}
		return t.enc.Decode(toks[:maxTokens])
	}
	r := []rune(text)
	limit := maxTokens * runesPerToken
	if len(r) <= limit {
		return text
	}
	return string(r[:limit])
}
