package main

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	codec     tokenizer.Codec
	codecOnce sync.Once
	codecErr  error
)

// getCodec returns the shared cl100k_base codec
func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// EstimateTokens approximates how many tokens the model will see for text.
// Local models use their own vocabularies; cl100k_base is close enough for a budget display.
func EstimateTokens(text string) (int, error) {
	c, err := getCodec()
	if err != nil {
		return 0, err
	}

	ids, _, err := c.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// EstimateTokensOrZero returns the estimate, or 0 when the codec is unavailable
func EstimateTokensOrZero(text string) int {
	n, err := EstimateTokens(text)
	if err != nil {
		return 0
	}
	return n
}
