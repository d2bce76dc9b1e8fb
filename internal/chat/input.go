package chat

import (
	apperrors "github.com/gmsas95/carecache/internal/errors"
)

var (
	ErrMessageTooLarge = apperrors.New("CHAT_005", "message exceeds maximum size")
	ErrNullByte        = apperrors.New("CHAT_006", "null byte detected in message")
	ErrRepetitive      = apperrors.New("CHAT_007", "excessive repetition detected")
)

// InputValidator rejects outgoing messages the backend would refuse anyway
type InputValidator struct {
	MaxSize       int
	MaxRepetition int
}

func NewInputValidator() *InputValidator {
	return &InputValidator{
		MaxSize:       8 * 1024,
		MaxRepetition: 200,
	}
}

// Validate checks already-trimmed text
func (v *InputValidator) Validate(text string) error {
	if text == "" {
		return ErrEmptyMessage
	}
	if v.MaxSize > 0 && len(text) > v.MaxSize {
		return ErrMessageTooLarge
	}
	for i := 0; i < len(text); i++ {
		if text[i] == 0 {
			return ErrNullByte
		}
	}
	if v.MaxRepetition > 0 && longestRun(text) > v.MaxRepetition {
		return ErrRepetitive
	}
	return nil
}

func longestRun(text string) int {
	longest, run := 0, 0
	var prev rune
	for i, r := range text {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
		prev = r
	}
	return longest
}
