// Package summarize provides the optional conversation summarization
// collaborator. Summaries are best effort: any failure surfaces as an absent
// summary, never as a pipeline error.
package summarize

import (
	"context"
	"errors"
)

// TranscriptLine is one message of a conversation transcript.
type TranscriptLine struct {
	Author string
	Body   string
}

// Summarizer produces a short natural-language summary of a transcript.
type Summarizer interface {
	Summarize(ctx context.Context, transcript []TranscriptLine) (string, error)
}

// ErrUnavailable indicates no summarizer is configured.
var ErrUnavailable = errors.New("summarizer is not available")

// Noop is the disabled summarizer.
type Noop struct{}

// Summarize always reports the summarizer as unavailable.
func (Noop) Summarize(context.Context, []TranscriptLine) (string, error) {
	return "", ErrUnavailable
}

// BestEffort runs s and swallows every failure, returning the empty string
// when no summary could be produced.
func BestEffort(ctx context.Context, s Summarizer, transcript []TranscriptLine) string {
	if s == nil || len(transcript) == 0 {
		return ""
	}
	summary, err := s.Summarize(ctx, transcript)
	if err != nil {
		return ""
	}
	return summary
}
