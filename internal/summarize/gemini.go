package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

const systemInstruction = `You summarize personal chat conversations.
Given a transcript, produce a short neutral summary (3-5 sentences) of the
topics discussed. Do not quote messages verbatim and do not include names of
third parties that only appear in passing.`

// GeminiConfig configures the Gemini-backed summarizer.
type GeminiConfig struct {
	APIKey     string
	ModelName  string // Default: "gemini-2.0-flash-exp"
	MaxRetries int
	RetryDelay time.Duration
}

// Gemini summarizes transcripts through the Gemini API.
type Gemini struct {
	client     *genai.Client
	model      *genai.GenerativeModel
	logger     *logrus.Logger
	maxRetries int
	retryDelay time.Duration
}

// NewGemini creates the Gemini summarizer.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *logrus.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.ModelName == "" {
		cfg.ModelName = "gemini-2.0-flash-exp"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.ModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr[float32](0.3),
		TopP:            genai.Ptr[float32](0.9),
		MaxOutputTokens: genai.Ptr[int32](400),
	}

	logger.WithField("model", cfg.ModelName).Info("Gemini summarizer initialized")

	return &Gemini{
		client:     client,
		model:      model,
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}, nil
}

// Summarize renders the transcript and asks the model for a summary,
// retrying transient failures.
func (g *Gemini) Summarize(ctx context.Context, transcript []TranscriptLine) (string, error) {
	prompt := renderTranscript(transcript)

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(g.retryDelay):
			}
		}

		resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			lastErr = err
			g.logger.WithError(err).WithField("attempt", attempt+1).
				Warn("Summary generation failed")
			continue
		}
		if summary := extractText(resp); summary != "" {
			return summary, nil
		}
		lastErr = fmt.Errorf("model returned no text")
	}
	return "", fmt.Errorf("failed to summarize after %d attempts: %w", g.maxRetries+1, lastErr)
}

// Close releases the underlying API client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

func renderTranscript(transcript []TranscriptLine) string {
	var b strings.Builder
	b.WriteString("Transcript:\n")
	for _, line := range transcript {
		b.WriteString(line.Author)
		b.WriteString(": ")
		b.WriteString(line.Body)
		b.WriteByte('\n')
	}
	return b.String()
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return strings.TrimSpace(b.String())
}
