package llm

import (
	"context"
	"errors"
	"fmt"
)

// Generation defaults shared by every vendor adapter.
const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1024
)

var (
	// ErrUnavailable marks a provider that is not configured or whose
	// backend could not be reached at construction time.
	ErrUnavailable = errors.New("provider unavailable")
	// ErrQuotaExceeded marks an upstream rate or quota rejection. The
	// router deselects the provider for the rest of the day on this error.
	ErrQuotaExceeded = errors.New("provider quota exceeded")
)

type callFunc func(ctx context.Context, prompt, system string) (string, error)

type streamFunc func(ctx context.Context, prompt, system string) (<-chan Chunk, error)

// Chunk is one streamed fragment of a completion. Err is set on the final
// chunk when generation failed midway.
type Chunk struct {
	Text string
	Err  error
}

// Provider is a single LLM backend with its routing metadata. A provider is
// constructed once at startup; availability reflects whether it had usable
// credentials at that point.
type Provider struct {
	Name       string
	Priority   int
	DailyQuota int
	Model      string

	available bool
	call      callFunc
	stream    streamFunc
}

// Available reports whether the provider was configured with usable
// credentials.
func (p *Provider) Available() bool { return p.available }

// Call sends a prompt to the provider and returns the generated text.
func (p *Provider) Call(ctx context.Context, prompt, system string) (string, error) {
	if !p.available {
		return "", fmt.Errorf("%s: %w", p.Name, ErrUnavailable)
	}
	return p.call(ctx, prompt, system)
}

// Stream sends a prompt and delivers the completion as chunks on the
// returned channel, closed when generation ends. Vendors without a
// streaming wire deliver the full answer as a single chunk.
func (p *Provider) Stream(ctx context.Context, prompt, system string) (<-chan Chunk, error) {
	if !p.available {
		return nil, fmt.Errorf("%s: %w", p.Name, ErrUnavailable)
	}
	if p.stream != nil {
		return p.stream(ctx, prompt, system)
	}
	ch := make(chan Chunk, 1)
	go func() {
		defer close(ch)
		text, err := p.call(ctx, prompt, system)
		if err != nil {
			ch <- Chunk{Err: err}
			return
		}
		ch <- Chunk{Text: text}
	}()
	return ch, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
