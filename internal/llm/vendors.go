package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/answerhub/answerhub/config"
)

const (
	groqBaseURL        = "https://api.groq.com/openai/v1"
	mistralBaseURL     = "https://api.mistral.ai/v1"
	perplexityBaseURL  = "https://api.perplexity.ai"
	openRouterBaseURL  = "https://openrouter.ai/api/v1"
	anthropicURL       = "https://api.anthropic.com/v1/messages"
	cohereChatURL      = "https://api.cohere.ai/v1/chat"
	ai21BaseURL        = "https://api.ai21.com/studio/v1"
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	huggingFaceBaseURL = "https://api-inference.huggingface.co/models"

	anthropicVersion = "2023-06-01"
)

// NewProviders builds the full provider chain in priority order. Providers
// without usable credentials are still returned, marked unavailable, so they
// show up in status reports.
func NewProviders(cfg config.ProvidersConfig) []*Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	hc := NewHTTPClient(timeout, 0, time.Second)

	return []*Provider{
		newOpenAICompat("groq", 1, 14000, cfg.Groq, groqBaseURL, "llama-3.3-70b-versatile", timeout, nil),
		newOpenAICompat("mistral", 2, 100000, cfg.Mistral, mistralBaseURL, "mistral-small-latest", timeout, nil),
		newAnthropic(cfg.Anthropic, hc),
		newCohere(cfg.Cohere, hc),
		newAI21(cfg.AI21, hc),
		newGemini(cfg.Gemini, hc),
		newOpenAICompat("perplexity", 7, 5, cfg.Perplexity, perplexityBaseURL, "sonar", timeout, nil),
		newHuggingFace(cfg.HuggingFace, hc),
		newOpenRouter(cfg.OpenRouter, timeout),
		newOllama(cfg.Ollama, hc),
	}
}

// usableKey rejects empty keys and the placeholder values that ship in
// example config files.
func usableKey(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" || key == "changeme" {
		return false
	}
	return !strings.HasPrefix(key, "your_")
}

func pick(v, def string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

// wrapVendorErr maps upstream rate rejections onto ErrQuotaExceeded so the
// router can deselect the provider for the day.
func wrapVendorErr(op string, err error) error {
	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w", op, ErrQuotaExceeded)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// headerTransport injects fixed headers into every request. Used for vendors
// that require attribution headers on top of the bearer token.
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

func newOpenAICompat(name string, priority, quota int, pc config.ProviderConfig, baseURL, model string, timeout time.Duration, extraHeaders map[string]string) *Provider {
	p := &Provider{
		Name:       name,
		Priority:   priority,
		DailyQuota: quota,
		Model:      pick(pc.Model, model),
	}
	if !usableKey(pc.APIKey) {
		return p
	}
	cc := openai.DefaultConfig(pc.APIKey)
	cc.BaseURL = pick(pc.BaseURL, baseURL)
	httpClient := &http.Client{Timeout: timeout}
	if extraHeaders != nil {
		httpClient.Transport = &headerTransport{headers: extraHeaders}
	}
	cc.HTTPClient = httpClient
	client := openai.NewClientWithConfig(cc)

	p.available = true
	p.call = func(ctx context.Context, prompt, system string) (string, error) {
		resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       p.Model,
			Messages:    chatMessages(prompt, system),
			Temperature: defaultTemperature,
			MaxTokens:   defaultMaxTokens,
		})
		if err != nil {
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
				return "", fmt.Errorf("%s chat completion: %w", name, ErrQuotaExceeded)
			}
			return "", fmt.Errorf("%s chat completion: %w", name, err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("%s chat completion: no choices", name)
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}
	p.stream = func(ctx context.Context, prompt, system string) (<-chan Chunk, error) {
		stream, err := client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:       p.Model,
			Messages:    chatMessages(prompt, system),
			Temperature: defaultTemperature,
			MaxTokens:   defaultMaxTokens,
			Stream:      true,
		})
		if err != nil {
			return nil, fmt.Errorf("%s chat stream: %w", name, err)
		}
		ch := make(chan Chunk)
		go func() {
			defer close(ch)
			defer stream.Close()
			for {
				resp, err := stream.Recv()
				if errors.Is(err, io.EOF) {
					return
				}
				if err != nil {
					ch <- Chunk{Err: fmt.Errorf("%s chat stream: %w", name, err)}
					return
				}
				if len(resp.Choices) > 0 && resp.Choices[0].Delta.Content != "" {
					ch <- Chunk{Text: resp.Choices[0].Delta.Content}
				}
			}
		}()
		return ch, nil
	}
	return p
}

func chatMessages(prompt, system string) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
	return messages
}

func newOpenRouter(pc config.ProviderConfig, timeout time.Duration) *Provider {
	// OpenRouter keys are always prefixed; anything else is a misconfig.
	if usableKey(pc.APIKey) && !strings.HasPrefix(pc.APIKey, "sk-or-") {
		pc.APIKey = ""
	}
	return newOpenAICompat("openrouter", 9, 50, pc, openRouterBaseURL, "deepseek/deepseek-chat", timeout, map[string]string{
		"HTTP-Referer": "https://answerhub.dev",
		"X-Title":      "AnswerHub",
	})
}

func newAnthropic(pc config.ProviderConfig, hc *HTTPClient) *Provider {
	p := &Provider{
		Name:       "anthropic",
		Priority:   3,
		DailyQuota: 1000,
		Model:      pick(pc.Model, "claude-3-haiku-20240307"),
	}
	if !usableKey(pc.APIKey) {
		return p
	}
	headers := map[string]string{
		"x-api-key":         pc.APIKey,
		"anthropic-version": anthropicVersion,
	}
	p.available = true
	p.call = func(ctx context.Context, prompt, system string) (string, error) {
		req := struct {
			Model       string        `json:"model"`
			MaxTokens   int           `json:"max_tokens"`
			Temperature float64       `json:"temperature"`
			System      string        `json:"system,omitempty"`
			Messages    []chatMessage `json:"messages"`
		}{
			Model:       p.Model,
			MaxTokens:   defaultMaxTokens,
			Temperature: defaultTemperature,
			System:      system,
			Messages:    []chatMessage{{Role: "user", Content: prompt}},
		}
		var out struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := hc.DoJSON(ctx, http.MethodPost, pick(pc.BaseURL, anthropicURL), headers, req, &out); err != nil {
			return "", wrapVendorErr("anthropic messages", err)
		}
		if len(out.Content) == 0 {
			return "", fmt.Errorf("anthropic messages: empty content")
		}
		return strings.TrimSpace(out.Content[0].Text), nil
	}
	return p
}

func newCohere(pc config.ProviderConfig, hc *HTTPClient) *Provider {
	p := &Provider{
		Name:       "cohere_chat",
		Priority:   4,
		DailyQuota: 100,
		Model:      pick(pc.Model, "command-r-plus"),
	}
	if !usableKey(pc.APIKey) {
		return p
	}
	headers := map[string]string{"Authorization": "Bearer " + pc.APIKey}
	p.available = true
	p.call = func(ctx context.Context, prompt, system string) (string, error) {
		message := prompt
		if system != "" {
			message = system + "\n\n" + prompt
		}
		req := struct {
			Message     string  `json:"message"`
			Model       string  `json:"model"`
			Temperature float64 `json:"temperature"`
			MaxTokens   int     `json:"max_tokens"`
		}{Message: message, Model: p.Model, Temperature: defaultTemperature, MaxTokens: defaultMaxTokens}
		var out struct {
			Text string `json:"text"`
		}
		if err := hc.DoJSON(ctx, http.MethodPost, pick(pc.BaseURL, cohereChatURL), headers, req, &out); err != nil {
			return "", wrapVendorErr("cohere chat", err)
		}
		if strings.TrimSpace(out.Text) == "" {
			return "", fmt.Errorf("cohere chat: empty text")
		}
		return strings.TrimSpace(out.Text), nil
	}
	return p
}

func newAI21(pc config.ProviderConfig, hc *HTTPClient) *Provider {
	p := &Provider{
		Name:       "ai21",
		Priority:   5,
		DailyQuota: 1000,
		Model:      pick(pc.Model, "j2-ultra"),
	}
	if !usableKey(pc.APIKey) {
		return p
	}
	headers := map[string]string{"Authorization": "Bearer " + pc.APIKey}
	endpoint := fmt.Sprintf("%s/%s/complete", pick(pc.BaseURL, ai21BaseURL), p.Model)
	p.available = true
	p.call = func(ctx context.Context, prompt, system string) (string, error) {
		full := prompt
		if system != "" {
			full = system + "\n\n" + prompt
		}
		req := struct {
			Prompt      string  `json:"prompt"`
			Temperature float64 `json:"temperature"`
			MaxTokens   int     `json:"maxTokens"`
			TopP        float64 `json:"topP"`
		}{Prompt: full, Temperature: defaultTemperature, MaxTokens: defaultMaxTokens, TopP: 0.9}
		var out struct {
			Completions []struct {
				Data struct {
					Text string `json:"text"`
				} `json:"data"`
			} `json:"completions"`
		}
		if err := hc.DoJSON(ctx, http.MethodPost, endpoint, headers, req, &out); err != nil {
			return "", wrapVendorErr("ai21 complete", err)
		}
		if len(out.Completions) == 0 {
			return "", fmt.Errorf("ai21 complete: no completions")
		}
		return strings.TrimSpace(out.Completions[0].Data.Text), nil
	}
	return p
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

func newGemini(pc config.ProviderConfig, hc *HTTPClient) *Provider {
	p := &Provider{
		Name:       "gemini",
		Priority:   6,
		DailyQuota: 1500,
		Model:      pick(pc.Model, "gemini-1.5-flash"),
	}
	if !usableKey(pc.APIKey) {
		return p
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", pick(pc.BaseURL, geminiBaseURL), p.Model, url.QueryEscape(pc.APIKey))
	p.available = true
	p.call = func(ctx context.Context, prompt, system string) (string, error) {
		text := prompt
		if system != "" {
			text = system + "\n\n" + prompt
		}
		req := struct {
			Contents         []geminiContent `json:"contents"`
			GenerationConfig struct {
				Temperature     float64 `json:"temperature"`
				MaxOutputTokens int     `json:"maxOutputTokens"`
			} `json:"generationConfig"`
		}{Contents: []geminiContent{{Parts: []geminiPart{{Text: text}}}}}
		req.GenerationConfig.Temperature = defaultTemperature
		req.GenerationConfig.MaxOutputTokens = defaultMaxTokens

		var out struct {
			Candidates []struct {
				Content geminiContent `json:"content"`
			} `json:"candidates"`
		}
		if err := hc.DoJSON(ctx, http.MethodPost, endpoint, nil, req, &out); err != nil {
			return "", wrapVendorErr("gemini generate", err)
		}
		if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
			return "", fmt.Errorf("gemini generate: no candidates")
		}
		return strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text), nil
	}
	return p
}

func newHuggingFace(pc config.ProviderConfig, hc *HTTPClient) *Provider {
	p := &Provider{
		Name:       "huggingface",
		Priority:   8,
		DailyQuota: 0,
		Model:      pick(pc.Model, "meta-llama/Llama-3-8B-Instruct"),
	}
	if !usableKey(pc.APIKey) {
		return p
	}
	headers := map[string]string{"Authorization": "Bearer " + pc.APIKey}
	endpoint := fmt.Sprintf("%s/%s", pick(pc.BaseURL, huggingFaceBaseURL), p.Model)
	p.available = true
	p.call = func(ctx context.Context, prompt, system string) (string, error) {
		full := prompt
		if system != "" {
			full = system + "\n\n" + prompt
		}
		req := struct {
			Inputs     string `json:"inputs"`
			Parameters struct {
				Temperature    float64 `json:"temperature"`
				MaxNewTokens   int     `json:"max_new_tokens"`
				ReturnFullText bool    `json:"return_full_text"`
			} `json:"parameters"`
		}{Inputs: full}
		req.Parameters.Temperature = defaultTemperature
		req.Parameters.MaxNewTokens = defaultMaxTokens
		req.Parameters.ReturnFullText = false

		var out []struct {
			GeneratedText string `json:"generated_text"`
		}
		if err := hc.DoJSON(ctx, http.MethodPost, endpoint, headers, req, &out); err != nil {
			var se *StatusError
			if errors.As(err, &se) && se.Status == http.StatusServiceUnavailable {
				return "", fmt.Errorf("huggingface inference: model %s is loading", p.Model)
			}
			return "", wrapVendorErr("huggingface inference", err)
		}
		if len(out) == 0 {
			return "", fmt.Errorf("huggingface inference: empty response")
		}
		return strings.TrimSpace(out[0].GeneratedText), nil
	}
	return p
}

func newOllama(pc config.ProviderConfig, hc *HTTPClient) *Provider {
	p := &Provider{
		Name:       "ollama",
		Priority:   10,
		DailyQuota: 0,
		Model:      pick(pc.Model, "llama3.1"),
	}
	base := pick(pc.BaseURL, "http://localhost:11434")
	if !probeOllama(base) {
		return p
	}
	endpoint := base + "/api/generate"
	p.available = true
	p.call = func(ctx context.Context, prompt, system string) (string, error) {
		req := struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
			System string `json:"system,omitempty"`
			Stream bool   `json:"stream"`
		}{Model: p.Model, Prompt: prompt, System: system}
		var out struct {
			Response string `json:"response"`
		}
		if err := hc.DoJSON(ctx, http.MethodPost, endpoint, nil, req, &out); err != nil {
			return "", fmt.Errorf("ollama generate: %w", err)
		}
		return strings.TrimSpace(out.Response), nil
	}
	return p
}

// probeOllama checks whether a local Ollama daemon answers on base. Short
// timeout so startup is not held hostage by a missing daemon.
func probeOllama(base string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(base + "/api/tags")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
