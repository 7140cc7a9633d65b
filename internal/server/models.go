package server

import (
	"github.com/answerhub/answerhub/internal/llm"
	"github.com/answerhub/answerhub/internal/query"
	"github.com/answerhub/answerhub/internal/validate"
)

// ChatRequest is the body of /chat and /expert/:id/chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Language  string `json:"language"`
	// Provider forces a specific provider to the front of the chain.
	Provider string `json:"provider"`
	// Mode and ForceAll only apply to the medical expert.
	Mode     string `json:"mode"`
	ForceAll bool   `json:"force_all_apis"`
}

// ChatResponse is the answer to a plain chat turn.
type ChatResponse struct {
	Response       string          `json:"response"`
	Source         string          `json:"ai_source"`
	SessionID      string          `json:"session_id"`
	ElapsedMS      int64           `json:"processing_time_ms"`
	QuotaRemaining int             `json:"quota_remaining"`
	Validation     validate.Report `json:"validation"`
}

// SearchRequest is the body of /search/universal.
type SearchRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
	Language  string `json:"language"`
}

// ProviderAttempt labels one failed provider attempt in a chat error answer.
type ProviderAttempt struct {
	Provider string `json:"provider"`
	Category string `json:"category"`
	Detail   string `json:"detail"`
}

// ChatErrorResponse is the answer when no provider could serve a turn.
// Provider exhaustion is a business condition, so it travels with a 200.
type ChatErrorResponse struct {
	Error     string            `json:"error"`
	SessionID string            `json:"session_id"`
	Providers []ProviderAttempt `json:"providers_tried"`
}

// ProvidersStatusResponse reports the state of the provider chain.
type ProvidersStatusResponse struct {
	Providers []llm.ProviderStatus `json:"providers"`
}

// ExpertSearchMeta describes the fan-out behind a medical expert answer.
type ExpertSearchMeta struct {
	Mode     query.Mode          `json:"mode"`
	Topics   []string            `json:"topics"`
	APIs     []query.SelectedAPI `json:"apis"`
	Expanded string              `json:"expanded_query"`
}
