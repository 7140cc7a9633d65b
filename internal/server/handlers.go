package server

import (
	"database/sql"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/answerhub/answerhub/internal/i18n"
	"github.com/answerhub/answerhub/internal/llm"
	"github.com/answerhub/answerhub/internal/query"
	"github.com/answerhub/answerhub/internal/synth"
)

// expertSystemKeys maps an expert id to its system prompt. The medical
// expert is absent on purpose: it goes through the source fan-out instead
// of a plain chat turn.
var expertSystemKeys = map[string]string{
	"general": "system_chat",
	"finance": "system_expert_finance",
}

func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return s.chatTurn(c, "general", "system_chat", req)
}

func (s *Server) handleExpertChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	expertID := c.Param("id")
	if expertID == "medical" {
		return s.medicalTurn(c, req)
	}
	key, ok := expertSystemKeys[expertID]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown expert: "+expertID)
	}
	return s.chatTurn(c, expertID, key, req)
}

// chatTurn runs one plain conversation turn: memory context in, LLM chain,
// validation, memory persisted out.
func (s *Server) chatTurn(c echo.Context, expertID, systemKey string, req ChatRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	ctx := c.Request().Context()
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	lang := i18n.Normalize(req.Language)

	// the user turn is stored first so it survives routing failures and
	// feeds profile and topic detection before the context build
	s.remember(c, sessionID, expertID, "user", req.Message)
	memoryContext := s.memoryContext(c, sessionID, expertID)

	expertType := ""
	if expertID == "finance" {
		expertType = "financial"
	}
	system := s.validator.EnhanceSystemPrompt(i18n.T(lang, systemKey), req.Message, expertType)
	prompt := req.Message
	if memoryContext != "" {
		prompt = memoryContext + "\n\n" + req.Message
	}

	res, err := s.router.RouteWith(ctx, prompt, system, llm.Options{Preferred: req.Provider})
	if err != nil {
		var npe *llm.NoProviderError
		if errors.As(err, &npe) {
			return c.JSON(http.StatusOK, providerFailureResponse(sessionID, npe))
		}
		return err
	}
	report := s.validator.Validate(res.Text, memoryContext+" "+req.Message, expertType)

	s.remember(c, sessionID, expertID, "assistant", res.Text)

	return c.JSON(http.StatusOK, ChatResponse{
		Response:       res.Text,
		Source:         res.Source,
		SessionID:      sessionID,
		ElapsedMS:      res.ElapsedMS,
		QuotaRemaining: res.QuotaRemaining,
		Validation:     report,
	})
}

// medicalTurn runs the medical source fan-out: mode pick, plan with the
// mandatory sources, phased fetch, synthesis.
func (s *Server) medicalTurn(c echo.Context, req ChatRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	ctx := c.Request().Context()
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	lang := i18n.Normalize(req.Language)

	mode := query.Mode(req.Mode)
	switch mode {
	case query.ModeFast, query.ModeStandard, query.ModeDeep:
	case "":
		mode = query.AnalyzeMode(req.Message).Mode
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown mode: "+req.Mode)
	}

	s.remember(c, sessionID, "medical", "user", req.Message)

	plan := s.planner.BuildMedicalPlan(req.Message, mode, req.ForceAll, lang)
	outcome := s.engine.FetchMedical(ctx, plan)
	result, err := s.synth.SynthesizeMedical(ctx, plan, outcome)
	if err != nil {
		return err
	}

	s.remember(c, sessionID, "medical", "assistant", result.Synthesis)

	return c.JSON(http.StatusOK, struct {
		synth.Result
		SessionID string           `json:"session_id"`
		Search    ExpertSearchMeta `json:"search"`
	}{
		Result:    result,
		SessionID: sessionID,
		Search: ExpertSearchMeta{
			Mode:     plan.Mode,
			Topics:   plan.Topics,
			APIs:     plan.APIs,
			Expanded: plan.ExpandedQuery,
		},
	})
}

func (s *Server) handleUniversalSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	ctx := c.Request().Context()
	lang := i18n.Normalize(req.Language)

	memoryContext := ""
	if req.SessionID != "" {
		s.remember(c, req.SessionID, "search", "user", req.Query)
		memoryContext = s.memoryContext(c, req.SessionID, "search")
	}

	analysis := s.analyzer.Analyze(ctx, req.Query)
	plan := s.planner.BuildPlan(req.Query, analysis, lang)
	outcome := s.engine.Fetch(ctx, plan)
	result, err := s.synth.Synthesize(ctx, plan, outcome, memoryContext)
	if err != nil {
		return err
	}
	if req.SessionID != "" {
		s.remember(c, req.SessionID, "search", "assistant", result.Synthesis)
	}

	return c.JSON(http.StatusOK, struct {
		synth.Result
		Analysis query.Analysis `json:"analysis"`
	}{Result: result, Analysis: analysis})
}

func (s *Server) handleProvidersStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, ProvidersStatusResponse{
		Providers: s.router.Status(c.Request().Context()),
	})
}

func (s *Server) handleSessionStats(c echo.Context) error {
	if s.memory == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "conversation memory is disabled")
	}
	stats, err := s.memory.SessionStats(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return echo.NewHTTPError(http.StatusNotFound, "unknown session")
		}
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// providerFailureResponse labels every attempted provider with its failure
// category for the business-level error answer.
func providerFailureResponse(sessionID string, npe *llm.NoProviderError) ChatErrorResponse {
	attempts := make([]ProviderAttempt, 0, len(npe.Attempts))
	for name, detail := range npe.Attempts {
		attempts = append(attempts, ProviderAttempt{
			Provider: name,
			Category: attemptCategory(detail),
			Detail:   detail,
		})
	}
	sort.Slice(attempts, func(i, j int) bool { return attempts[i].Provider < attempts[j].Provider })
	return ChatErrorResponse{
		Error:     "all providers failed or quota exhausted",
		SessionID: sessionID,
		Providers: attempts,
	}
}

func attemptCategory(detail string) string {
	switch {
	case detail == "not configured":
		return "not_configured"
	case detail == "circuit open":
		return "circuit_open"
	case strings.Contains(detail, "quota ex"):
		return "quota"
	default:
		return "error"
	}
}

// memoryContext fetches the conversation context; memory failures never
// fail the request.
func (s *Server) memoryContext(c echo.Context, sessionID, expertID string) string {
	if s.memory == nil {
		return ""
	}
	built, err := s.memory.BuildContext(c.Request().Context(), sessionID, expertID)
	if err != nil {
		s.logger.Printf("build context for %s/%s: %v", sessionID, expertID, err)
		return ""
	}
	return built
}

func (s *Server) remember(c echo.Context, sessionID, expertID, role, message string) {
	if s.memory == nil {
		return
	}
	if err := s.memory.AddMessage(c.Request().Context(), sessionID, expertID, role, message, nil); err != nil {
		s.logger.Printf("persist %s turn for %s/%s: %v", role, sessionID, expertID, err)
	}
}
