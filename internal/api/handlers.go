package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"courtsim/internal/auth"
	"courtsim/internal/config"
	"courtsim/internal/hearing"
	"courtsim/internal/models"
	"courtsim/internal/scenario"
	"courtsim/internal/service/ai"
	"courtsim/internal/service/docket"
	"courtsim/internal/worker"
)

const defaultRunTimeout = 5 * time.Minute

type WorkerManager interface {
	Run(worker.RunRequest) (hearing.State, error)
	Snapshot(ctx context.Context, hearingID string) (*models.Hearing, []models.Message, error)
	Reset(ctx context.Context, hearingID, scenarioTitle string) (*models.Hearing, []models.Message, error)
	Delete(ctx context.Context, hearingID string) error
}

// Handler wires HTTP routes to the hearing docket and the per-hearing workers.
type Handler struct {
	scenarios  *scenario.Store
	docket     *docket.Service
	auth       *auth.Service
	workers    WorkerManager
	providers  map[string]config.ProviderConfig
	runTimeout time.Duration
}

// NewHandler constructs a Handler instance.
func NewHandler(scenarios *scenario.Store, dk *docket.Service, authService *auth.Service, workers WorkerManager, cfg *config.Config) *Handler {
	runTimeout := time.Duration(cfg.BasicConfig.RunTimeout) * time.Minute
	if runTimeout <= 0 {
		runTimeout = defaultRunTimeout
	}
	return &Handler{
		scenarios:  scenarios,
		docket:     dk,
		auth:       authService,
		workers:    workers,
		providers:  cfg.Providers,
		runTimeout: runTimeout,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/scenarios", h.listScenarios)
	api.GET("/scenarios/:key", h.getScenario)
	api.POST("/hearings", h.createHearing)

	hearingRoutes := api.Group("/hearings/:id")
	hearingRoutes.Use(h.auth.Middleware())
	hearingRoutes.GET("", h.getHearing)
	hearingRoutes.POST("/run", h.runHearing)
	hearingRoutes.POST("/messages", h.captureInput)
	hearingRoutes.POST("/reset", h.resetHearing)
	hearingRoutes.DELETE("", h.deleteHearing)
}

func (h *Handler) listScenarios(c *gin.Context) {
	all := h.scenarios.All()
	list := make([]gin.H, 0, len(all))
	for i, sc := range all {
		list = append(list, gin.H{
			"index":       i,
			"rule_title":  sc.RuleTitle,
			"application": sc.Application,
			"coaching": gin.H{
				"plaintiff": sc.PlaintiffCoach != "",
				"defendant": sc.DefendantCoach != "",
			},
		})
	}
	c.JSON(http.StatusOK, gin.H{"scenarios": list})
}

func (h *Handler) getScenario(c *gin.Context) {
	sc, err := h.scenarios.Resolve(c.Param("key"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scenario": sc})
}

type createHearingRequest struct {
	Scenario         string `json:"scenario"`
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	APIKey           string `json:"api_key"`
	Autopilot        bool   `json:"autopilot"`
	Coaching         bool   `json:"coaching"`
	PlaintiffCoached bool   `json:"plaintiff_coached"`
	DefendantCoached bool   `json:"defendant_coached"`
}

func (h *Handler) createHearing(c *gin.Context) {
	var req createHearingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Scenario) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scenario is required"})
		return
	}
	sc, err := h.scenarios.Resolve(req.Scenario)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	provider := strings.TrimSpace(req.Provider)
	if provider == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider is required"})
		return
	}
	provCfg, ok := h.providers[provider]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("provider %s not configured", provider)})
		return
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = provCfg.Model
	}

	hr, msgs, err := h.docket.CreateHearing(c.Request.Context(), docket.CreateParams{
		ScenarioTitle:    sc.RuleTitle,
		Provider:         provider,
		Model:            model,
		APIKey:           req.APIKey,
		Autopilot:        req.Autopilot,
		Coaching:         req.Coaching,
		PlaintiffCoached: req.PlaintiffCoached,
		DefendantCoached: req.DefendantCoached,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	authToken, err := h.auth.IssueToken(c.Request.Context(), hr.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"hearing":    hr,
		"token":      authToken,
		"expires_in": int64(h.auth.TokenTTL() / time.Second),
		"messages":   msgs,
		"state":      hearing.Decode(msgs).String(),
	})
}

func (h *Handler) getHearing(c *gin.Context) {
	hr, msgs, err := h.workers.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{
		"hearing":  hr,
		"messages": msgs,
		"state":    hearing.Decode(msgs).String(),
	}
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		if left, err := h.auth.TokenExpiresIn(c.Request.Context(), authToken); err == nil {
			resp["token_expires_in"] = int64(left / time.Second)
		}
	}
	c.JSON(http.StatusOK, resp)
}

type resetRequest struct {
	Scenario string `json:"scenario"`
}

func (h *Handler) resetHearing(c *gin.Context) {
	var req resetRequest
	// An empty body keeps the current scenario.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	title := ""
	if key := strings.TrimSpace(req.Scenario); key != "" {
		sc, err := h.scenarios.Resolve(key)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		title = sc.RuleTitle
	}
	hr, msgs, err := h.workers.Reset(c.Request.Context(), c.Param("id"), title)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"hearing":  hr,
		"messages": msgs,
		"state":    hearing.Decode(msgs).String(),
	})
}

func (h *Handler) deleteHearing(c *gin.Context) {
	id := c.Param("id")
	if err := h.workers.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	if err := h.auth.RevokeHearingTokens(c.Request.Context(), id); err != nil {
		logrus.WithError(err).WithField("hearing_id", id).Warn("revoke hearing tokens failed")
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) runHearing(c *gin.Context) {
	id := c.Param("id")
	if _, _, err := h.workers.Snapshot(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	h.stream(c, id, "")
}

// Defendant input interface
type inputRequest struct {
	Content string `json:"content"`
}

func (h *Handler) captureInput(c *gin.Context) {
	id := c.Param("id")
	var req inputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": hearing.ErrEmptyInput.Error()})
		return
	}
	_, msgs, err := h.workers.Snapshot(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	// The worker checks again; this only turns the common case into a
	// plain status code instead of a stream error.
	switch hearing.Decode(msgs) {
	case hearing.AwaitingDefendant, hearing.Idle:
	case hearing.Concluding, hearing.Terminated:
		writeError(c, hearing.ErrHearingClosed)
		return
	default:
		writeError(c, hearing.ErrOutOfTurn)
		return
	}
	h.stream(c, id, req.Content)
}

// stream runs the hearing and relays every turn as server-sent events.
func (h *Handler) stream(c *gin.Context, hearingID, input string) {
	streamCtx, cancel := context.WithTimeout(c.Request.Context(), h.runTimeout)
	defer cancel()
	// SSE Request construction
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(event string, payload interface{}) error {
		var data []byte
		switch v := payload.(type) {
		case string:
			data = []byte(v)
		default:
			var err error
			data, err = json.Marshal(v)
			if err != nil {
				return err
			}
		}
		if event != "" {
			if _, err := fmt.Fprintf(c.Writer, "event: %s\n", event); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	if err := sendEvent("ack", gin.H{"hearing_id": hearingID}); err != nil {
		return
	}
	sink := &sseSink{send: sendEvent}
	state, err := h.workers.Run(worker.RunRequest{
		Context:   streamCtx,
		HearingID: hearingID,
		Input:     input,
		Sink:      sink,
	})
	if err != nil {
		_ = sendEvent("error", gin.H{
			"message": streamErrorMessage(err),
			"state":   state.String(),
		})
		return
	}
	_ = sendEvent("done", gin.H{
		"state":    state.String(),
		"appended": sink.appended,
	})
}

// sseSink relays conductor events to the client.
type sseSink struct {
	send     func(event string, payload interface{}) error
	appended int
}

func (s *sseSink) TurnStarted(turn hearing.Turn) {
	_ = s.send("turn", gin.H{"turn": turn, "role": turn.Role()})
}

func (s *sseSink) Token(turn hearing.Turn, chunk string) error {
	return s.send("stream", gin.H{"turn": turn, "content": chunk})
}

func (s *sseSink) MessageAppended(turn hearing.Turn, msg models.Message) {
	s.appended++
	_ = s.send("message", gin.H{"turn": turn, "message": msg})
}

func streamErrorMessage(err error) string {
	switch {
	case errors.Is(err, hearing.ErrBusy), errors.Is(err, worker.ErrQueueFull):
		return "hearing is busy, please retry"
	case errors.Is(err, context.DeadlineExceeded):
		return "hearing run timed out"
	}
	var svcErr *ai.ServiceError
	if errors.As(err, &svcErr) {
		return fmt.Sprintf("language model unavailable: %v", svcErr.Err)
	}
	return err.Error()
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sql.ErrNoRows):
		c.JSON(http.StatusNotFound, gin.H{"error": "hearing not found"})
		return
	case errors.Is(err, scenario.ErrScenarioNotFound):
		status = http.StatusNotFound
	case errors.Is(err, hearing.ErrEmptyInput):
		status = http.StatusBadRequest
	case errors.Is(err, hearing.ErrOutOfTurn), errors.Is(err, hearing.ErrHearingClosed):
		status = http.StatusConflict
	case errors.Is(err, hearing.ErrBusy), errors.Is(err, worker.ErrQueueFull):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
		return
	case errors.Is(err, worker.ErrStopped):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
