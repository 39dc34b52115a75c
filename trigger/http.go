package trigger

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/flowgate/auth"
	apperrors "github.com/kbukum/flowgate/errors"
	"github.com/kbukum/flowgate/logger"
	"github.com/kbukum/flowgate/ratelimit"
	"github.com/kbukum/flowgate/server"
	"github.com/kbukum/flowgate/server/middleware"
	"github.com/kbukum/flowgate/workflow"
)

// HeaderIdempotencyKey carries the caller's idempotency token.
const HeaderIdempotencyKey = "Idempotency-Key"

// HandlerConfig wires the HTTP boundary.
type HandlerConfig struct {
	// Tokens verifies user JWTs. When disabled, user routes fall back to
	// the trigger secret and run without an owner check.
	Tokens *auth.Tokens
	// TriggerSecret guards the execute and sweep endpoints.
	TriggerSecret string
	// Limiter may be nil to disable rate limiting.
	Limiter *ratelimit.Limiter
}

// Handler exposes the Service over HTTP.
type Handler struct {
	svc *Service
	cfg HandlerConfig
	log *logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc *Service, cfg HandlerConfig, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{svc: svc, cfg: cfg, log: log.WithComponent("trigger-http")}
}

// Register mounts the API routes on r.
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")

	api.POST("/workflows/execute",
		middleware.RequireTriggerSecret(h.cfg.TriggerSecret),
		h.optionalUser(),
		h.limit(ratelimit.ScopeExecute),
		h.execute)
	api.POST("/workflows/sweep",
		middleware.RequireTriggerSecret(h.cfg.TriggerSecret),
		h.limit(ratelimit.ScopeSweep),
		h.sweep)

	user := api.Group("", h.requireUser())
	user.POST("/workflows/:id/run", h.limit(ratelimit.ScopeExecute), h.run)
	user.POST("/workflows/:id/publish", h.publish)
	user.POST("/workflows/:id/unpublish", h.unpublish)
	user.GET("/executions/:id", h.execution)
}

func (h *Handler) optionalUser() gin.HandlerFunc {
	if h.cfg.Tokens == nil || !h.cfg.Tokens.Enabled() {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.Authenticate(h.cfg.Tokens, false)
}

func (h *Handler) requireUser() gin.HandlerFunc {
	if h.cfg.Tokens == nil || !h.cfg.Tokens.Enabled() {
		return middleware.RequireTriggerSecret(h.cfg.TriggerSecret)
	}
	return middleware.Authenticate(h.cfg.Tokens, true)
}

func (h *Handler) limit(scope ratelimit.Scope) gin.HandlerFunc {
	if h.cfg.Limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.RateLimit(h.cfg.Limiter, scope, h.log)
}

type executeRequest struct {
	WorkflowID     string `json:"workflowId" binding:"required,max=64"`
	IdempotencyKey string `json:"idempotencyKey" binding:"omitempty,max=200"`
}

func (h *Handler) execute(c *gin.Context) {
	var body executeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		server.RespondWithError(c, apperrors.InvalidInput("body", err.Error()))
		return
	}
	ctx := c.Request.Context()
	h.respondTrigger(c, Request{
		WorkflowID:     body.WorkflowID,
		UserID:         auth.UserID(ctx),
		Source:         workflow.TriggerAPI,
		IdempotencyKey: h.idempotencyKey(c, body.IdempotencyKey),
	})
}

func (h *Handler) run(c *gin.Context) {
	ctx := c.Request.Context()
	h.respondTrigger(c, Request{
		WorkflowID:     c.Param("id"),
		UserID:         auth.UserID(ctx),
		Source:         workflow.TriggerManual,
		IdempotencyKey: h.idempotencyKey(c, ""),
	})
}

// respondTrigger writes the bare {status, executionId} result so callers
// can compare it with the cached value of a 409.
func (h *Handler) respondTrigger(c *gin.Context, req Request) {
	res, err := h.svc.Trigger(c.Request.Context(), req)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

func (h *Handler) idempotencyKey(c *gin.Context, fromBody string) string {
	if header := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey)); header != "" {
		return header
	}
	return fromBody
}

func (h *Handler) sweep(c *gin.Context) {
	report, err := h.svc.Sweep(c.Request.Context())
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, report)
}

func (h *Handler) publish(c *gin.Context) {
	wf, err := h.svc.Publish(c.Request.Context(), c.Param("id"), auth.UserID(c.Request.Context()))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, wf)
}

func (h *Handler) unpublish(c *gin.Context) {
	wf, err := h.svc.Unpublish(c.Request.Context(), c.Param("id"), auth.UserID(c.Request.Context()))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, wf)
}

func (h *Handler) execution(c *gin.Context) {
	view, err := h.svc.Execution(c.Request.Context(), c.Param("id"), auth.UserID(c.Request.Context()))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, view)
}
