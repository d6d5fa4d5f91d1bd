package transport

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/imtaco/liveroom/internal/jwt"
	"github.com/imtaco/liveroom/internal/log"
	"github.com/imtaco/liveroom/internal/validation"
	"github.com/imtaco/liveroom/liveroom/coordinator"
	"github.com/imtaco/liveroom/liveroom/session"
)

const (
	ctxKeyAuth  = "auth"
	ctxKeyVisit = "visit"
)

// Visits owns the room visit driven by this API.
type Visits interface {
	Enter(ctx context.Context, v session.Visit) (*coordinator.Coordinator, error)
	// Current returns nil when there is no visit.
	Current() *coordinator.Coordinator
	Leave(ctx context.Context) error
}

type Router struct {
	visits  Visits
	jwtAuth jwt.Auth
	cfg     *Config
	limiter *rate.Limiter
	engine  *gin.Engine
	logger  *log.Logger
}

func NewRouter(visits Visits, jwtAuth jwt.Auth, cfg *Config, logger *log.Logger) *Router {
	if logger == nil {
		panic("logger is required")
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	// Add OpenTelemetry middleware for automatic HTTP tracing
	engine.Use(otelgin.Middleware("liveroom-agent"))

	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}))

	limit := rate.Inf
	if cfg.ActionRate > 0 {
		limit = rate.Limit(cfg.ActionRate)
	}
	burst := cfg.ActionBurst
	if burst <= 0 {
		burst = 1
	}

	r := &Router{
		visits:  visits,
		jwtAuth: jwtAuth,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		engine:  engine,
		logger:  logger,
	}

	r.engine.Use(func(c *gin.Context) {
		r.logger.Debug("Incoming request",
			log.String("method", c.Request.Method),
			log.String("url", c.Request.URL.Path))
		c.Next()
	})

	r.setupRoutes()
	return r
}

func (r *Router) Handler() http.Handler {
	return r.engine
}

func (r *Router) setupRoutes() {
	api := r.engine.Group("/api", r.authenticate(false))
	api.POST("/visit", r.throttle, r.enterVisit)

	visit := api.Group("/visit", r.withVisit)
	visit.GET("", r.getView)

	actions := visit.Group("", r.throttle)
	actions.POST("/hand", r.action("raiseHand", func(ctx context.Context, coord *coordinator.Coordinator) error {
		return coord.RaiseHand(ctx)
	}))
	actions.DELETE("/hand", r.action("lowerHand", func(ctx context.Context, coord *coordinator.Coordinator) error {
		return coord.LowerHand(ctx, "")
	}))
	actions.DELETE("/participants/:participantId/hand", r.participantAction("dismissHand", (*coordinator.Coordinator).LowerHand))
	actions.POST("/participants/:participantId/invite", r.participantAction("inviteToSpeak", (*coordinator.Coordinator).InviteToSpeak))
	actions.POST("/participants/:participantId/demote", r.participantAction("demote", (*coordinator.Coordinator).Demote))
	actions.DELETE("/participants/:participantId", r.participantAction("remove", (*coordinator.Coordinator).Remove))
	actions.POST("/end", r.action("endRoom", func(ctx context.Context, coord *coordinator.Coordinator) error {
		return coord.EndRoom(ctx)
	}))
	actions.POST("/reconnect", r.action("reconnect", func(ctx context.Context, coord *coordinator.Coordinator) error {
		return coord.Reconnect(ctx)
	}))
	actions.POST("/leave", r.action("leave", func(ctx context.Context, _ *coordinator.Coordinator) error {
		return r.visits.Leave(ctx)
	}))
	actions.POST("/mute", r.toggle("toggleMute", "muted", (*coordinator.Coordinator).ToggleMute))
	actions.POST("/camera", r.toggle("toggleCamera", "cameraOff", (*coordinator.Coordinator).ToggleCamera))

	// browsers cannot set headers on a websocket upgrade
	r.engine.GET("/ws/view", r.authenticate(true), r.withVisit, r.streamView)

	// Health check
	r.engine.GET("/health", r.healthCheck)
}

// authenticate requires a bearer token naming the participant and room this
// client may drive.
func (r *Router) authenticate(allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" && allowQuery {
			token = c.Query("token")
		}
		payload, err := r.jwtAuth.Verify(token)
		if err != nil {
			authFailures.Add(c.Request.Context(), 1)
			r.logger.Warn("Rejected request",
				log.String("url", c.Request.URL.Path),
				log.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Authorization required",
			})
			return
		}
		c.Set(ctxKeyAuth, payload)
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func authOf(c *gin.Context) *jwt.Payload {
	return c.MustGet(ctxKeyAuth).(*jwt.Payload)
}

// withVisit resolves the current visit and checks the token is scoped to it.
func (r *Router) withVisit(c *gin.Context) {
	coord := r.visits.Current()
	if coord == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "No visit",
		})
		return
	}
	auth := authOf(c)
	if auth.ParticipantID != coord.ParticipantID() || auth.RoomID != coord.RoomID() {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   "Token does not match the current visit",
		})
		return
	}
	c.Set(ctxKeyVisit, coord)
	c.Next()
}

func visitOf(c *gin.Context) *coordinator.Coordinator {
	return c.MustGet(ctxKeyVisit).(*coordinator.Coordinator)
}

func (r *Router) throttle(c *gin.Context) {
	if !r.limiter.Allow() {
		throttled.Add(c.Request.Context(), 1)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"success": false,
			"error":   "Too many requests",
		})
		return
	}
	c.Next()
}

func (r *Router) enterVisit(c *gin.Context) {
	var body EnterVisitBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, validation.FormatValidationError(err))
		return
	}

	auth := authOf(c)
	if auth.ParticipantID != body.ParticipantID || auth.RoomID != body.RoomID {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   "Token does not match the requested visit",
		})
		return
	}

	kinds, err := (&session.Config{Kinds: body.Kinds}).TrackKinds()
	if err != nil {
		r.fail(c, "enter", err)
		return
	}

	ctx := c.Request.Context()
	actionRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("action", "enter")))
	coord, err := r.visits.Enter(ctx, session.Visit{
		RoomID:        body.RoomID,
		ParticipantID: body.ParticipantID,
		DisplayRef:    body.DisplayRef,
		Credential:    body.Credential,
		Kinds:         kinds,
	})
	if err != nil {
		r.fail(c, "enter", err)
		return
	}

	r.logger.Info("Visit entered",
		log.RoomID(body.RoomID),
		log.ParticipantID(body.ParticipantID))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"view":    coord.View(),
	})
}

func (r *Router) getView(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"view":    visitOf(c).View(),
	})
}

func (r *Router) action(name string, fn func(ctx context.Context, coord *coordinator.Coordinator) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		actionRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("action", name)))
		if err := fn(ctx, visitOf(c)); err != nil {
			r.fail(c, name, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (r *Router) participantAction(
	name string,
	fn func(coord *coordinator.Coordinator, ctx context.Context, participantID string) error,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var uri ParticipantURI
		if err := c.ShouldBindUri(&uri); err != nil {
			badRequest(c, validation.FormatValidationError(err))
			return
		}
		r.action(name, func(ctx context.Context, coord *coordinator.Coordinator) error {
			return fn(coord, ctx, uri.ParticipantID)
		})(c)
	}
}

// toggle answers with the flag's new value under key.
func (r *Router) toggle(
	name, key string,
	fn func(coord *coordinator.Coordinator, ctx context.Context) (bool, error),
) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		actionRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("action", name)))
		on, err := fn(visitOf(c), ctx)
		if err != nil {
			r.fail(c, name, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			key:       on,
		})
	}
}

func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
