package dispatch

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/stockpulse/internal/engine"
)

// RouterConfig wires the optional handlers mounted next to the API.
type RouterConfig struct {
	WebSocket   http.Handler // Mounted at /ws when set
	Metrics     http.Handler // Mounted at MetricsPath when set
	MetricsPath string
	Version     string
	Components  map[string]func() any // Extra /health entries, e.g. hub stats
	Logger      *slog.Logger
}

// NewRouter builds the gin engine serving the HTTP surface.
func NewRouter(d *Dispatcher, cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	h := &handler{dispatcher: d, version: cfg.Version, components: cfg.Components}

	router.GET("/health", h.health)

	api := router.Group("/api")
	{
		api.GET("/instruments", h.command(CmdGetAllInstruments))
		api.GET("/market/state", h.command(CmdGetMarketState))
		api.POST("/market/start", h.command(CmdStart))
		api.POST("/market/stop", h.command(CmdStop))
		api.POST("/market/reset", h.command(CmdReset))
		api.POST("/commands/:cmd", h.namedCommand)
	}

	if cfg.WebSocket != nil {
		router.GET("/ws", gin.WrapH(cfg.WebSocket))
	}
	if cfg.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(cfg.Metrics))
	}

	return router
}

type handler struct {
	dispatcher *Dispatcher
	version    string
	components map[string]func() any
}

func (h *handler) health(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"market": h.dispatcher.engine.State().String(),
	}
	if h.version != "" {
		body["version"] = h.version
	}
	if len(h.components) > 0 {
		components := make(gin.H, len(h.components))
		for name, fn := range h.components {
			components[name] = fn()
		}
		body["components"] = components
	}
	c.JSON(http.StatusOK, body)
}

func (h *handler) command(cmd string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.run(c, cmd)
	}
}

func (h *handler) namedCommand(c *gin.Context) {
	h.run(c, c.Param("cmd"))
}

func (h *handler) run(c *gin.Context, cmd string) {
	result, err := h.dispatcher.Dispatch(c.Request.Context(), cmd)
	if err != nil {
		c.JSON(statusFor(err), gin.H{
			"code":  h.dispatcher.ErrorCode(err),
			"error": err.Error(),
		})
		return
	}

	if result == nil {
		c.JSON(http.StatusOK, gin.H{"state": h.dispatcher.engine.State().String()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// requestLogger logs each request through slog instead of gin's writer.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
