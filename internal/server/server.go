// Package server - HTTP-сервер режима webhook: прием апдейтов Telegram, метрики и health-check.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// UpdateHandler обрабатывает сырое тело апдейта
type UpdateHandler interface {
	HandleWebhook(ctx context.Context, body []byte) error
}

type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	handler    UpdateHandler
	secret     string
	logger     *zap.Logger
	startTime  time.Time
}

// New создает сервер. Апдейты принимаются только на /webhook/{secret}.
func New(addr, secret string, handler UpdateHandler, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		router:    router,
		handler:   handler,
		secret:    secret,
		logger:    logger.With(zap.String("component", "server")),
		startTime: time.Now(),
	}
	router.Use(gin.Recovery(), s.logRequests())

	router.POST("/webhook/:secret", s.handleWebhook)
	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler возвращает роутер (для тестов и встраивания)
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start блокируется до остановки сервера
func (s *Server) Start() error {
	s.logger.Info("http server started", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWebhook(c *gin.Context) {
	// чужой секрет неотличим от несуществующего маршрута
	if s.secret == "" || subtle.ConstantTimeCompare([]byte(c.Param("secret")), []byte(s.secret)) != 1 {
		c.Status(http.StatusNotFound)
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	if err := s.handler.HandleWebhook(c.Request.Context(), body); err != nil {
		s.logger.Warn("rejected webhook update", zap.Error(err))
		c.Status(http.StatusBadRequest)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}

// logRequests пишет запросы в zap; путь webhook не логируется, в нем секрет
func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}
