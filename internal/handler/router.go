package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tenxcards/tenxcards-go/internal/client"
	"github.com/tenxcards/tenxcards-go/internal/metrics"
)

type RouterConfig struct {
	Session     Session
	API         client.Doer
	Metrics     *metrics.Registry
	Logger      *slog.Logger
	CORSOrigins []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware(cfg.Logger))
	router.Use(LoggingMiddleware(cfg.Metrics))
	router.Use(CORSMiddleware(cfg.CORSOrigins))

	router.GET("/ping", Ping)
	router.GET("/", Root)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Metrics.Gatherer(), promhttp.HandlerOpts{})))

	sessionHandler := NewSessionHandler(cfg.Session)
	session := router.Group("/session")
	{
		session.GET("", sessionHandler.Get)
		session.POST("/login", sessionHandler.Login)
		session.POST("/register", sessionHandler.Register)
		session.POST("/logout", sessionHandler.Logout)
		session.POST("/password-reset/request", sessionHandler.RequestPasswordReset)
		session.POST("/password-reset/confirm", sessionHandler.ConfirmPasswordReset)
	}

	proxy := NewProxyHandler(cfg.Session, cfg.API)
	router.Any("/api/*path", proxy.Forward)

	return router
}
