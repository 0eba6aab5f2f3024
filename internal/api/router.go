package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/config"
	"github.com/qs3c/lease_go_server/internal/api/handler"
	"github.com/qs3c/lease_go_server/internal/api/middleware"
)

type Router struct {
	analysisHandler  *handler.AnalysisHandler
	jobHandler       *handler.JobHandler
	websocketHandler *handler.WebSocketHandler
	healthHandler    *handler.HealthHandler
	cfg              *config.Config
	logger           *zap.Logger
}

func NewRouter(
	analysisHandler *handler.AnalysisHandler,
	jobHandler *handler.JobHandler,
	websocketHandler *handler.WebSocketHandler,
	healthHandler *handler.HealthHandler,
	cfg *config.Config,
	logger *zap.Logger,
) *Router {
	return &Router{
		analysisHandler:  analysisHandler,
		jobHandler:       jobHandler,
		websocketHandler: websocketHandler,
		healthHandler:    healthHandler,
		cfg:              cfg,
		logger:           logger,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(r.logger))
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/healthz", r.healthHandler.Check)

	api := engine.Group("/api/v1")
	{
		// WebSocket 自己解析用户标识
		api.GET("/ws", r.websocketHandler.Handle)

		// 纯文本问答不需要用户标识
		api.POST("/analyze", r.analysisHandler.Analyze)

		identified := api.Group("")
		identified.Use(middleware.UserIdentity())
		{
			identified.POST("/documents", r.analysisHandler.SubmitDocument)

			jobs := identified.Group("/jobs")
			{
				jobs.POST("", r.jobHandler.Submit)
				jobs.GET("", r.jobHandler.List)
				jobs.GET("/stats", r.jobHandler.Stats)
				jobs.GET("/:id", r.jobHandler.Get)
				jobs.GET("/:id/result", r.jobHandler.Result)
				jobs.GET("/:id/download", r.jobHandler.Download)
				jobs.POST("/:id/retry", r.jobHandler.Retry)
				jobs.POST("/:id/cancel", r.jobHandler.Cancel)
			}
		}
	}

	return engine
}
