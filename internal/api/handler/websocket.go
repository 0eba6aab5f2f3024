package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/qs3c/lease_go_server/internal/api/middleware"
	"github.com/qs3c/lease_go_server/internal/pkg/pubsub"
	"github.com/qs3c/lease_go_server/internal/pkg/ws"
)

type WebSocketHandler struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler allowedOrigins 为空或包含 "*" 时接受任意 Origin
func NewWebSocketHandler(hub *ws.Hub, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// Handle WebSocket 连接处理，浏览器无法设置请求头时用 user_id 查询参数
// GET /api/v1/ws?user_id=xxx[&job_id=yyy]
func (h *WebSocketHandler) Handle(c *gin.Context) {
	userID := strings.TrimSpace(c.GetHeader(middleware.UserIDHeader))
	if userID == "" {
		userID = strings.TrimSpace(c.Query("user_id"))
	}
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user id"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	// job_id 可重复，指定后只推送这些任务的进度
	h.hub.Attach(ws.NewClient(userID, conn, c.QueryArray("job_id")...))
}

// ProgressSource 由 pubsub.Subscriber 实现
type ProgressSource interface {
	Subscribe(ctx context.Context, handler func(*pubsub.JobProgress)) error
}

// RelayProgress 把 worker 发布的进度转发给任务所属用户的连接，阻塞直到 ctx 结束
func RelayProgress(ctx context.Context, source ProgressSource, hub *ws.Hub, logger *zap.Logger) error {
	return source.Subscribe(ctx, func(msg *pubsub.JobProgress) {
		if msg.UserID == "" {
			return
		}
		_, err := hub.SendJobUpdate(msg.UserID, msg.JobID, &ws.Message{Type: msg.Type, Data: msg})
		if err != nil {
			logger.Warn("failed to relay job progress",
				zap.String("job_id", msg.JobID),
				zap.String("user_id", msg.UserID),
				zap.Error(err),
			)
		}
	})
}
