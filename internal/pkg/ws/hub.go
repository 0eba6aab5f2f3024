package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 512
)

// Message 推送给前端的消息
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Client 一个 WebSocket 连接；jobs 非空时只接收这些任务的进度
type Client struct {
	UserID string
	Conn   *websocket.Conn
	jobs   map[string]struct{}
	mu     sync.Mutex // 写锁，gorilla 连接不允许并发写
}

// NewClient jobIDs 为空表示接收该用户所有任务的进度
func NewClient(userID string, conn *websocket.Conn, jobIDs ...string) *Client {
	c := &Client{UserID: userID, Conn: conn}
	for _, id := range jobIDs {
		if id == "" {
			continue
		}
		if c.jobs == nil {
			c.jobs = make(map[string]struct{}, len(jobIDs))
		}
		c.jobs[id] = struct{}{}
	}
	return c
}

// Wants 是否需要接收该任务的消息，jobID 为空的消息发给所有连接
func (c *Client) Wants(jobID string) bool {
	if jobID == "" || len(c.jobs) == 0 {
		return true
	}
	_, ok := c.jobs[jobID]
	return ok
}

func (c *Client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(messageType, data)
}

// Hub 按用户维护连接，一个用户可以有多个连接（多标签页、重连）
type Hub struct {
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]struct{})
	}
	h.clients[client.UserID][client] = struct{}{}

	h.logger.Info("websocket connected",
		zap.String("user_id", client.UserID),
		zap.Int("job_filter", len(client.jobs)),
		zap.Int("user_conns", len(h.clients[client.UserID])),
		zap.Int("total", h.countLocked()),
	)
}

// Unregister 可重复调用
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(h.clients, client.UserID)
	}
	h.logger.Info("websocket disconnected", zap.String("user_id", client.UserID))
}

// Attach 注册连接并在后台维持读循环和心跳，连接断开或心跳失败后自动注销
func (h *Hub) Attach(client *Client) {
	h.Register(client)
	go h.serve(client)
}

func (h *Hub) serve(client *Client) {
	done := make(chan struct{})
	defer func() {
		close(done)
		h.Unregister(client)
		_ = client.Conn.Close()
	}()
	go h.keepalive(client, done)

	conn := client.Conn
	conn.SetReadLimit(maxInboundSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// 客户端不发业务消息，读取只用于处理 pong 和检测断开
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) keepalive(client *Client, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := client.write(websocket.PingMessage, nil); err != nil {
				_ = client.Conn.Close()
				return
			}
		}
	}
}

// SendToUser 向指定用户的所有连接发送消息
func (h *Hub) SendToUser(userID string, msg *Message) error {
	_, err := h.SendJobUpdate(userID, "", msg)
	return err
}

// SendJobUpdate 只投递给订阅了 jobID 或未限定任务的连接，返回成功投递的连接数。
// 写失败的连接会被关闭并注销
func (h *Hub) SendJobUpdate(userID, jobID string, msg *Message) (int, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, c := range h.snapshot(userID) {
		if !c.Wants(jobID) {
			continue
		}
		if err := c.write(websocket.TextMessage, data); err != nil {
			h.logger.Warn("websocket write failed",
				zap.String("user_id", userID),
				zap.String("job_id", jobID),
				zap.Error(err),
			)
			h.Unregister(c)
			_ = c.Conn.Close()
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (h *Hub) snapshot(userID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := h.clients[userID]
	clients := make([]*Client, 0, len(conns))
	for c := range conns {
		clients = append(clients, c)
	}
	return clients
}

// IsOnline 检查用户是否在线
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// ConnectionCount 获取在线连接数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.countLocked()
}

func (h *Hub) countLocked() int {
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
