package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"v2scrape/collector/model"
	"v2scrape/internal/shared/logger"
)

const writeWait = 5 * time.Second

// RunEvent 是一次运行结束后推送给客户端的摘要
type RunEvent struct {
	Record    *model.RunRecord      `json:"record,omitempty"`
	Protocols []model.ProtocolEntry `json:"protocols,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// WebSocketMessage 定义了 WebSocket 消息的通用格式
type WebSocketMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub maintains the set of active clients and broadcasts messages to the
// clients.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	// done 在 Run 返回时关闭，之后的注册和注销直接放弃
	done chan struct{}
	mu   sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		clients:    make(map[*websocket.Conn]bool),
	}
}

// Run 处理注册、注销和广播，ctx 取消时关闭所有连接并返回。
func (h *Hub) Run(ctx context.Context) {
	l := logger.WithComponent("Web/Hub")
	defer close(h.done)
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
			l.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("WebSocket client registered.")
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				l.Info().Str("remote_addr", conn.RemoteAddr().String()).Msg("WebSocket client unregistered.")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					// 读循环会负责注销断开的客户端
					l.Warn().Err(err).Str("remote_addr", conn.RemoteAddr().String()).Msg("Error writing to websocket client.")
				}
			}
			h.mu.Unlock()
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			return
		}
	}
}

// ClientCount 返回当前连接的客户端数量
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// BroadcastRunFinished 广播运行结果，可以直接注册为 Manager 的回调。
func (h *Hub) BroadcastRunFinished(res *model.RunResult, err error) {
	l := logger.WithComponent("Web/Hub")

	msg := WebSocketMessage{Type: "run_completed"}
	if err != nil {
		msg = WebSocketMessage{Type: "run_failed", Data: RunEvent{Error: err.Error()}}
	} else if res != nil {
		msg.Data = RunEvent{Record: &res.Record, Protocols: res.Protocols}
	}
	jsonMsg, mErr := json.Marshal(msg)
	if mErr != nil {
		l.Error().Err(mErr).Msg("Failed to marshal run event.")
		return
	}

	select {
	case h.broadcast <- jsonMsg:
	default:
		l.Warn().Msg("Broadcast channel is full, skipping run event.")
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWs handles websocket requests from the peer.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	l := logger.WithComponent("Web/Hub")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Error().Err(err).Msg("Failed to upgrade websocket")
		return
	}
	select {
	case hub.register <- conn:
	case <-hub.done:
		conn.Close()
		return
	}

	// 读循环，用于发现客户端关闭连接
	go func() {
		defer func() {
			select {
			case hub.unregister <- conn:
			case <-hub.done:
				conn.Close()
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					l.Warn().Err(err).Msg("Unexpected websocket close error")
				}
				break
			}
		}
	}()
}
