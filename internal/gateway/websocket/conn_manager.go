// Package websocket 把 store 订阅推送到本地 UI 的 WebSocket 连接
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"ephemeral_chat/internal/infrastructure/metrics"
	"ephemeral_chat/internal/model"
	"ephemeral_chat/internal/service/chatview"
	"ephemeral_chat/internal/service/ephemeral"
	"ephemeral_chat/pkg/constants"
	"ephemeral_chat/pkg/errorx"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  2048,
	WriteBufferSize: 2048,
	// 本地接口，放行所有 Origin
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client 一条 WebSocket 连接
type Client struct {
	Conn     *websocket.Conn
	ID       string
	SendBack chan []byte // 给前端

	hub       *Hub
	limiter   *rate.Limiter // 上行帧限速，连续输入时 typing 帧很密集
	done      chan struct{}
	closeOnce sync.Once
}

// Hub 在线连接表
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewHub 构造函数
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// Count 在线连接数
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetClient 按连接 ID 查找
func (h *Hub) GetClient(id string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[id]
}

// CloseAll 关闭所有连接，进程退出时调用
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.Close()
	}
}

func (h *Hub) upgrade(w http.ResponseWriter, r *http.Request) (*Client, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		Conn:     conn,
		ID:       uuid.NewString(),
		SendBack: make(chan []byte, constants.CHANNEL_SIZE),
		hub:      h,
		limiter:  rate.NewLimiter(rate.Limit(constants.WS_FRAME_RATE), constants.WS_FRAME_BURST),
		done:     make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	metrics.IncWSActive()
	go c.Write()
	zap.L().Info("ws连接成功", zap.String("conn", c.ID))
	return c, nil
}

// ServeChat 打开与 peerID 的会话视图，并把每次状态变化推给前端
// 上行帧支持 send 与 typing，连接断开时关闭视图
func (h *Hub) ServeChat(w http.ResponseWriter, r *http.Request, opener ChatOpener, peerID string) error {
	c, err := h.upgrade(w, r)
	if err != nil {
		return err
	}
	defer c.Close()

	view, err := opener.OpenChat(r.Context(), peerID, func(u chatview.Update) {
		c.push(Frame{Type: "chat", Data: u})
	})
	if err != nil {
		c.pushError(err)
		return err
	}
	defer func() {
		if err := view.Close(context.Background()); err != nil {
			zap.L().Warn("close chat view failed", zap.String("conn", c.ID), zap.Error(err))
		}
	}()

	c.Read(func(in inbound) {
		ctx := context.Background()
		switch in.Type {
		case "typing":
			err = view.Typing(ctx, in.Draft)
		case "send":
			_, err = view.Send(ctx, toSendInput(in))
		default:
			err = errorx.Newf(errorx.CodeInvalidParam, "未知帧类型 %q", in.Type)
		}
		if err != nil {
			c.pushError(err)
		}
	})
	return nil
}

// ServeUser 推送 userID 的用户文档，文档不存在时推送 null
func (h *Hub) ServeUser(w http.ResponseWriter, r *http.Request, watcher UserWatcher, userID string) error {
	c, err := h.upgrade(w, r)
	if err != nil {
		return err
	}
	defer c.Close()

	cancel, err := watcher.SubscribeUser(r.Context(), userID, func(u *model.User) {
		c.push(Frame{Type: "user", Data: u})
	})
	if err != nil {
		c.pushError(err)
		return err
	}
	defer cancel()

	// 只读不处理，用于感知断开
	c.Read(func(inbound) {})
	return nil
}

// Read 读取上行帧直到连接断开
func (c *Client) Read(handle func(inbound)) {
	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.L().Warn("ws read failed", zap.String("conn", c.ID), zap.Error(err))
			}
			return
		}
		if !c.limiter.Allow() {
			c.pushError(errorx.New(errorx.CodeServerBusy, "操作过于频繁"))
			continue
		}
		var in inbound
		if err := json.Unmarshal(raw, &in); err != nil {
			c.pushError(errorx.Wrap(err, errorx.CodeInvalidParam, "帧格式错误"))
			continue
		}
		handle(in)
	}
}

// Write 从 SendBack 读取并写入连接
func (c *Client) Write() {
	for {
		select {
		case msg := <-c.SendBack:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				zap.L().Warn("ws write failed", zap.String("conn", c.ID), zap.Error(err))
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close 注销并关闭连接，可重复调用
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.hub.mu.Lock()
		delete(c.hub.clients, c.ID)
		c.hub.mu.Unlock()
		metrics.DecWSActive()
		if err := c.Conn.Close(); err != nil {
			zap.L().Debug("ws close", zap.String("conn", c.ID), zap.Error(err))
		}
	})
}

// push 连接关闭后丢弃
// 在订阅回调里执行，不能阻塞；SendBack 已满说明前端跟不上，直接断开
func (c *Client) push(f Frame) {
	b, err := json.Marshal(f)
	if err != nil {
		zap.L().Error("marshal ws frame failed", zap.String("type", f.Type), zap.Error(err))
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.SendBack <- b:
	default:
		zap.L().Warn("ws send buffer full, closing slow client",
			zap.String("conn", c.ID), zap.String("type", f.Type))
		c.Close()
	}
}

func (c *Client) pushError(err error) {
	data := errorData{Code: errorx.GetCode(err), Msg: err.Error()}
	var codeErr *errorx.CodeError
	if errors.As(err, &codeErr) {
		data.Msg = codeErr.Msg
	}
	c.push(Frame{Type: "error", Data: data})
}

func toSendInput(in inbound) ephemeral.SendInput {
	return ephemeral.SendInput{
		Text:     in.Text,
		ImageRef: in.ImageRef,
		Policy:   model.PolicyKind(in.Policy),
		Duration: time.Duration(in.DurationMs) * time.Millisecond,
	}
}
