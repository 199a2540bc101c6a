package hub

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/weiawesome/autoschool-chat/internal/config"
	"github.com/weiawesome/autoschool-chat/internal/domain"
	"github.com/weiawesome/autoschool-chat/pkg/log"
)

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrClientClosed   = errors.New("client closed")
)

type Client struct {
	ID       string
	Identity domain.Identity
	Hub      *Hub
	Conn     *websocket.Conn
	Send     chan []byte
	limiter  *rate.Limiter
	config   config.WebSocketConfig
}

func NewClient(id string, identity domain.Identity, hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = 256
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		ID:       id,
		Identity: identity,
		Hub:      hub,
		Conn:     conn,
		Send:     make(chan []byte, buffer),
		limiter:  limiter,
		config:   cfg,
	}
}

// Allow reports whether the client may send another event now.
func (c *Client) Allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	if c.config.MaxMessageSize > 0 {
		c.Conn.SetReadLimit(c.config.MaxMessageSize)
	}
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Warn().Err(err).Str(log.FieldConnID, c.ID).Msg("websocket read error")
			}
			break
		}

		handler(c, message)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage queues a frame for this connection only.
func (c *Client) SendMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()

	// Send is closed once the hub drops the client.
	if _, ok := c.Hub.clients[c.ID]; !ok {
		return ErrClientClosed
	}

	select {
	case c.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}
