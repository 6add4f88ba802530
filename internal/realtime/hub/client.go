package hub

import (
	"context"
	"encoding/json"
	"time"

	gorillaWS "github.com/gorilla/websocket"

	"github.com/fieldsync/backend/internal/common/logger"
	"github.com/fieldsync/backend/pkg/event"
)

// ConnConfig carries the per-connection tunables the HTTP layer reads from
// service configuration.
type ConnConfig struct {
	WriteWait   time.Duration
	PongWait    time.Duration
	PingPeriod  time.Duration
	MaxMsgSize  int64
	SendBufSize int
}

type Client struct {
	hub      *Hub
	conn     *gorillaWS.Conn
	userID   string
	username string
	teamID   string
	send     chan []byte
	log      *logger.Logger
	cfg      ConnConfig
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewClient(hub *Hub, conn *gorillaWS.Conn, userID, username, teamID string, log *logger.Logger, cfg ConnConfig) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:      hub,
		conn:     conn,
		userID:   userID,
		username: username,
		teamID:   teamID,
		send:     make(chan []byte, cfg.SendBufSize),
		log:      log,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *Client) UserID() string { return c.userID }
func (c *Client) TeamID() string { return c.teamID }

func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// Stop cancels in-flight processing for this client. The hub owns closing
// the send channel.
func (c *Client) Stop() {
	c.cancel()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetReadLimit(c.cfg.MaxMsgSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if gorillaWS.IsUnexpectedCloseError(err, gorillaWS.CloseGoingAway, gorillaWS.CloseAbnormalClosure) {
				c.log.Warnf("websocket read error user_id=%s username=%s: %v", c.userID, c.username, err)
			}
			break
		}

		var env event.Envelope
		if err := json.Unmarshal(messageBytes, &env); err != nil {
			c.log.Warnf("websocket invalid message user_id=%s username=%s: %v", c.userID, c.username, err)
			continue
		}

		c.hub.HandleMessage(c, &env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			c.conn.WriteMessage(gorillaWS.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			w, err := c.conn.NextWriter(gorillaWS.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(gorillaWS.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
