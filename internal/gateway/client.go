package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bollinger-service/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 4096
	sendBuffer = 256
)

var (
	errClientClosed = errors.New("client closed")
	errSendFull     = errors.New("send buffer full")
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	hub  *Hub

	sendMu sync.Mutex
	send   chan []byte
	closed bool

	// Per-client subscriptions: key = SeriesKey.String()
	subMu sync.RWMutex
	subs  map[string]Subscription
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		hub:  hub,
		send: make(chan []byte, sendBuffer),
		subs: make(map[string]Subscription),
	}
}

// enqueue hands data to the write pump without blocking.
func (c *Client) enqueue(data []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSendFull
	}
}

func (c *Client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// subscriptions returns a copy of the client's subscriptions.
func (c *Client) subscriptions() []Subscription {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	out := make([]Subscription, 0, len(c.subs))
	for _, s := range c.subs {
		out = append(out, s)
	}
	return out
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var base struct {
			Type string `json:"type"`
			Ping int64  `json:"ping"`
		}
		if json.Unmarshal(msg, &base) != nil {
			SendError(c, "", "invalid JSON")
			continue
		}

		switch base.Type {
		case "SUBSCRIBE":
			var subMsg SubscribeMsg
			if err := json.Unmarshal(msg, &subMsg); err != nil {
				SendError(c, "", "invalid SUBSCRIBE: "+err.Error())
				continue
			}
			// stored here so a following UNSUBSCRIBE always sees it
			if sub, ok := c.handleSubscribe(subMsg); ok {
				go c.pushBands(context.Background(), sub, subMsg.ReqID, ReasonSubscribe)
			}

		case "UNSUBSCRIBE":
			var unsubMsg UnsubscribeMsg
			if err := json.Unmarshal(msg, &unsubMsg); err != nil {
				SendError(c, "", "invalid UNSUBSCRIBE: "+err.Error())
				continue
			}
			c.handleUnsubscribe(unsubMsg)

		case "RECOMPUTE":
			var rec RecomputeMsg
			if err := json.Unmarshal(msg, &rec); err != nil {
				SendError(c, "", "invalid RECOMPUTE: "+err.Error())
				continue
			}
			go c.handleRecompute(rec)

		default:
			if base.Ping > 0 {
				pong, _ := json.Marshal(map[string]interface{}{
					"type":      "pong",
					"ping":      base.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				c.deliver(pong)
				continue
			}
			SendError(c, "", "unknown message type "+base.Type)
		}
	}
}

// handleSubscribe validates and stores the subscription. The caller
// sends the first snapshot.
func (c *Client) handleSubscribe(msg SubscribeMsg) (Subscription, bool) {
	if msg.Symbol == "" || msg.Interval <= 0 {
		SendError(c, msg.ReqID, "symbol and interval are required")
		return Subscription{}, false
	}

	sub := Subscription{
		Key:      model.SeriesKey{Symbol: msg.Symbol, Interval: msg.Interval},
		Override: msg.Params,
		Limit:    c.hub.capLimit(msg.Limit),
	}
	if err := sub.params(c.hub.settings.Get().Inputs).Validate(); err != nil {
		SendError(c, msg.ReqID, err.Error())
		return Subscription{}, false
	}

	c.subMu.Lock()
	c.subs[sub.Key.String()] = sub
	c.subMu.Unlock()

	log.Printf("[gateway] client subscribed: %s", sub.Key)
	return sub, true
}

// handleUnsubscribe removes a subscription.
func (c *Client) handleUnsubscribe(msg UnsubscribeMsg) {
	key := model.SeriesKey{Symbol: msg.Symbol, Interval: msg.Interval}
	c.subMu.Lock()
	delete(c.subs, key.String())
	c.subMu.Unlock()

	log.Printf("[gateway] client unsubscribed: %s", key)
}

func (c *Client) handleRecompute(msg RecomputeMsg) {
	ctx := context.Background()
	if msg.Symbol == "" {
		for _, sub := range c.subscriptions() {
			c.pushBands(ctx, sub, msg.ReqID, ReasonRecompute)
		}
		return
	}

	key := model.SeriesKey{Symbol: msg.Symbol, Interval: msg.Interval}
	c.subMu.RLock()
	sub, ok := c.subs[key.String()]
	c.subMu.RUnlock()
	if !ok {
		SendError(c, msg.ReqID, "not subscribed to "+key.String())
		return
	}
	c.pushBands(ctx, sub, msg.ReqID, ReasonRecompute)
}
