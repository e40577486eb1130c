package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/social-bet-resolution/pkg/contracts/events"
)

// ClientMsg é a mensagem enviada pelo cliente: subscribe | unsubscribe | ping
type ClientMsg struct {
	Type  string `json:"type"`
	BetID string `json:"betId"`
}

// client serializa escritas: gorilla não aceita escritas concorrentes na mesma conexão
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Hub mantém as assinaturas betID -> conexões e repassa o feed de apuração e status
type Hub struct {
	upgrader websocket.Upgrader
	log      *zap.Logger
	mu       sync.RWMutex
	subs     map[string]map[*client]struct{}

	OnBroadcast func(delivered int)
}

func NewHub(allowOrigin func(r *http.Request) bool, log *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		log:      log,
		subs:     make(map[string]map[*client]struct{}),
	}
}

func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("ws upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn}
	defer func() {
		h.drop(c)
		_ = conn.Close()
	}()

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case "subscribe":
			if msg.BetID != "" {
				h.subscribe(msg.BetID, c)
			}
		case "unsubscribe":
			h.unsubscribe(msg.BetID, c)
		case "ping":
			_ = c.write([]byte(`{"type":"pong"}`))
		}
	}
}

func (h *Hub) subscribe(betID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[betID]; !ok {
		h.subs[betID] = make(map[*client]struct{})
	}
	h.subs[betID][c] = struct{}{}
}

func (h *Hub) unsubscribe(betID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[betID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, betID)
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, id)
		}
	}
}

// Subscribers retorna quantas conexões acompanham a aposta
func (h *Hub) Subscribers(betID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[betID])
}

// Broadcast envia a atualização para os inscritos na aposta
func (h *Hub) Broadcast(upd events.FeedUpdate) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.subs[upd.BetID]))
	for c := range h.subs[upd.BetID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	b, err := json.Marshal(upd)
	if err != nil {
		h.log.Warn("ws marshal failed", zap.String("bet_id", upd.BetID), zap.Error(err))
		return
	}
	n := 0
	for _, c := range targets {
		if err := c.write(b); err == nil {
			n++
		}
	}
	if h.OnBroadcast != nil {
		h.OnBroadcast(n)
	}
}
