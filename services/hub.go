package services

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Hub pushes order changes to websocket clients watching that order.
type Hub struct {
	feed    ChangeFeed
	logger  *zap.Logger
	mu      sync.RWMutex
	clients map[string]map[*websocket.Conn]bool
}

func NewHub(feed ChangeFeed, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{feed: feed, logger: logger, clients: make(map[string]map[*websocket.Conn]bool)}
}

func (h *Hub) add(orderID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[orderID] == nil {
		h.clients[orderID] = make(map[*websocket.Conn]bool)
	}
	h.clients[orderID][conn] = true
}

func (h *Hub) remove(orderID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room, ok := h.clients[orderID]; ok {
		delete(room, conn)
		if len(room) == 0 {
			delete(h.clients, orderID)
		}
	}
}

// ClientsCount is the number of connections watching orderID.
func (h *Hub) ClientsCount(orderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[orderID])
}

// Serve streams changes of orderID to conn until the client goes away. It
// owns conn and closes it.
func (h *Hub) Serve(orderID string, conn *websocket.Conn) {
	changes, unsubscribe := h.feed.Subscribe(orderID)
	h.add(orderID, conn)
	h.logger.Debug("Order stream opened", zap.String("order_id", orderID), zap.Int("clients", h.ClientsCount(orderID)))

	defer func() {
		unsubscribe()
		h.remove(orderID, conn)
		conn.Close()
		h.logger.Debug("Order stream closed", zap.String("order_id", orderID))
	}()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Warn("Order stream read error", zap.String("order_id", orderID), zap.Error(err))
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(change); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
