package devnode

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type wsClient struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu         sync.Mutex
	subscribed map[string]bool
}

func (c *wsClient) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(v)
}

func (c *wsClient) isSubscribed(contextID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed[contextID]
}

type wsFrame struct {
	ID     *int   `json:"id"`
	Method string `json:"method"`
	Params struct {
		ContextIDs []string `json:"contextIds"`
	} `json:"params"`
}

func (n *Node) handleWS(w http.ResponseWriter, r *http.Request) {
	if _, ok := n.authorize(r); !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &wsClient{conn: conn, subscribed: make(map[string]bool)}

	n.wsMu.Lock()
	n.clients[c] = struct{}{}
	n.wsMu.Unlock()

	defer func() {
		n.wsMu.Lock()
		delete(n.clients, c)
		n.wsMu.Unlock()
		_ = conn.Close()
	}()

	for {
		var f wsFrame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}

		c.mu.Lock()
		for _, id := range f.Params.ContextIDs {
			switch f.Method {
			case "subscribe":
				c.subscribed[id] = true
			case "unsubscribe":
				delete(c.subscribed, id)
			}
		}
		c.mu.Unlock()

		ack := map[string]any{
			"jsonrpc": "2.0",
			"id":      f.ID,
			"result":  map[string]any{"contextIds": f.Params.ContextIDs},
		}
		if err := c.write(ack); err != nil {
			return
		}
	}
}

// Notify pushes a state-mutation notification to every subscriber of the
// node's context.
func (n *Node) Notify() {
	n.wsMu.Lock()
	clients := make([]*wsClient, 0, len(n.clients))
	for c := range n.clients {
		clients = append(clients, c)
	}
	n.wsMu.Unlock()

	frame := map[string]any{
		"jsonrpc": "2.0",
		"id":      nil,
		"result": map[string]any{
			"contextId": n.ContextID,
			"type":      "StateMutation",
			"data":      map[string]any{"newRoot": time.Now().UnixNano()},
		},
	}
	for _, c := range clients {
		if !c.isSubscribed(n.ContextID) {
			continue
		}
		if err := c.write(frame); err != nil {
			n.log.Debug(context.Background(), "push failed", "error", err)
		}
	}
}

// Subscribers counts open connections subscribed to the node's context.
func (n *Node) Subscribers() int {
	n.wsMu.Lock()
	defer n.wsMu.Unlock()
	count := 0
	for c := range n.clients {
		if c.isSubscribed(n.ContextID) {
			count++
		}
	}
	return count
}

func (n *Node) closeClients() {
	n.wsMu.Lock()
	defer n.wsMu.Unlock()
	for c := range n.clients {
		_ = c.conn.Close()
	}
}
