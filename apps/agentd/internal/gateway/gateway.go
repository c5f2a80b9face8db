// Package gateway exposes agent sessions over WebSocket. Each
// connection owns exactly one session: frames carry the same
// line-delimited JSON commands as the stdio transport, replies come
// back one frame per command.
package gateway

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"vaultpilot/agent"
	"vaultpilot/apps/agentd/internal/audit"
	"vaultpilot/apps/agentd/internal/manifest"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: Restrict in production
	},
}

// Connection represents a WebSocket client connection
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Session *agent.Session
	Gateway *Gateway
}

// Gateway manages WebSocket connections
type Gateway struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	registry    *manifest.Registry
	audit       audit.Service
}

// New creates a new Gateway instance
func New(registry *manifest.Registry, auditService audit.Service) *Gateway {
	return &Gateway{
		connections: make(map[string]*Connection),
		registry:    registry,
		audit:       auditService,
	}
}

// HandleWebSocket upgrades the request and binds a fresh session to
// the connection. The agent is picked with ?agent=<name>; unknown
// names fail before the upgrade so clients get a plain HTTP error.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	agentName := r.URL.Query().Get("agent")
	if agentName == "" {
		agentName = g.registry.DefaultAgent()
	}
	ev, err := g.registry.NewEvaluator(agentName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Gateway] Upgrade error: %v", err)
		return
	}

	connID := uuid.NewString()
	session := agent.NewSession(connID, agentName, ev, audit.NewRecorder(g.audit))

	c := &Connection{
		ID:      connID,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		Session: session,
		Gateway: g,
	}
	g.mu.Lock()
	g.connections[connID] = c
	g.mu.Unlock()

	log.Printf("[Gateway] Client connected: %s (agent=%s), total: %d", connID, agentName, g.count())

	go c.readPump()
	go c.writePump()
}

func (g *Gateway) count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.connections)
}

func (c *Connection) readPump() {
	defer func() {
		c.Gateway.removeConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(65536)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Gateway] Read error: %v", err)
			}
			break
		}

		if messageType == websocket.TextMessage {
			if !c.handleFrame(message) {
				break
			}
		}
	}
}

// handleFrame feeds one WebSocket frame through the session. A frame
// may batch several newline-delimited commands, the way a stdio
// client would pipe them; each command gets its own reply frame.
// Returns false when a reply cannot be queued: every command owes
// exactly one reply, so the connection is torn down rather than
// silently skipping one.
func (c *Connection) handleFrame(data []byte) bool {
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		resp := c.Session.Handle(agent.ParseLine(line))
		reply, err := json.Marshal(resp)
		if err != nil {
			log.Printf("[Gateway] Failed to marshal reply: %v", err)
			return false
		}

		select {
		case c.Send <- reply:
		default:
			// 客户端消费太慢，与其吞掉一条回复不如断开
			log.Printf("[Gateway] Send buffer full, closing: %s", c.ID)
			return false
		}
	}
	return true
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) removeConnection(c *Connection) {
	g.mu.Lock()
	delete(g.connections, c.ID)
	total := len(g.connections)
	g.mu.Unlock()

	snap := c.Session.Snapshot()
	log.Printf("[Gateway] Client disconnected: %s (inferences=%d, resets=%d, failures=%d), total: %d",
		c.ID, snap.Inferences, snap.Resets, snap.Failures, total)
}

// HandleAgents serves the agent catalog so clients can discover what
// this process hosts.
func (g *Gateway) HandleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	type agentItem struct {
		Name        string `json:"name"`
		Kind        string `json:"kind"`
		ObsDim      int    `json:"obs_dim"`
		ActionCount int    `json:"action_count"`
		Default     bool   `json:"default,omitempty"`
	}
	items := make([]agentItem, 0, len(g.registry.Names()))
	for _, name := range g.registry.Names() {
		e, ok := g.registry.Entry(name)
		if !ok {
			continue
		}
		items = append(items, agentItem{
			Name:        e.Name,
			Kind:        e.Kind,
			ObsDim:      e.ObsDim,
			ActionCount: e.ActionCount,
			Default:     e.Name == g.registry.DefaultAgent(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"agents": items})
}
