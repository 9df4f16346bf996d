package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/bus"
	"github.com/radieske/crypto-bet-platform/pkg/contracts/events"
	"github.com/radieske/crypto-bet-platform/pkg/contracts/topics"
)

const (
	writeWait  = 2 * time.Second
	sendBuffer = 64 // mensagens pendentes por cliente antes de desconectá-lo
)

// Subscriber registra handlers no barramento
type Subscriber interface {
	Subscribe(eventType string, h bus.Handler)
}

// client tem uma fila própria; só a goroutine writePump escreve na conexão
// (gorilla/websocket aceita um único escritor por conexão)
type client struct {
	conn *websocket.Conn
	send chan any

	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn, buffer int) *client {
	return &client{conn: conn, send: make(chan any, buffer)}
}

// enqueue não bloqueia: false indica fila cheia (cliente lento) ou cliente encerrado
func (c *client) enqueue(v any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- v:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub gerencia conexões do dashboard e suas assinaturas por tópico
// subs: mapeia tópico para o conjunto de clientes inscritos
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[string]map[*client]struct{}
	buffer   int

	OnConnect    func() // métricas
	OnDisconnect func() // métricas
	OnSent       func() // métricas
}

// NewHub cria uma instância de Hub com política customizada de origem
func NewHub(allowOrigin func(r *http.Request) bool, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[string]map[*client]struct{}),
		buffer:   sendBuffer,
	}
}

// Subscribe conecta o hub diretamente ao barramento (instância única)
func (h *Hub) Subscribe(b Subscriber) {
	for _, t := range topics.All() {
		b.Subscribe(t, h.Handle)
	}
}

// Handle converte a mensagem do barramento e faz broadcast
func (h *Hub) Handle(ctx context.Context, msg bus.Message) error {
	u, err := NewUpdate(msg)
	if err != nil {
		return err
	}
	h.Broadcast(u)
	return nil
}

func NewUpdate(msg bus.Message) (Update, error) {
	raw, err := events.Encode(msg.Payload)
	if err != nil {
		return Update{}, err
	}
	return Update{Topic: msg.Type, EventID: msg.ID, Timestamp: msg.Timestamp, Payload: raw}, nil
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
// Permite subscribe/unsubscribe por tópico e responde a pings
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	c := newClient(conn, h.buffer)
	defer conn.Close()

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		h.writePump(c)
	}()

	if h.OnConnect != nil {
		h.OnConnect()
	}
	h.log.Debug("ws client connected", zap.String("remote", r.RemoteAddr))

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			h.mu.Lock()
			if _, ok := h.subs[msg.Topic]; !ok {
				h.subs[msg.Topic] = make(map[*client]struct{})
			}
			h.subs[msg.Topic][c] = struct{}{}
			h.mu.Unlock()
			c.enqueue(map[string]string{"type": "subscribed", "topic": msg.Topic})
		case "unsubscribe":
			h.remove(c, msg.Topic)
		case "ping":
			c.enqueue(map[string]string{"type": "pong"})
		}
	}

	// Remove o cliente de todas as assinaturas ao desconectar
	h.mu.Lock()
	for topic, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, topic)
		}
	}
	h.mu.Unlock()
	c.close()
	<-pumpDone

	if h.OnDisconnect != nil {
		h.OnDisconnect()
	}
	h.log.Debug("ws client disconnected", zap.String("remote", r.RemoteAddr))
}

// writePump envia a fila do cliente. Em erro de escrita fecha a conexão,
// o que encerra o loop de leitura, e descarta o resto da fila.
func (h *Hub) writePump(c *client) {
	for v := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(v); err != nil {
			h.log.Warn("ws write failed", zap.Error(err))
			_ = c.conn.Close()
			for range c.send {
			}
			return
		}
		if _, ok := v.(Update); ok && h.OnSent != nil {
			h.OnSent()
		}
	}
}

func (h *Hub) remove(c *client, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.subs[topic]; ok {
		delete(m, c)
		if len(m) == 0 {
			delete(h.subs, topic)
		}
	}
}

// Broadcast enfileira a atualização para os inscritos no tópico sem bloquear.
// Cliente com a fila cheia é desconectado.
func (h *Hub) Broadcast(u Update) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.subs[u.Topic]))
	for c := range h.subs[u.Topic] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(u) {
			h.log.Warn("ws client too slow, disconnecting", zap.String("remote", c.conn.RemoteAddr().String()))
			_ = c.conn.Close()
		}
	}
}

// Subscribers devolve quantos clientes estão inscritos no tópico
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}
