package bus

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/model"
	"github.com/radieske/crypto-bet-platform/pkg/contracts/events"
)

var (
	ErrClosed       = errors.New("event bus closed")
	ErrHandlerPanic = errors.New("handler panic")
)

// Message é o evento já decodificado entregue aos handlers
type Message struct {
	ID        string
	Type      string
	Timestamp time.Time
	Payload   events.Payload
}

// Handler processa um evento. Pode ser chamado mais de uma vez para o mesmo
// evento (replay), então precisa ser idempotente.
type Handler func(ctx context.Context, msg Message) error

// EventLog é a parte do store usada pelo barramento
type EventLog interface {
	WriteEvent(ctx context.Context, e model.Event) error
	MarkEventProcessed(ctx context.Context, id string) error
	ReadPendingEvents(ctx context.Context) ([]model.Event, error)
}

// FailureSink recebe eventos cujo dispatch falhou (ex.: DLQ no Kafka)
type FailureSink interface {
	HandleFailure(ctx context.Context, e model.Event, cause error) error
}

// Bus persiste cada evento antes de entregá-lo e despacha numa única goroutine,
// na ordem de publicação. Handlers do mesmo tipo rodam na ordem de registro.
type Bus struct {
	log   *zap.Logger
	store EventLog
	queue *queue

	mu       sync.RWMutex
	handlers map[string][]Handler

	dispatchMu sync.Mutex
	closed     atomic.Bool

	Sink FailureSink

	OnPublished    func(eventType string) // métricas
	OnDispatched   func(eventType string) // métricas
	OnHandlerError func(eventType string) // métricas
}

func New(store EventLog, log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		log:      log,
		store:    store,
		queue:    newQueue(),
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registra um handler para o tipo de evento
func (b *Bus) Subscribe(eventType string, h Handler) {
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], h)
	b.mu.Unlock()
}

// Publish grava o evento no log e só então o coloca na fila de dispatch.
// Retorna o id sem esperar pelos handlers.
func (b *Bus) Publish(ctx context.Context, p events.Payload) (string, error) {
	if b.closed.Load() {
		return "", ErrClosed
	}

	raw, err := events.Encode(p)
	if err != nil {
		return "", err
	}

	e := model.Event{
		ID:        uuid.NewString(),
		Type:      p.EventType(),
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}
	if err := b.store.WriteEvent(ctx, e); err != nil {
		return "", fmt.Errorf("persist event %s: %w", e.Type, err)
	}
	if err := b.queue.push(e); err != nil {
		// já está no log; o replay da próxima subida entrega
		return "", err
	}

	if b.OnPublished != nil {
		b.OnPublished(e.Type)
	}
	b.log.Debug("event published", zap.String("event_id", e.ID), zap.String("event_type", e.Type))
	return e.ID, nil
}

// Run consome a fila até o contexto acabar ou Close esvaziar a fila
func (b *Bus) Run(ctx context.Context) error {
	b.log.Info("event bus dispatch loop started")
	for {
		e, ok := b.queue.pop(ctx)
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			b.log.Info("event bus dispatch loop stopped")
			return nil
		}
		b.dispatch(ctx, e)
	}
}

// ReplayEvents reentrega, na ordem do log, todo evento ainda não processado.
// Deve rodar antes de Run numa subida; handlers precisam ser idempotentes.
func (b *Bus) ReplayEvents(ctx context.Context) (int, error) {
	pending, err := b.store.ReadPendingEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("read pending events: %w", err)
	}
	for _, e := range pending {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		b.dispatch(ctx, e)
	}
	if len(pending) > 0 {
		b.log.Info("events replayed", zap.Int("count", len(pending)))
	}
	return len(pending), nil
}

// Close para de aceitar publicações; Run termina depois de esvaziar a fila
func (b *Bus) Close() {
	if b.closed.CompareAndSwap(false, true) {
		b.queue.close()
	}
}

// Pending devolve quantos eventos aguardam dispatch
func (b *Bus) Pending() int { return b.queue.len() }

func (b *Bus) dispatch(ctx context.Context, e model.Event) {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	if err := b.deliver(ctx, e); err != nil {
		b.fail(ctx, e, err)
	}

	// processado mesmo com falha: o erro já foi reportado
	if err := b.store.MarkEventProcessed(ctx, e.ID); err != nil {
		b.log.Error("mark event processed failed", zap.String("event_id", e.ID), zap.Error(err))
	}
	if b.OnDispatched != nil {
		b.OnDispatched(e.Type)
	}
}

func (b *Bus) deliver(ctx context.Context, e model.Event) error {
	payload, err := events.Decode(e.Type, e.Payload)
	if err != nil {
		return err
	}

	msg := Message{ID: e.ID, Type: e.Type, Timestamp: e.Timestamp, Payload: payload}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[e.Type]...)
	b.mu.RUnlock()

	var errs []error
	for i, h := range handlers {
		if err := invoke(ctx, h, msg); err != nil {
			errs = append(errs, fmt.Errorf("handler %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) fail(ctx context.Context, e model.Event, err error) {
	b.log.Error("event handler failed",
		zap.String("event_id", e.ID),
		zap.String("event_type", e.Type),
		zap.Error(err),
	)
	if b.OnHandlerError != nil {
		b.OnHandlerError(e.Type)
	}
	if b.Sink == nil {
		return
	}
	if sinkErr := b.Sink.HandleFailure(ctx, e, err); sinkErr != nil {
		b.log.Warn("failure sink rejected event", zap.String("event_id", e.ID), zap.Error(sinkErr))
	}
}

func invoke(ctx context.Context, h Handler, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrHandlerPanic, r, debug.Stack())
		}
	}()
	return h(ctx, msg)
}
