package bus

import (
	"context"
	"sync"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/model"
)

// queue é uma fila FIFO sem limite. Publish nunca bloqueia, então um handler
// pode publicar de dentro do loop de dispatch sem travar o próprio loop.
type queue struct {
	mu     sync.Mutex
	items  []model.Event
	closed bool
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{signal: make(chan struct{}, 1)}
}

func (q *queue) push(e model.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, e)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// pop bloqueia até haver item; devolve false com a fila fechada e vazia ou ctx cancelado
func (q *queue) pop(ctx context.Context) (model.Event, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			e := q.items[0]
			q.items[0] = model.Event{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return e, true
		}
		if q.closed {
			q.mu.Unlock()
			return model.Event{}, false
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return model.Event{}, false
		case <-q.signal:
		}
	}
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
