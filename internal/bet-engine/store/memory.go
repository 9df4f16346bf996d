package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/crypto-bet-platform/internal/bet-engine/model"
)

const DefaultReplicaLag = 50 * time.Millisecond

// syncTask é uma cópia de registro aguardando aplicação na réplica
type syncTask struct {
	user *model.User
	bet  *model.Bet
	due  time.Time
}

// Memory implementa Store em memória com réplica atrasada.
// Um único worker consome a fila de sincronização e aplica as cópias
// na réplica depois do lag configurado.
type Memory struct {
	log *zap.Logger
	lag time.Duration
	now func() time.Time

	mu       sync.RWMutex
	users    map[string]model.User
	bets     map[string]model.Bet
	prices   map[model.Asset][]model.CryptoPrice
	events   []model.Event
	eventIdx map[string]int

	replicaUsers map[string]model.User
	replicaBets  map[string]model.Bet

	syncMu sync.RWMutex
	closed bool
	syncCh chan syncTask
	flush  chan struct{}
	done   chan struct{}
}

// NewMemory cria o store e inicia o worker de réplica.
// lag negativo usa DefaultReplicaLag.
func NewMemory(lag time.Duration, log *zap.Logger) *Memory {
	if lag < 0 {
		lag = DefaultReplicaLag
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Memory{
		log:          log,
		lag:          lag,
		now:          time.Now,
		users:        make(map[string]model.User),
		bets:         make(map[string]model.Bet),
		prices:       make(map[model.Asset][]model.CryptoPrice),
		eventIdx:     make(map[string]int),
		replicaUsers: make(map[string]model.User),
		replicaBets:  make(map[string]model.Bet),
		syncCh:       make(chan syncTask, 1024),
		flush:        make(chan struct{}),
		done:         make(chan struct{}),
	}
	go m.replicate()
	return m
}

func (m *Memory) WriteUser(ctx context.Context, u model.User) error {
	release, err := m.acquire()
	if err != nil {
		return err
	}
	defer release()
	m.mu.Lock()
	m.users[u.ID] = u.Clone()
	m.mu.Unlock()
	m.sendUser(u)
	return nil
}

func (m *Memory) WriteBet(ctx context.Context, b model.Bet) error {
	release, err := m.acquire()
	if err != nil {
		return err
	}
	defer release()
	m.mu.Lock()
	m.bets[b.ID] = b.Clone()
	m.mu.Unlock()
	m.sendBet(b)
	return nil
}

func (m *Memory) WritePrice(ctx context.Context, p model.CryptoPrice) error {
	if m.isClosed() {
		return ErrClosed
	}
	m.mu.Lock()
	m.prices[p.Asset] = append(m.prices[p.Asset], p)
	m.mu.Unlock()
	return nil
}

func (m *Memory) WriteEvent(ctx context.Context, e model.Event) error {
	if m.isClosed() {
		return ErrClosed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// log append-only: id repetido não sobrescreve (processed nunca volta a false)
	if _, ok := m.eventIdx[e.ID]; ok {
		return nil
	}
	m.eventIdx[e.ID] = len(m.events)
	m.events = append(m.events, e.Clone())
	return nil
}

func (m *Memory) ReadUser(ctx context.Context, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.replicaUsers[id]
	if !ok {
		return nil, nil
	}
	u = u.Clone()
	return &u, nil
}

func (m *Memory) ReadBet(ctx context.Context, id string) (*model.Bet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.replicaBets[id]
	if !ok {
		return nil, nil
	}
	b = b.Clone()
	return &b, nil
}

func (m *Memory) ReadBetsByUser(ctx context.Context, userID string) ([]model.Bet, error) {
	m.mu.RLock()
	out := make([]model.Bet, 0)
	for _, b := range m.replicaBets {
		if b.UserID == userID {
			out = append(out, b.Clone())
		}
	}
	m.mu.RUnlock()
	sortBets(out)
	return out, nil
}

func (m *Memory) ReadBetsByAsset(ctx context.Context, asset model.Asset, status model.BetStatus) ([]model.Bet, error) {
	m.mu.RLock()
	out := make([]model.Bet, 0)
	for _, b := range m.replicaBets {
		if b.Asset == asset && b.Status == status {
			out = append(out, b.Clone())
		}
	}
	m.mu.RUnlock()
	sortBets(out)
	return out, nil
}

func (m *Memory) ReadLatestPrice(ctx context.Context, asset model.Asset) (*model.CryptoPrice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	series := m.prices[asset]
	if len(series) == 0 {
		return nil, nil
	}
	p := series[len(series)-1]
	return &p, nil
}

func (m *Memory) ReadPendingEvents(ctx context.Context) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Event, 0)
	for _, e := range m.events {
		if !e.Processed {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (m *Memory) UpdateBetStatus(ctx context.Context, id string, status model.BetStatus) error {
	release, err := m.acquire()
	if err != nil {
		return err
	}
	defer release()
	m.mu.Lock()
	b, ok := m.bets[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	b.SetStatus(status, m.now().UTC())
	m.bets[id] = b
	m.mu.Unlock()
	m.sendBet(b)
	return nil
}

func (m *Memory) MarkEventProcessed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.eventIdx[id]; ok {
		m.events[i].Processed = true
	}
	return nil
}

func (m *Memory) LoadBet(ctx context.Context, id string) (*model.Bet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bets[id]
	if !ok {
		return nil, nil
	}
	b = b.Clone()
	return &b, nil
}

func (m *Memory) TransitionBet(ctx context.Context, id string, from, to model.BetStatus) (bool, error) {
	release, err := m.acquire()
	if err != nil {
		return false, err
	}
	defer release()
	m.mu.Lock()
	b, ok := m.bets[id]
	if !ok || b.Status != from {
		m.mu.Unlock()
		return false, nil
	}
	b.SetStatus(to, m.now().UTC())
	m.bets[id] = b
	m.mu.Unlock()
	m.sendBet(b)
	return true, nil
}

func (m *Memory) AdjustBalance(ctx context.Context, userID string, delta decimal.Decimal) (*model.User, error) {
	release, err := m.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	m.mu.Lock()
	u, ok := m.users[userID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrUserNotFound
	}
	next := u.Balance.Add(delta)
	if next.IsNegative() {
		m.mu.Unlock()
		return nil, ErrInsufficientBalance
	}
	u.Balance = next
	u.LastActivity = m.now().UTC()
	m.users[userID] = u
	m.mu.Unlock()

	m.sendUser(u)
	out := u.Clone()
	return &out, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	if m.isClosed() {
		return ErrClosed
	}
	return nil
}

// Close encerra a fila de sincronização e aplica imediatamente o que estiver pendente.
func (m *Memory) Close() error {
	m.syncMu.Lock()
	if m.closed {
		m.syncMu.Unlock()
		return nil
	}
	m.closed = true
	close(m.flush)
	close(m.syncCh)
	m.syncMu.Unlock()

	<-m.done
	return nil
}

func (m *Memory) isClosed() bool {
	m.syncMu.RLock()
	defer m.syncMu.RUnlock()
	return m.closed
}

// acquire impede o Close durante uma escrita no primário: ou a escrita
// acontece inteira (primário + fila da réplica) ou nada muda.
func (m *Memory) acquire() (release func(), err error) {
	m.syncMu.RLock()
	if m.closed {
		m.syncMu.RUnlock()
		return nil, ErrClosed
	}
	return m.syncMu.RUnlock, nil
}

// sendUser e sendBet exigem acquire ativo
func (m *Memory) sendUser(u model.User) {
	c := u.Clone()
	m.send(syncTask{user: &c})
}

func (m *Memory) sendBet(b model.Bet) {
	c := b.Clone()
	m.send(syncTask{bet: &c})
}

func (m *Memory) send(t syncTask) {
	t.due = m.now().Add(m.lag)
	m.syncCh <- t
}

// replicate é o worker de réplica; roda até Close esvaziar a fila
func (m *Memory) replicate() {
	defer close(m.done)
	for t := range m.syncCh {
		if wait := time.Until(t.due); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-m.flush:
				timer.Stop()
			}
		}
		m.apply(t)
	}
	m.log.Debug("replica worker stopped")
}

func (m *Memory) apply(t syncTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.user != nil {
		m.replicaUsers[t.user.ID] = *t.user
	}
	if t.bet != nil {
		m.replicaBets[t.bet.ID] = *t.bet
	}
}

func sortBets(bets []model.Bet) {
	sort.Slice(bets, func(i, j int) bool {
		if bets[i].CreatedAt.Equal(bets[j].CreatedAt) {
			return bets[i].ID < bets[j].ID
		}
		return bets[i].CreatedAt.Before(bets[j].CreatedAt)
	})
}
