package worker

import (
	"fmt"
	"log"
	"sync"
	"time"

	"paperbot/internal/model"
)

// Event is a single entry published to buffer subscribers.
type Event struct {
	Kind   string             `json:"kind"` // "log", "trade" or "equity"
	Log    string             `json:"log,omitempty"`
	Trade  *model.Trade       `json:"trade,omitempty"`
	Equity *model.EquityPoint `json:"equity,omitempty"`
}

// Buffers holds the append-only run history of the live worker: log lines,
// executed trades and equity samples. Readers get snapshots; subscribers get
// a live event feed. A full subscriber channel drops events so a slow
// consumer never blocks the worker.
type Buffers struct {
	mu     sync.RWMutex
	logs   []string
	trades []model.Trade
	equity []model.EquityPoint
	subs   []chan Event
}

// NewBuffers creates empty run buffers.
func NewBuffers() *Buffers {
	return &Buffers{}
}

// AppendLog records a formatted log line with a timestamp prefix and
// publishes it to subscribers.
func (b *Buffers) AppendLog(format string, args ...any) {
	line := time.Now().UTC().Format("2006-01-02 15:04:05") + " " + fmt.Sprintf(format, args...)
	b.mu.Lock()
	b.logs = append(b.logs, line)
	b.mu.Unlock()
	b.publish(Event{Kind: "log", Log: line})
}

// AppendTrade records an executed trade.
func (b *Buffers) AppendTrade(t model.Trade) {
	b.mu.Lock()
	b.trades = append(b.trades, t)
	b.mu.Unlock()
	tc := t
	b.publish(Event{Kind: "trade", Trade: &tc})
}

// AppendEquity records an equity sample.
func (b *Buffers) AppendEquity(p model.EquityPoint) {
	b.mu.Lock()
	b.equity = append(b.equity, p)
	b.mu.Unlock()
	pc := p
	b.publish(Event{Kind: "equity", Equity: &pc})
}

// Logs returns up to the last n log lines, oldest first.
func (b *Buffers) Logs(n int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string(nil), tail(b.logs, n)...)
}

// Trades returns a snapshot of all recorded trades.
func (b *Buffers) Trades() []model.Trade {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]model.Trade(nil), b.trades...)
}

// Equity returns a snapshot of all equity samples.
func (b *Buffers) Equity() []model.EquityPoint {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]model.EquityPoint(nil), b.equity...)
}

// Subscribe returns a new event channel with the given buffer capacity.
func (b *Buffers) Subscribe(capacity int) <-chan Event {
	ch := make(chan Event, capacity)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a previously subscribed channel.
func (b *Buffers) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

func (b *Buffers) publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for i, sub := range b.subs {
		select {
		case sub <- ev:
		default:
			log.Printf("[buffers] subscriber %d full, dropping %s event", i, ev.Kind)
		}
	}
}

func tail(s []string, n int) []string {
	if n <= 0 || n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}
