// Package billing keeps the room ledger: open charges recorded when a
// guest starts using a room and payments settled when they check out.
package billing

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/talgya/motel-sim/internal/rooms"
)

// maxPayments is the number of settled payments kept in memory.
const maxPayments = 1000

// Stamp is the simulation time a ledger entry was made.
type Stamp struct {
	Tick uint64 `json:"tick"`
	Time string `json:"time"`
}

// Charge is an open room charge.
type Charge struct {
	Agent  string       `json:"agent"`
	Room   rooms.RoomID `json:"room"`
	Amount int64        `json:"amount"`
	Opened Stamp        `json:"opened"`
}

// Payment is a settled charge.
type Payment struct {
	ID     uuid.UUID    `json:"id"`
	Agent  string       `json:"agent"`
	Room   rooms.RoomID `json:"room"`
	Amount int64        `json:"amount"`
	Opened Stamp        `json:"opened"`
	Paid   Stamp        `json:"paid"`
}

// Ledger tracks room usage and revenue. Safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	now      func() Stamp
	open     map[string]Charge
	payments []Payment
	revenue  int64
	settled  uint64
	dropped  uint64
}

// NewLedger creates a ledger; now stamps entries and may be nil.
func NewLedger(now func() Stamp) *Ledger {
	if now == nil {
		now = func() Stamp { return Stamp{} }
	}
	return &Ledger{now: now, open: make(map[string]Charge)}
}

// ReportUsageStart opens a charge for the room's price. A second report
// for the same agent replaces the first.
func (l *Ledger) ReportUsageStart(agentID string, room rooms.Room) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open[agentID] = Charge{Agent: agentID, Room: room.ID, Amount: room.Price, Opened: l.now()}
	slog.Debug("room usage started", "agent", agentID, "room", room.ID, "price", room.Price)
}

// ProcessPayment settles the agent's open charge and returns the amount,
// or 0 when nothing is open.
func (l *Ledger) ProcessPayment(agentID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.open[agentID]
	if !ok {
		return 0
	}
	delete(l.open, agentID)

	l.payments = append(l.payments, Payment{
		ID:     uuid.New(),
		Agent:  c.Agent,
		Room:   c.Room,
		Amount: c.Amount,
		Opened: c.Opened,
		Paid:   l.now(),
	})
	if len(l.payments) > maxPayments {
		l.payments = l.payments[len(l.payments)-maxPayments:]
	}
	l.revenue += c.Amount
	l.settled++
	return c.Amount
}

// DropUsage discards the agent's open charge without settling it, for
// guests who leave without checking out. Reports whether one was open.
func (l *Ledger) DropUsage(agentID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.open[agentID]
	if !ok {
		return false
	}
	delete(l.open, agentID)
	l.dropped++
	slog.Info("open charge dropped", "agent", agentID, "room", c.Room, "amount", c.Amount)
	return true
}

// Restore seeds revenue and settled count from a previous run.
func (l *Ledger) Restore(revenue int64, settled uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revenue = revenue
	l.settled = settled
}

// Summary is a point-in-time view of the ledger.
type Summary struct {
	Revenue  int64     `json:"revenue"`
	Settled  uint64    `json:"settled"`
	Dropped  uint64    `json:"dropped"` // Charges abandoned by guests who never checked out
	Open     []Charge  `json:"open"`
	Payments []Payment `json:"payments"`
}

// Summary returns the ledger totals with the last limit payments
// (all kept payments when limit <= 0).
func (l *Ledger) Summary(limit int) Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Summary{Revenue: l.revenue, Settled: l.settled, Dropped: l.dropped, Open: make([]Charge, 0, len(l.open))}
	for _, c := range l.open {
		s.Open = append(s.Open, c)
	}
	start := 0
	if limit > 0 && len(l.payments) > limit {
		start = len(l.payments) - limit
	}
	s.Payments = append([]Payment(nil), l.payments[start:]...)
	return s
}

// Revenue returns the total settled amount.
func (l *Ledger) Revenue() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.revenue
}
