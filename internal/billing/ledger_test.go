package billing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talgya/motel-sim/internal/geom"
	"github.com/talgya/motel-sim/internal/rooms"
)

func room(price int64) rooms.Room {
	b := geom.BoundsFromCenter(geom.Vec3{X: 3, Y: 2, Z: 3}, geom.Vec3{X: 4, Y: 4, Z: 4})
	return rooms.New("Room 1", b, []rooms.Furniture{{Name: "bed", Price: price}})
}

func TestUsageThenPayment(t *testing.T) {
	tick := uint64(0)
	l := NewLedger(func() Stamp { tick++; return Stamp{Tick: tick, Time: "10:00"} })

	l.ReportUsageStart("AI_1", room(250))
	require.Len(t, l.Summary(0).Open, 1)

	require.EqualValues(t, 250, l.ProcessPayment("AI_1"))
	require.Zero(t, l.ProcessPayment("AI_1"), "nothing left open")

	s := l.Summary(0)
	require.EqualValues(t, 250, s.Revenue)
	require.EqualValues(t, 1, s.Settled)
	require.Empty(t, s.Open)
	require.Len(t, s.Payments, 1)
	require.Equal(t, "AI_1", s.Payments[0].Agent)
	require.EqualValues(t, 1, s.Payments[0].Opened.Tick)
	require.EqualValues(t, 2, s.Payments[0].Paid.Tick)
}

func TestPaymentWithoutUsageIsZero(t *testing.T) {
	l := NewLedger(nil)
	require.Zero(t, l.ProcessPayment("AI_9"))
	require.Empty(t, l.Summary(0).Payments)
}

func TestSummaryLimitAndRestore(t *testing.T) {
	l := NewLedger(nil)
	l.Restore(1000, 4)
	for i := 0; i < 5; i++ {
		l.ReportUsageStart("AI_1", room(10))
		l.ProcessPayment("AI_1")
	}
	s := l.Summary(2)
	require.Len(t, s.Payments, 2)
	require.EqualValues(t, 1050, s.Revenue)
	require.EqualValues(t, 9, s.Settled)
	require.NotEqual(t, s.Payments[0].ID, s.Payments[1].ID)
}

func TestDropUsageDiscardsOpenCharge(t *testing.T) {
	l := NewLedger(nil)
	l.ReportUsageStart("AI_1", room(300))

	require.True(t, l.DropUsage("AI_1"))
	require.False(t, l.DropUsage("AI_1"))
	require.Zero(t, l.ProcessPayment("AI_1"), "a later checkout owes nothing")

	s := l.Summary(0)
	require.Zero(t, s.Revenue)
	require.EqualValues(t, 1, s.Dropped)
	require.Empty(t, s.Open)
	require.Empty(t, s.Payments)
}
