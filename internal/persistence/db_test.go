package persistence

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/talgya/motel-sim/internal/billing"
	"github.com/talgya/motel-sim/internal/engine"
	"github.com/talgya/motel-sim/internal/geom"
	"github.com/talgya/motel-sim/internal/rooms"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "motelsim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testSnapshot() engine.Snapshot {
	room := rooms.New("Room 1",
		geom.BoundsFromCenter(geom.Vec3{X: 20, Y: 2, Z: 10}, geom.Vec3{X: 4, Y: 4, Z: 4}),
		[]rooms.Furniture{{Name: "bed", Price: 80}, {Name: "lamp", Price: 20}})
	room.Occupied = true
	room.Holder = "AI_1"

	return engine.Snapshot{
		RunID:    uuid.NewString(),
		Tick:     1234,
		Day:      2,
		Hour:     10,
		Minute:   15,
		EventSeq: 2,
		Rooms:    []rooms.Room{room},
		Events: []engine.Event{
			{Seq: 1, Tick: 10, Time: "Day 1, 09:00", Category: "spawn", Agent: "AI_1", Description: "AI_1 arrived (visit 1)"},
			{Seq: 2, Tick: 50, Time: "Day 1, 09:40", Category: "payment", Agent: "AI_1", Description: "AI_1 paid 100"},
		},
		Ledger: billing.Summary{
			Revenue: 100,
			Settled: 1,
			Payments: []billing.Payment{{
				ID: uuid.New(), Agent: "AI_1", Room: room.ID, Amount: 100,
				Opened: billing.Stamp{Tick: 20}, Paid: billing.Stamp{Tick: 50, Time: "Day 1, 09:40"},
			}},
		},
	}
}

func TestFreshDatabaseHasNoState(t *testing.T) {
	db := openTestDB(t)
	ok, err := db.HasState()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSaveAndLoadState(t *testing.T) {
	db := openTestDB(t)
	snap := testSnapshot()
	require.NoError(t, db.SaveState(snap))

	ok, err := db.HasState()
	require.NoError(t, err)
	require.True(t, ok)

	st, err := db.LoadState()
	require.NoError(t, err)
	require.Equal(t, uint64(1234), st.Tick)
	require.Equal(t, 2, st.Day)
	require.Equal(t, 10, st.Hour)
	require.Equal(t, 15, st.Minute)
	require.Equal(t, uint64(2), st.EventSeq)
	require.Equal(t, int64(100), st.Revenue)
	require.Equal(t, uint64(1), st.Settled)

	require.Len(t, st.Rooms, 1)
	r := st.Rooms[0]
	require.Equal(t, snap.Rooms[0].ID, r.ID)
	require.Equal(t, snap.Rooms[0].Bounds, r.Bounds)
	require.Equal(t, int64(100), r.Price)
	require.Len(t, r.Furniture, 2)
	require.False(t, r.Occupied)
	require.Empty(t, r.Holder)

	runID, err := db.GetMeta(MetaRunID)
	require.NoError(t, err)
	require.Equal(t, snap.RunID, runID)
}

func TestRepeatedSavesDoNotDuplicate(t *testing.T) {
	db := openTestDB(t)
	snap := testSnapshot()
	require.NoError(t, db.SaveState(snap))

	snap.Events = append(snap.Events, engine.Event{Seq: 3, Tick: 60, Time: "Day 1, 09:50", Category: "recycle", Description: "AI_1 left (returned)"})
	require.NoError(t, db.SaveState(snap))

	events, err := db.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, uint64(3), events[0].Seq)
	require.Equal(t, "recycle", events[0].Category)

	payments, err := db.Payments(10)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.Equal(t, int64(100), payments[0].Amount)
	require.Equal(t, "Day 1, 09:40", payments[0].PaidTime)

	list, err := db.LoadRooms()
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestOpenAppliesPragmas(t *testing.T) {
	db := openTestDB(t)

	var mode string
	require.NoError(t, db.conn.Get(&mode, "PRAGMA journal_mode"))
	require.Equal(t, "wal", mode)

	var timeout int
	require.NoError(t, db.conn.Get(&timeout, "PRAGMA busy_timeout"))
	require.Equal(t, 5000, timeout)
}
