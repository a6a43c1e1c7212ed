package steward

// Health holds derived diagnostic signals computed from a Snapshot.
type Health struct {
	RoomsFull    bool   // Every known room is held
	QueueFull    bool   // The counter turns guests away
	Idle         bool   // No guests and nothing pending inside the spawn window
	PoolDry      bool   // Activations are owed but the pool is empty
	NewDiscards  int    // Agents discarded since the previous cycle
	InSpawnHours bool   // Clock is between the first and last trigger hour
	Level        string // "CRITICAL", "WARNING", "WATCH", "HEALTHY"
}

// Triage computes a Health from the snapshot. prevDiscarded is the
// discard count seen on the previous cycle.
func Triage(snap *Snapshot, prevDiscarded int) *Health {
	st := snap.Status
	h := &Health{
		RoomsFull: st.Rooms > 0 && st.Occupied >= st.Rooms,
		QueueFull: snap.Counter.Capacity > 0 && st.Queue >= snap.Counter.Capacity,
		PoolDry:   st.Pooled == 0 && st.Pending > 0,
	}
	if st.Discarded > prevDiscarded {
		h.NewDiscards = st.Discarded - prevDiscarded
	}
	if n := len(st.Triggers); n > 0 {
		h.InSpawnHours = st.Hour >= st.Triggers[0] && st.Hour < st.Triggers[n-1]
	}
	h.Idle = h.InSpawnHours && st.Active == 0 && st.Pending == 0 && st.Pooled > 0

	switch {
	case h.NewDiscards > 0 || (h.RoomsFull && h.QueueFull):
		h.Level = "CRITICAL"
	case h.PoolDry || h.RoomsFull:
		h.Level = "WARNING"
	case h.Idle:
		h.Level = "WATCH"
	default:
		h.Level = "HEALTHY"
	}
	return h
}
