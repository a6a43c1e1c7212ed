package steward

import "fmt"

// Action kinds.
const (
	ActionNone   = "none"
	ActionRescan = "rescan"
	ActionSpawn  = "spawn"
)

// Decision is the steward's choice for one cycle.
type Decision struct {
	Action    string `json:"action"`
	Rationale string `json:"rationale"`
	Count     int    `json:"count,omitempty"` // Spawn count; negative draws from the configured range
}

// Decide picks at most one intervention. Doing nothing is the usual
// outcome. The steward never recalls guests.
func Decide(snap *Snapshot, h *Health) Decision {
	st := snap.Status
	switch {
	case h.RoomsFull && h.QueueFull:
		return Decision{
			Action:    ActionRescan,
			Rationale: fmt.Sprintf("all %d rooms held and %d guests queued; looking for new rooms", st.Rooms, st.Queue),
		}
	case h.Idle && !h.RoomsFull:
		return Decision{
			Action:    ActionSpawn,
			Count:     -1,
			Rationale: fmt.Sprintf("no guests at %s inside spawn hours", st.Time),
		}
	case h.NewDiscards > 0:
		return Decision{
			Action:    ActionNone,
			Rationale: fmt.Sprintf("%d agent(s) discarded on activation; needs an operator", h.NewDiscards),
		}
	case h.PoolDry:
		return Decision{
			Action:    ActionNone,
			Rationale: fmt.Sprintf("pool empty with %d activation(s) owed; pool size is fixed", st.Pending),
		}
	}
	return Decision{Action: ActionNone, Rationale: "facility " + h.Level}
}
