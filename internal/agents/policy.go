package agents

import "github.com/talgya/motel-sim/internal/entropy"

// Schedule holds the band boundaries of the facility day.
type Schedule struct {
	DayStart    int `yaml:"day_start"`    // Facility open; night band starts
	ReportStart int `yaml:"report_start"` // Checkout band starts
	ActiveStart int `yaml:"active_start"` // Daytime band starts
	Close       int `yaml:"close"`        // Evening band starts; hard despawn hour
}

// DefaultSchedule returns the 0/9/11/17 day.
func DefaultSchedule() Schedule {
	return Schedule{DayStart: 0, ReportStart: 9, ActiveStart: 11, Close: 17}
}

// Weighted is one branch of a decision.
type Weighted struct {
	State State   `json:"state"`
	P     float64 `json:"p"`
}

// Conditions are the inputs of one policy decision.
type Conditions struct {
	Hour             int
	Minute           int
	HoldsRoom        bool
	UsingRoom        bool
	CounterReachable bool
}

// Policy maps the time of day to the next agent behavior.
type Policy struct {
	Schedule Schedule
}

// HardDespawn reports whether hour:minute is the forced close instant.
func (p Policy) HardDespawn(hour, minute int) bool {
	return hour == p.Schedule.Close && minute == 0
}

// ReevaluationHour reports whether agents re-decide at the top of hour:
// every hour of the daytime band plus the four band boundaries.
func (p Policy) ReevaluationHour(hour int) bool {
	s := p.Schedule
	if hour >= s.ActiveStart && hour < s.Close {
		return true
	}
	return hour == s.DayStart || hour == s.ReportStart || hour == s.ActiveStart || hour == s.Close
}

// InReportBand reports whether hour falls in the checkout band.
func (p Policy) InReportBand(hour int) bool {
	return hour >= p.Schedule.ReportStart && hour < p.Schedule.ActiveStart
}

// Distribution returns the weighted outcomes for c. Bands are exclusive
// and exhaustive; the first matching row wins.
func (p Policy) Distribution(c Conditions) []Weighted {
	s := p.Schedule

	if p.HardDespawn(c.Hour, c.Minute) && !c.UsingRoom {
		return []Weighted{{StateReturningToSpawn, 1}}
	}

	switch {
	case c.Hour >= s.DayStart && c.Hour < s.ReportStart:
		if c.HoldsRoom {
			return []Weighted{{StateRoomWandering, 1}}
		}
		return FallbackDistribution(c.CounterReachable)

	case c.Hour >= s.ReportStart && c.Hour < s.ActiveStart:
		if c.HoldsRoom {
			return []Weighted{{StateReportingRoomQueue, 1}}
		}
		return FallbackDistribution(c.CounterReachable)

	case c.Hour >= s.ActiveStart && c.Hour < s.Close:
		if c.HoldsRoom {
			return []Weighted{{StateWandering, 0.5}, {StateRoomWandering, 0.5}}
		}
		return []Weighted{{StateMovingToQueue, 0.2}, {StateWandering, 0.6}, {StateReturningToSpawn, 0.2}}

	default:
		if c.HoldsRoom {
			return []Weighted{{StateWandering, 0.5}, {StateRoomWandering, 0.5}}
		}
		return FallbackDistribution(c.CounterReachable)
	}
}

// Decide draws the next state for c.
func (p Policy) Decide(c Conditions, rng entropy.Source) State {
	return Sample(p.Distribution(c), rng)
}

// FallbackDistribution is the default behavior when no band rule applies
// or the counter cannot be reached.
func FallbackDistribution(counterReachable bool) []Weighted {
	if !counterReachable {
		return []Weighted{{StateWandering, 0.5}, {StateReturningToSpawn, 0.5}}
	}
	return []Weighted{{StateWandering, 0.4}, {StateMovingToQueue, 0.6}}
}

// Fallback draws from FallbackDistribution.
func Fallback(counterReachable bool, rng entropy.Source) State {
	return Sample(FallbackDistribution(counterReachable), rng)
}

// Sample picks one outcome by a single uniform draw.
func Sample(ws []Weighted, rng entropy.Source) State {
	r := rng.Float64()
	acc := 0.0
	for _, w := range ws {
		acc += w.P
		if r < acc {
			return w.State
		}
	}
	return ws[len(ws)-1].State
}
