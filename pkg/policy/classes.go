package policy

// PriorityClass is the QoS class assigned to an app group. Classes order
// by importance: CritInteractive outranks everything, Idle runs on
// whatever CPU is left over.
type PriorityClass int

const (
	Idle PriorityClass = iota + 1
	Background
	Normal
	Interactive
	CritInteractive
)

func (c PriorityClass) String() string {
	switch c {
	case CritInteractive:
		return "CRIT_INTERACTIVE"
	case Interactive:
		return "INTERACTIVE"
	case Normal:
		return "NORMAL"
	case Background:
		return "BACKGROUND"
	case Idle:
		return "IDLE"
	default:
		return "UNKNOWN"
	}
}

// ParseClass converts the wire/log representation back to a class.
func ParseClass(s string) (PriorityClass, bool) {
	switch s {
	case "CRIT_INTERACTIVE":
		return CritInteractive, true
	case "INTERACTIVE":
		return Interactive, true
	case "NORMAL":
		return Normal, true
	case "BACKGROUND":
		return Background, true
	case "IDLE":
		return Idle, true
	default:
		return 0, false
	}
}

// Rank returns the importance of the class, 5 (highest) down to 1.
func (c PriorityClass) Rank() int { return int(c) }

// IONice identifies a Linux IO scheduling class and the priority level
// within it. Class 1 is realtime, 2 best-effort (levels 0-7), 3 idle.
type IONice struct {
	Class int
	Level int
}

// Params are the concrete knob values a class maps to.
type Params struct {
	Nice        int
	LatencyNice int
	IONice      IONice
	CPUWeight   uint32 // cgroup v2 cpu.weight
}

// Params returns the knob values for the class. Nice stays within
// -8..+10 even though the kernel allows -20..+19; the extremes are
// reserved for the administrator.
func (c PriorityClass) Params() Params {
	switch c {
	case CritInteractive:
		return Params{Nice: -8, LatencyNice: -15, IONice: IONice{Class: 2, Level: 0}, CPUWeight: 200}
	case Interactive:
		return Params{Nice: -4, LatencyNice: -10, IONice: IONice{Class: 2, Level: 2}, CPUWeight: 150}
	case Background:
		return Params{Nice: 5, LatencyNice: 10, IONice: IONice{Class: 2, Level: 6}, CPUWeight: 50}
	case Idle:
		return Params{Nice: 10, LatencyNice: 15, IONice: IONice{Class: 3, Level: 0}, CPUWeight: 25}
	default:
		return Params{Nice: 0, LatencyNice: 0, IONice: IONice{Class: 2, Level: 4}, CPUWeight: 100}
	}
}
