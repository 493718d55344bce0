package mkr5

import (
	"sync"
	"time"
)

// PumpAddress is the 8-bit bus address of a pump, in [AddrMin, AddrMax].
type PumpAddress byte

const (
	AddrMin = PumpAddress(0x50)
	AddrMax = PumpAddress(0x6F)
)

// PumpID returns the zero-based pump id (addr - 0x50).
func (a PumpAddress) PumpID() int { return int(a) - int(AddrMin) }

// Valid reports whether a is within [AddrMin, AddrMax].
func (a PumpAddress) Valid() bool { return a >= AddrMin && a <= AddrMax }

// Side identifies one hydraulic lane of a two-lane dispenser.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// SideMapFunc maps a nozzle id (1..15) to a Side. Injectable per spec.md §3
// and §9 ("Side selection rule ... implementation-defined mapping").
type SideMapFunc func(nozzleID int) Side

// DefaultSideMap implements the two-hose default: odd ids take the left
// lane, even ids take the right lane.
func DefaultSideMap(nozzleID int) Side {
	if nozzleID%2 == 1 {
		return SideLeft
	}
	return SideRight
}

// FourHoseSideMap implements the {1,3->left, 2,4->right} mapping present in
// one original_source revision, for sites with four-hose dispensers.
func FourHoseSideMap(nozzleID int) Side {
	switch nozzleID {
	case 1, 3:
		return SideLeft
	case 2, 4:
		return SideRight
	}
	return DefaultSideMap(nozzleID)
}

// PumpStatus is the DC1 status code. Unknown codes are preserved via
// StatusUnknown rather than causing a parse failure (spec.md §3).
type PumpStatus struct {
	code    byte
	known   bool
}

var statusNames = map[byte]string{
	0x00: "NOT_PROGRAMMED",
	0x01: "RESET",
	0x02: "AUTHORIZED",
	0x03: "AUTHORIZED_SUSPENDED",
	0x04: "FILLING",
	0x05: "FILLING_COMPLETED",
	0x06: "MAX_REACHED",
	0x07: "SWITCHED_OFF",
}

var (
	StatusNotProgrammed      = PumpStatus{0x00, true}
	StatusReset              = PumpStatus{0x01, true}
	StatusAuthorized         = PumpStatus{0x02, true}
	StatusAuthorizedSuspended = PumpStatus{0x03, true}
	StatusFilling            = PumpStatus{0x04, true}
	StatusFillingCompleted   = PumpStatus{0x05, true}
	StatusMaxReached         = PumpStatus{0x06, true}
	StatusSwitchedOff        = PumpStatus{0x07, true}
)

// StatusUnknown wraps an undocumented DC1 code so dispatch never crashes.
func StatusUnknown(code byte) PumpStatus { return PumpStatus{code, false} }

// Code returns the raw DC1 status byte.
func (s PumpStatus) Code() byte { return s.code }

// IsUnknown reports whether this status fell outside the documented set.
func (s PumpStatus) IsUnknown() bool { return !s.known }

func (s PumpStatus) String() string {
	if name, ok := statusNames[s.code]; ok {
		return name
	}
	return "UNKNOWN"
}

func parseStatus(code byte) PumpStatus {
	if _, ok := statusNames[code]; ok {
		return PumpStatus{code, true}
	}
	return PumpStatus{code, false}
}

// SideState holds the per-lane fields spec.md §3 describes. Zero value is
// the state of a freshly discovered, never-filled side.
type SideState struct {
	Status       PumpStatus
	VolumeL      float64
	AmountCur    float64
	PresetVolL   *float64
	PresetAmtCur *float64
	NozzleTaken  bool
	NozzleID     *int
	Grade        *byte
	PriceCur     *float64
}

func (s *SideState) resetFillingFields() {
	s.VolumeL = 0
	s.AmountCur = 0
}

// PumpState is the per-address record in the State Store. mu guards every
// field below it: PumpMaster's dispatch path is the sole writer (holding
// mu for the duration of each handler), and stateStore.snapshot/list take
// a read lock to copy the record for a Control API caller, per spec.md
// §4.4's "read-write lock per record" recommendation.
type PumpState struct {
	Addr PumpAddress

	mu         sync.RWMutex
	Left       SideState
	Right      SideState
	GradeTable map[int]byte // nozzle id (1..15) -> grade byte
	LastSeen   time.Time
}

func newPumpState(addr PumpAddress) *PumpState {
	return &PumpState{
		Addr:       addr,
		GradeTable: make(map[int]byte),
	}
}

func (p *PumpState) side(s Side) *SideState {
	if s == SideRight {
		return &p.Right
	}
	return &p.Left
}

// copyLocked returns a deep copy of p's fields, safe to hand to a caller
// outside the dispatch path. Must be called with p.mu held (read or write).
func (p *PumpState) copyLocked() *PumpState {
	cp := &PumpState{
		Addr:       p.Addr,
		Left:       p.Left,
		Right:      p.Right,
		LastSeen:   p.LastSeen,
		GradeTable: make(map[int]byte, len(p.GradeTable)),
	}
	for k, v := range p.GradeTable {
		cp.GradeTable[k] = v
	}
	return cp
}

// Event is the open record spec.md §3 describes: absent fields mean "no
// change". Implemented as pointer-optional fields per §9's "Dynamic typing
// -> tagged variants" guidance (struct of options rather than a variant
// union, since most fields are independently optional here).
type Event struct {
	Addr        PumpAddress
	Side        *Side
	Status      *PumpStatus
	NozzleID    *int
	NozzleTaken *bool
	Grade       *byte
	PriceCur    *float64
	VolumeL     *float64
	AmountCur   *float64
}

func intp(v int) *int             { return &v }
func bytep(v byte) *byte          { return &v }
func f64p(v float64) *float64     { return &v }
func boolp(v bool) *bool          { return &v }
func sidep(v Side) *Side          { return &v }
func statusp(v PumpStatus) *PumpStatus { return &v }
