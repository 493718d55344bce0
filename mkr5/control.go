package mkr5

// Controller is the adapter surface spec.md §4.5 describes: everything a
// host-side API layer (CLI, HTTP, gRPC, whatever the caller wires up) needs
// from the protocol engine, with malformed input and unknown addresses
// normalized into the BadRequest/NotFound/ServiceUnavailable taxonomy
// rather than raw transport errors.
type Controller interface {
	// ListPumps returns a snapshot of every pump observed so far.
	ListPumps() []*PumpState

	// Pump returns one pump's snapshot, or NotFound if never observed.
	Pump(addr PumpAddress) (*PumpState, error)

	// Preset authorizes addr with an optional preset volume and/or amount.
	// Both nil means a plain (unlimited) authorize.
	Preset(addr PumpAddress, volumeL, amountCur *float64) error

	// Command issues a bare CD1 DCC (RESET, STOP, SWITCH_OFF, ...).
	Command(addr PumpAddress, dcc byte) error

	// AllowedNozzles sends a CD2 allowed-nozzles list.
	AllowedNozzles(addr PumpAddress, ids []byte) error

	// DiscoverNozzles re-queries pump parameters and returns the grade table.
	DiscoverNozzles(addr PumpAddress) (map[int]byte, error)

	// Subscribe returns the shared event queue for long-poll/stream
	// consumers.
	Subscribe() *EventQueue
}

var _ Controller = (*PumpMaster)(nil)

// Pump returns a snapshot of one pump's state, or NotFound if addr has
// never been observed on the bus.
func (m *PumpMaster) Pump(addr PumpAddress) (*PumpState, error) {
	if !addr.Valid() {
		return nil, notFound("unknown pump address")
	}
	p := m.store.snapshot(addr)
	if p == nil {
		return nil, notFound("pump not yet observed")
	}
	return p, nil
}

// Preset is Controller's name for Authorize.
func (m *PumpMaster) Preset(addr PumpAddress, volumeL, amountCur *float64) error {
	return m.Authorize(addr, volumeL, amountCur)
}

// AllowedNozzles is Controller's name for SetAllowedNozzles.
func (m *PumpMaster) AllowedNozzles(addr PumpAddress, ids []byte) error {
	return m.SetAllowedNozzles(addr, ids)
}

// Subscribe returns the shared event queue.
func (m *PumpMaster) Subscribe() *EventQueue {
	return m.Events()
}
