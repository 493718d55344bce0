package mkr5

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Timing defaults spec.md §4.3/§5 names.
const (
	DefaultPollInterval     = 250 * time.Millisecond
	DefaultStartupStepDelay = 50 * time.Millisecond
	DefaultNozzleCount      = 4
	DefaultPriceUnitCents   = 4500 // 45.00 in minor currency x100
)

// Config is the configuration snapshot spec.md §2 says the core needs:
// address range, poll interval, and the handful of protocol-level policy
// knobs spec.md §9 leaves as Open Questions.
type Config struct {
	AddrStart PumpAddress
	AddrEnd   PumpAddress

	PollInterval     time.Duration
	StartupStepDelay time.Duration
	TransactTimeout  time.Duration

	NozzleCount    int
	PriceUnitCents int

	SideMap SideMapFunc

	// LegacyAuthorizeByte, when true, emits DCC 0x01 for AUTHORIZE instead
	// of the documented 0x06 (spec.md §9's Open Question).
	LegacyAuthorizeByte bool

	EventQueueSize int
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.StartupStepDelay <= 0 {
		c.StartupStepDelay = DefaultStartupStepDelay
	}
	if c.TransactTimeout <= 0 {
		c.TransactTimeout = DefaultTransactTimeout
	}
	if c.NozzleCount <= 0 {
		c.NozzleCount = DefaultNozzleCount
	}
	if c.PriceUnitCents <= 0 {
		c.PriceUnitCents = DefaultPriceUnitCents
	}
	if c.SideMap == nil {
		c.SideMap = DefaultSideMap
	}
	if c.AddrEnd == 0 {
		c.AddrEnd = c.AddrStart
	}
}

func (c Config) validate() error {
	if c.AddrStart < AddrMin || c.AddrStart > AddrMax {
		return newError(KindConfigError, "addr_start out of range", nil)
	}
	if c.AddrEnd < c.AddrStart || c.AddrEnd > AddrMax {
		return newError(KindConfigError, "addr_end out of range", nil)
	}
	return nil
}

// PumpMaster is the protocol engine: scheduler, parameter discovery, DC
// dispatch, event emission (spec.md §4.3). It owns the state store and the
// event queue.
type PumpMaster struct {
	cfg       Config
	transport *Transport
	store     *stateStore
	events    *EventQueue
	log       *logrus.Entry

	mu             sync.Mutex
	lastNozzleSide map[PumpAddress]Side
	forcedSide     map[PumpAddress]Side // test-only override, see forceSideForTest

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	ioTimeouts    atomic.Uint64
	frameRejects  atomic.Uint64
}

// NewPumpMaster constructs a PumpMaster over transport. log may be nil.
func NewPumpMaster(transport *Transport, cfg Config, log *logrus.Entry) (*PumpMaster, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &PumpMaster{
		cfg:            cfg,
		transport:      transport,
		store:          newStateStore(),
		events:         NewEventQueue(cfg.EventQueueSize),
		log:            log.WithField("component", "pumpmaster"),
		lastNozzleSide: make(map[PumpAddress]Side),
		forcedSide:     make(map[PumpAddress]Side),
	}, nil
}

func (m *PumpMaster) addresses() []PumpAddress {
	out := make([]PumpAddress, 0, int(m.cfg.AddrEnd-m.cfg.AddrStart)+1)
	for a := m.cfg.AddrStart; a <= m.cfg.AddrEnd; a++ {
		out = append(out, a)
	}
	return out
}

func (m *PumpMaster) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Start runs the per-address startup sequence (price broadcast, RESET,
// RETURN_PUMP_PARAMS) followed by an initial RETURN_STATUS sweep so the
// state store is never empty right after startup (folded in from
// original_source's _initial_scan, see SPEC_FULL.md §3.2), then launches
// the round-robin poll loop in a goroutine. Start blocks until the
// startup sequence completes; the poll loop runs until ctx is canceled or
// Stop is called.
func (m *PumpMaster) Start(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return newError(KindConfigError, "pumpmaster already started", nil)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	for _, addr := range m.addresses() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.startupSequence(ctx, addr)
	}
	for _, addr := range m.addresses() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.pollOne(addr)
	}

	m.wg.Add(1)
	go m.pollLoop(loopCtx)
	return nil
}

// Stop cancels the poll loop and waits for it to exit. Idempotent.
func (m *PumpMaster) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *PumpMaster) startupSequence(ctx context.Context, addr PumpAddress) {
	priceBCD := encodePrice(float64(m.cfg.PriceUnitCents) / 100)
	payload := make([]byte, 0, 3*m.cfg.NozzleCount)
	for i := 0; i < m.cfg.NozzleCount; i++ {
		payload = append(payload, priceBCD...)
	}
	priceBlock := append([]byte{cd5PriceUpdate, byte(len(payload))}, payload...)
	if err := m.transport.Send(addr, [][]byte{priceBlock}); err != nil {
		m.log.WithField("addr", addr).WithError(err).Warn("price broadcast failed")
	}
	m.sleep(ctx, m.cfg.StartupStepDelay)

	if err := m.transport.Send(addr, [][]byte{{cd1Command, 0x01, DCCReset}}); err != nil {
		m.log.WithField("addr", addr).WithError(err).Warn("reset send failed")
	}
	m.sleep(ctx, m.cfg.StartupStepDelay)

	raw, err := m.transport.Transact(addr, [][]byte{{cd1Command, 0x01, DCCReturnPumpParams}}, m.cfg.TransactTimeout)
	if err != nil {
		m.log.WithField("addr", addr).WithError(err).Warn("pump params query failed")
	} else {
		m.dispatch(addr, raw)
	}
	m.sleep(ctx, m.cfg.StartupStepDelay)
}

// pollOne issues one RETURN_STATUS transaction for addr and dispatches the
// reply. The minimal correct poll loop relies on the pump to include
// DC2/DC3 transactions alongside DC1 in its response body (spec.md §4.3).
func (m *PumpMaster) pollOne(addr PumpAddress) {
	raw, err := m.transport.Transact(addr, [][]byte{{cd1Command, 0x01, DCCReturnStatus}}, m.cfg.TransactTimeout)
	if err != nil {
		m.log.WithField("addr", addr).WithError(err).Warn("poll transact failed")
		return
	}
	if len(raw) == 0 {
		m.ioTimeouts.Add(1)
		return
	}
	m.dispatch(addr, raw)
}

func (m *PumpMaster) pollLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		for _, addr := range m.addresses() {
			if ctx.Err() != nil {
				return
			}
			m.pollOne(addr)
			if !m.sleep(ctx, m.cfg.PollInterval) {
				return
			}
		}
	}
}

// dispatch classifies raw, splits its body into transactions, and handles
// each one in order (spec.md §5's per-pump ordering guarantee). When raw
// holds several back-to-back frames, it is cut at each STX-led frame's
// declared length and every piece is classified on its own, in order.
func (m *PumpMaster) dispatch(addr PumpAddress, raw []byte) {
	for {
		n := len(raw)
		if n >= 9 && raw[0] == stxByte && 9+int(raw[4]) < n {
			n = 9 + int(raw[4])
		}
		frame := Classify(raw[:n], ClassifyOptions{})
		raw = raw[n:]
		switch frame.Kind {
		case FrameReject:
			m.frameRejects.Add(1)
			m.log.WithField("addr", addr).WithField("reason", frame.RejectReason).Debug("frame rejected")
		case FrameData:
			for _, txn := range SplitTransactions(frame.Body) {
				m.handleTransaction(addr, txn)
			}
		}
		if len(raw) == 0 {
			return
		}
	}
}

func (m *PumpMaster) handleTransaction(addr PumpAddress, txn Transaction) {
	switch txn.Code {
	case dc1Status:
		m.handleStatus(addr, txn.Payload)
	case dc2Filling:
		m.handleFilling(addr, txn.Payload)
	case dc3Nozzle:
		m.handleNozzle(addr, txn.Payload)
	case dc7Params:
		m.handleParams(addr, txn.Payload)
	default:
		m.log.WithField("addr", addr).WithField("dc", txn.Code).Debug("unknown DC, dropped")
	}
}

func (m *PumpMaster) handleStatus(addr PumpAddress, payload []byte) {
	if len(payload) != 1 {
		m.log.WithField("addr", addr).Debug("DC1 bad payload length")
		return
	}
	status := parseStatus(payload[0])
	p := m.store.get(addr)

	p.mu.Lock()
	wasAuthorized := p.Left.Status == StatusAuthorized && p.Right.Status == StatusAuthorized
	p.Left.Status = status
	p.Right.Status = status
	if status == StatusAuthorized && !wasAuthorized {
		p.Left.resetFillingFields()
		p.Right.resetFillingFields()
	}
	p.LastSeen = time.Now()
	p.mu.Unlock()

	m.events.Push(Event{Addr: addr, Status: statusp(status)})
}

func (m *PumpMaster) sideForFilling(addr PumpAddress) Side {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.forcedSide[addr]; ok {
		return s
	}
	if s, ok := m.lastNozzleSide[addr]; ok {
		return s
	}
	return SideLeft
}

// forceSideForTest overrides the side DC2 attributes to, bypassing the
// most-recent-DC3 inference. Test-only hook (spec.md §9).
func (m *PumpMaster) forceSideForTest(addr PumpAddress, side Side) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forcedSide[addr] = side
}

func (m *PumpMaster) handleFilling(addr PumpAddress, payload []byte) {
	if len(payload) != 8 {
		m.log.WithField("addr", addr).Debug("DC2 bad payload length")
		return
	}
	volumeL, amountCur := decodeVolumeAmount(payload[0:4], payload[4:8])
	side := m.sideForFilling(addr)

	p := m.store.get(addr)
	p.mu.Lock()
	s := p.side(side)
	s.VolumeL = volumeL
	s.AmountCur = amountCur
	p.LastSeen = time.Now()
	p.mu.Unlock()

	m.events.Push(Event{
		Addr:      addr,
		Side:      sidep(side),
		VolumeL:   f64p(volumeL),
		AmountCur: f64p(amountCur),
	})
}

func (m *PumpMaster) handleNozzle(addr PumpAddress, payload []byte) {
	if len(payload) != 4 {
		m.log.WithField("addr", addr).Debug("DC3 bad payload length")
		return
	}
	price := decodePrice(payload[0:3])
	nozio := payload[3]
	nozzleID := int(nozio & 0x0F)
	taken := nozio&0x10 != 0
	side := m.cfg.SideMap(nozzleID)

	m.mu.Lock()
	m.lastNozzleSide[addr] = side
	m.mu.Unlock()

	p := m.store.get(addr)
	p.mu.Lock()
	s := p.side(side)
	s.NozzleTaken = taken
	s.NozzleID = intp(nozzleID)
	s.PriceCur = f64p(price)
	var grade *byte
	if g, ok := p.GradeTable[nozzleID]; ok {
		grade = bytep(g)
		s.Grade = grade
	}
	p.LastSeen = time.Now()
	p.mu.Unlock()

	m.events.Push(Event{
		Addr:        addr,
		Side:        sidep(side),
		NozzleID:    intp(nozzleID),
		NozzleTaken: boolp(taken),
		Grade:       grade,
		PriceCur:    f64p(price),
	})
}

func (m *PumpMaster) handleParams(addr PumpAddress, payload []byte) {
	if len(payload) < GradeTableOffset+15 {
		m.log.WithField("addr", addr).Debug("DC7 bad payload length")
		return
	}
	p := m.store.get(addr)
	p.mu.Lock()
	for i := 0; i < 15; i++ {
		grade := payload[GradeTableOffset+i]
		if grade == 0 {
			continue
		}
		p.GradeTable[i+1] = grade
	}
	p.LastSeen = time.Now()
	p.mu.Unlock()
}

// Authorize emits, in one frame: optional CD3 preset volume, optional CD4
// preset amount, then CD1 AUTHORIZE (spec.md §4.3). It is fire-and-forget;
// any resulting DC1 arrives on the next poll.
func (m *PumpMaster) Authorize(addr PumpAddress, volumeL, amountCur *float64) error {
	if !addr.Valid() {
		return notFound("unknown pump address")
	}
	var blocks [][]byte
	if volumeL != nil {
		if *volumeL <= 0 {
			return badRequest("volume must be > 0")
		}
		v := encodePresetVolume(*volumeL)
		blocks = append(blocks, append([]byte{cd3PresetVolume, byte(len(v))}, v...))
	}
	if amountCur != nil {
		if *amountCur <= 0 {
			return badRequest("amount must be > 0")
		}
		a := encodePresetAmount(*amountCur)
		blocks = append(blocks, append([]byte{cd4PresetAmount, byte(len(a))}, a...))
	}
	dcc := byte(DCCAuthorize)
	if m.cfg.LegacyAuthorizeByte {
		dcc = DCCAuthorizeLegacy
	}
	blocks = append(blocks, []byte{cd1Command, 0x01, dcc})

	if err := m.transport.Send(addr, blocks); err != nil {
		return serviceUnavailable(err.Error())
	}
	return nil
}

// Command sends a single CD1 block with the given DCC (RESET, STOP,
// SWITCH_OFF, AUTHORIZE, RETURN_*).
func (m *PumpMaster) Command(addr PumpAddress, dcc byte) error {
	if !addr.Valid() {
		return notFound("unknown pump address")
	}
	if err := m.transport.Send(addr, [][]byte{{cd1Command, 0x01, dcc}}); err != nil {
		return serviceUnavailable(err.Error())
	}
	return nil
}

// SetAllowedNozzles sends a CD2 allowed-nozzles list.
func (m *PumpMaster) SetAllowedNozzles(addr PumpAddress, ids []byte) error {
	if !addr.Valid() {
		return notFound("unknown pump address")
	}
	if len(ids) == 0 || len(ids) > 15 {
		return badRequest("ids must be 1..15 entries")
	}
	block := append([]byte{cd2AllowedNozzles, byte(len(ids))}, ids...)
	if err := m.transport.Send(addr, [][]byte{block}); err != nil {
		return serviceUnavailable(err.Error())
	}
	return nil
}

// DiscoverNozzles triggers RETURN_PUMP_PARAMS then RETURN_STATUS and
// returns the resulting grade_table snapshot.
func (m *PumpMaster) DiscoverNozzles(addr PumpAddress) (map[int]byte, error) {
	if !addr.Valid() {
		return nil, notFound("unknown pump address")
	}
	raw, err := m.transport.Transact(addr, [][]byte{{cd1Command, 0x01, DCCReturnPumpParams}}, m.cfg.TransactTimeout)
	if err != nil {
		return nil, serviceUnavailable(err.Error())
	}
	m.dispatch(addr, raw)
	m.pollOne(addr)

	p := m.store.snapshot(addr)
	if p == nil {
		return map[int]byte{}, nil
	}
	return p.GradeTable, nil
}

// ListPumps returns a snapshot of every observed pump (spec.md §4.5).
func (m *PumpMaster) ListPumps() []*PumpState {
	return m.store.list()
}

// PumpState returns a snapshot of one pump, or nil if never observed.
func (m *PumpMaster) PumpState(addr PumpAddress) *PumpState {
	return m.store.snapshot(addr)
}

// Events exposes the bounded event queue for a subscriber (spec.md §4.5).
func (m *PumpMaster) Events() *EventQueue {
	return m.events
}

// IOTimeouts returns the IoTimeout counter (spec.md §8 scenario S1).
func (m *PumpMaster) IOTimeouts() uint64 { return m.ioTimeouts.Load() }

// FrameRejects returns the FrameReject counter (spec.md §8 scenario S5).
func (m *PumpMaster) FrameRejects() uint64 { return m.frameRejects.Load() }
