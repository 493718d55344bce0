package mkr5

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportTransactReturnsReply(t *testing.T) {
	ep := newMockEndpoint()
	tr := NewTransport(ep, 5*time.Millisecond, nil)

	reply := BuildFrame(AddrMin, 0x00, [][]byte{{dc1Status, 0x01, 0x02}})
	ep.enqueueReply(reply)

	got, err := tr.Transact(AddrMin, [][]byte{{cd1Command, 0x01, DCCReturnStatus}}, 200*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, reply, got)
}

func TestTransportTransactTimesOutWithoutError(t *testing.T) {
	ep := newMockEndpoint()
	tr := NewTransport(ep, 2*time.Millisecond, nil)

	got, err := tr.Transact(AddrMin, [][]byte{{cd1Command, 0x01, DCCReturnStatus}}, 15*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTransportTogglesSequenceBit(t *testing.T) {
	ep := newMockEndpoint()
	tr := NewTransport(ep, 2*time.Millisecond, nil)

	_, _ = tr.Transact(AddrMin, [][]byte{{cd1Command, 0x01, DCCReturnStatus}}, 10*time.Millisecond)
	first := ep.lastWrite()
	_, _ = tr.Transact(AddrMin, [][]byte{{cd1Command, 0x01, DCCReturnStatus}}, 10*time.Millisecond)
	second := ep.lastWrite()

	require.Len(t, first, len(second))
	assert.NotEqual(t, first[3], second[3], "sequence byte should toggle between transactions")
}

func TestTransportStripsEcho(t *testing.T) {
	ep := newMockEndpoint()
	tr := NewTransport(ep, 2*time.Millisecond, nil)

	outbound := BuildFrame(AddrMin, 0x00, [][]byte{{cd1Command, 0x01, DCCReturnStatus}})
	reply := BuildFrame(AddrMin, 0x00, [][]byte{{dc1Status, 0x01, 0x02}})
	ep.enqueueReply(append(append([]byte(nil), outbound...), reply...))

	got, err := tr.Transact(AddrMin, [][]byte{{cd1Command, 0x01, DCCReturnStatus}}, 200*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, reply, got)
}

func TestTransportTransactReturnsWithinGapNotFullTimeout(t *testing.T) {
	ep := newMockEndpoint()
	gap := 10 * time.Millisecond
	tr := NewTransport(ep, gap, nil)

	reply := BuildFrame(AddrMin, 0x00, [][]byte{{dc1Status, 0x01, 0x02}})
	ep.enqueueReply(reply)

	start := time.Now()
	got, err := tr.Transact(AddrMin, [][]byte{{cd1Command, 0x01, DCCReturnStatus}}, 500*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, reply, got)
	assert.Less(t, elapsed, 200*time.Millisecond, "a complete reply should return within a few GAPs, not the full transact timeout")
}

func TestTransportMarksDeadOnReadError(t *testing.T) {
	ep := newMockEndpoint()
	ep.readErr = assertErr{}
	tr := NewTransport(ep, 2*time.Millisecond, nil)

	_, err := tr.Transact(AddrMin, [][]byte{{cd1Command, 0x01, DCCReturnStatus}}, 10*time.Millisecond)
	assert.Error(t, err)
	assert.True(t, tr.Dead())
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
