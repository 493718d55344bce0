package mkr5

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBcdDecodeEncodeRoundTrip(t *testing.T) {
	encoded := bcdEncode(12345, 3)
	assert.Equal(t, []byte{0x01, 0x23, 0x45}, encoded)
	assert.Equal(t, uint64(12345), bcdDecode(encoded))
}

func TestBcdDecodeInvalidNibbleYieldsZero(t *testing.T) {
	assert.Equal(t, uint64(0), bcdDecode([]byte{0xAB, 0x12}))
}

func TestDecodeVolumeAmount(t *testing.T) {
	volBCD := bcdEncode(12500, 4)  // 12.500 L
	amtBCD := bcdEncode(456700, 4) // 4567.00 currency, x100 scale per field

	vol, amt := decodeVolumeAmount(volBCD, amtBCD)
	assert.InDelta(t, 12.5, vol, 0.0001)
	assert.InDelta(t, 4567.0, amt, 0.0001)
}

func TestDecodeEncodePriceRoundTrip(t *testing.T) {
	enc := encodePrice(45.67)
	assert.InDelta(t, 45.67, decodePrice(enc), 0.001)
}

func TestEncodePresetVolumeAndAmount(t *testing.T) {
	vol := encodePresetVolume(20.5)
	assert.Len(t, vol, 4)

	amt := encodePresetAmount(100.25)
	assert.Len(t, amt, 4)
}
