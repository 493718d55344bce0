package mkr5

import "encoding/binary"

// bcdDecode decodes a packed-BCD, MSB-first field (spec.md §6) into an
// integer. A nibble greater than 9 anywhere in the field makes the whole
// decoded value 0 rather than propagating a partially-garbage number.
func bcdDecode(b []byte) uint64 {
	var v uint64
	for _, by := range b {
		hi, lo := by>>4, by&0x0F
		if hi > 9 || lo > 9 {
			return 0
		}
		v = v*100 + uint64(hi)*10 + uint64(lo)
	}
	return v
}

// bcdEncode packs n into len(out) packed-BCD bytes, MSB-first.
func bcdEncode(n uint64, width int) []byte {
	out := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		d := n % 100
		n /= 100
		out[i] = byte((d/10)<<4 | (d % 10))
	}
	return out
}

// decodeVolumeAmount decodes DC2's 4-byte BCD volume (x1000) and 4-byte BCD
// amount (x100) fields into liters and currency units.
func decodeVolumeAmount(volBCD, amtBCD []byte) (volumeL, amountCur float64) {
	return float64(bcdDecode(volBCD)) / 1000, float64(bcdDecode(amtBCD)) / 100
}

// decodePrice decodes DC3/CD5's 3-byte BCD price field (x100) into currency
// units per liter.
func decodePrice(priceBCD []byte) float64 {
	return float64(bcdDecode(priceBCD)) / 100
}

// encodePrice packs a price (currency units, e.g. 45.00) into a 3-byte BCD
// field at x100 scale, for the CD5 startup broadcast.
func encodePrice(price float64) []byte {
	return bcdEncode(uint64(price*100+0.5), 3)
}

// encodePresetVolume packs a volume (liters) into the 4-byte big-endian
// integer CD3 expects, scaled x1000 (milli-litres).
func encodePresetVolume(volumeL float64) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(volumeL*1000+0.5))
	return buf
}

// encodePresetAmount packs an amount (currency units) into the 4-byte
// big-endian integer CD4 expects, scaled x100 (hundredths of currency).
func encodePresetAmount(amountCur float64) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(amountCur*100+0.5))
	return buf
}
