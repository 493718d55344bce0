package serialio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetParity(t *testing.T) {
	var tm Termios2
	tm.setParity(ParityEven)
	assert.NotZero(t, tm.Cflag&parenb)
	assert.Zero(t, tm.Cflag&parodd)

	tm.setParity(ParityOdd)
	assert.NotZero(t, tm.Cflag&parenb)
	assert.NotZero(t, tm.Cflag&parodd)

	tm.setParity(ParityNone)
	assert.Zero(t, tm.Cflag&(parenb|parodd))
}

func TestSetBaudFixedRate(t *testing.T) {
	var tm Termios2
	tm.setBaud(9600)
	assert.Equal(t, uint32(b9600), tm.Cflag&cBaud)
	assert.Zero(t, tm.Cflag&cBaudEx)
}

func TestSetBaudCustomRateUsesBother(t *testing.T) {
	var tm Termios2
	tm.setBaud(57600)
	assert.NotZero(t, tm.Cflag&bother)
	assert.Equal(t, uint32(57600), tm.ISpeed)
	assert.Equal(t, uint32(57600), tm.OSpeed)
}

func TestSetStopBits(t *testing.T) {
	var tm Termios2
	tm.setStopBits(2)
	assert.NotZero(t, tm.Cflag&cStopb)

	tm.setStopBits(1)
	assert.Zero(t, tm.Cflag&cStopb)
}

func TestMakeRawSetsCS8AndClearsCanonicalMode(t *testing.T) {
	var tm Termios2
	tm.Iflag, tm.Oflag, tm.Lflag = 0xFF, 0xFF, 0xFF
	tm.makeRaw()

	assert.Equal(t, uint32(0), tm.Iflag)
	assert.Equal(t, uint32(0), tm.Oflag)
	assert.Equal(t, uint32(0), tm.Lflag)
	assert.Equal(t, uint32(cs8), tm.Cflag&cSize)
	assert.NotZero(t, tm.Cflag&cRead)
}
