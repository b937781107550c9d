package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncoders(t *testing.T) {
	assert.Equal(t, []byte{0x01}, KeepAlive())
	assert.Equal(t, []byte{0x50, 0xf4, 0x01}, Vibrate(500))
	assert.Equal(t, []byte{0x30, 0x80, 0x00, 0x00, 0x00}, IMUStart())
	assert.Equal(t, []byte{0x31}, IMUStop())
	assert.Equal(t, []byte{0xDD, 0x02}, ReadThreshold(2))
	assert.Equal(t, []byte{0x0E, 0x09}, RequestProductInfo(InfoWandType))
}

func TestSetThresholds(t *testing.T) {
	b, err := SetThresholds([]Threshold{{1, 2}, {3, 4}, {5, 6}, {7, 8}})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x70, 1, 2, 3, 4, 5, 6, 7, 8}, b)

	_, err = SetThresholds([]Threshold{{1, 2}})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = SetThresholds(make([]Threshold, 5))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestButtonInit(t *testing.T) {
	seq := ButtonInit()
	require.Len(t, seq, 8)
	assert.Equal(t, []byte{0xDC, 0x00, 0x05}, seq[0])
	assert.Equal(t, []byte{0xDC, 0x03, 0x05}, seq[3])
	assert.Equal(t, []byte{0xDC, 0x04, 0x08}, seq[4])
	assert.Equal(t, []byte{0xDC, 0x07, 0x08}, seq[7])
}
