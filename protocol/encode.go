package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ThresholdPairs is the number of (min, max) pairs a threshold write carries.
const ThresholdPairs = 4

// ErrInvalidArgument is returned by encoders given out-of-range input.
var ErrInvalidArgument = errors.New("invalid argument")

// Threshold is a button sensitivity window.
type Threshold struct {
	Min uint8
	Max uint8
}

// KeepAlive builds the keep-alive command. The wand answers with a battery
// notification.
func KeepAlive() []byte {
	return []byte{OpKeepAlive}
}

// Vibrate builds a vibration command lasting ms milliseconds.
func Vibrate(ms uint16) []byte {
	b := make([]byte, 3)
	b[0] = OpVibrate
	binary.LittleEndian.PutUint16(b[1:], ms)
	return b
}

// IMUStart builds the command that starts the inertial stream.
func IMUStart() []byte {
	return []byte{OpIMUStart, 0x80, 0x00, 0x00, 0x00}
}

// IMUStop builds the command that stops the inertial stream.
func IMUStop() []byte {
	return []byte{OpIMUStop}
}

// SetThresholds builds a threshold write. Exactly four pairs are required.
func SetThresholds(pairs []Threshold) ([]byte, error) {
	if len(pairs) != ThresholdPairs {
		return nil, fmt.Errorf("%w: need %d threshold pairs, got %d", ErrInvalidArgument, ThresholdPairs, len(pairs))
	}
	b := make([]byte, 0, 1+2*ThresholdPairs)
	b = append(b, OpSetThreshold)
	for _, p := range pairs {
		b = append(b, p.Min, p.Max)
	}
	return b, nil
}

// ReadThreshold builds a request for the sensitivity window of one button.
func ReadThreshold(index uint8) []byte {
	return []byte{OpReadThreshold, index}
}

func RequestFirmware() []byte    { return []byte{OpFirmware} }
func RequestBoxAddress() []byte  { return []byte{OpBoxAddress} }
func RequestWandAddress() []byte { return []byte{OpWandAddress} }

// RequestProductInfo asks for a single product info field.
func RequestProductInfo(kind ProductInfo) []byte {
	return []byte{OpProductInfo, byte(kind)}
}

func FactoryUnlock() []byte { return []byte{OpFactoryUnlock} }
func LightClear() []byte    { return []byte{OpLightClear} }
func MacroFlush() []byte    { return []byte{OpMacroFlush} }
func Calibrate() []byte     { return []byte{OpCalibrate} }

// ButtonInit returns the sequence that loads the default button thresholds
// after connecting: indices 0-3 get 5, indices 4-7 get 8.
func ButtonInit() [][]byte {
	seq := make([][]byte, 0, 8)
	for i := uint8(0); i < 8; i++ {
		v := uint8(5)
		if i >= 4 {
			v = 8
		}
		seq = append(seq, []byte{OpButtonInit, i, v})
	}
	return seq
}
