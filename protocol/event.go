package protocol

import (
	"fmt"
	"time"

	"github.com/golang/geo/r3"
)

// Event is a decoded notification. The concrete types below are the only
// implementations.
type Event interface {
	event()
}

// FirmwareVersion is the reply to a firmware request, e.g. "MCW 1.0.2".
type FirmwareVersion struct {
	Version string
}

// Address is a MAC address reply, formatted "AA:BB:CC:DD:EE:FF".
type Address struct {
	Companion bool // reported inside product info rather than by request
	MAC       string
}

// SerialNumber is product info subtype 0x01.
type SerialNumber struct {
	Number uint32
	Hex    string
}

// ProductText carries one of the free text product info fields.
type ProductText struct {
	Kind  ProductInfo
	Value string
}

// WandType is product info subtype 0x09.
type WandType struct {
	ID    uint8
	Model Model
}

// ButtonThreshold is the reply to a read-threshold request.
type ButtonThreshold struct {
	Index uint8
	Threshold
}

// Buttons is a pad mask stream event.
type Buttons struct {
	Mask uint8
}

// NativeSpell is a spell recognized by the wand firmware itself.
type NativeSpell struct {
	Name string
	Raw  []byte
}

// Battery is a battery level notification in percent.
type Battery struct {
	Percent uint8
}

// IMUBatch is one inertial notification holding one or more samples.
type IMUBatch struct {
	Samples []Sample
	At      time.Time
}

// Sample is one accelerometer/gyroscope reading. Accel is in m/s², Gyro in
// rad/s, both in the sensor frame.
type Sample struct {
	Accel r3.Vector
	Gyro  r3.Vector
}

func (FirmwareVersion) event() {}
func (Address) event()         {}
func (SerialNumber) event()    {}
func (ProductText) event()     {}
func (WandType) event()        {}
func (ButtonThreshold) event() {}
func (Buttons) event()         {}
func (NativeSpell) event()     {}
func (Battery) event()         {}
func (IMUBatch) event()        {}

// Pressed reports whether every bit in b is set.
func (b Buttons) Pressed(bit uint8) bool {
	return b.Mask&bit == bit
}

// AllPressed reports whether all four pads are held.
func (b Buttons) AllPressed() bool {
	return b.Mask&ButtonsAll == ButtonsAll
}

func (b Buttons) String() string {
	return fmt.Sprintf("big=%t top=%t mid=%t bot=%t",
		b.Pressed(ButtonBig), b.Pressed(ButtonTop), b.Pressed(ButtonMiddle), b.Pressed(ButtonBottom))
}

// Latest returns the most recent sample of the batch.
func (b IMUBatch) Latest() (Sample, bool) {
	if len(b.Samples) == 0 {
		return Sample{}, false
	}
	return b.Samples[len(b.Samples)-1], true
}
