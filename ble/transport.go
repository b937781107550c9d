// Package ble connects to a wand over Bluetooth LE and moves commands and
// notifications across the link.
package ble

import (
	"context"
	"errors"
)

var (
	// ErrNotConnected is returned for I/O on a closed connection.
	ErrNotConnected = errors.New("not connected")
	// ErrServiceMissing means the wand service is absent from the GATT
	// table, usually a stale BlueZ cache.
	ErrServiceMissing = errors.New("gatt service missing")
	// ErrCharacteristicMissing means a wand characteristic is absent.
	ErrCharacteristicMissing = errors.New("gatt characteristic missing")
	// ErrResponseTimeout means no reply arrived for a command.
	ErrResponseTimeout = errors.New("timed out waiting for response")
)

// IsMissing reports whether err is a missing service or characteristic fault.
// These are not retried and force the GATT cache to be dropped.
func IsMissing(err error) bool {
	return errors.Is(err, ErrServiceMissing) || errors.Is(err, ErrCharacteristicMissing)
}

// Transport opens connections to wands.
type Transport interface {
	// Connect finds and connects to deviceID, a MAC address or an empty
	// string for the first wand seen.
	Connect(ctx context.Context, deviceID string) (Connection, error)
}

// Connection is an open GATT link. Characteristics are addressed by UUID.
type Connection interface {
	Address() string
	Write(ctx context.Context, char string, data []byte, withResponse bool) error
	// Subscribe delivers notifications of char to fn. fn runs on the
	// transport's callback goroutine and must not block.
	Subscribe(char string, fn func([]byte)) error
	Disconnect() error
	// ClearCache drops the host's cached GATT table for the device.
	ClearCache() error
	// Done is closed once the link drops.
	Done() <-chan struct{}
}
