package ble

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"wandcaster/protocol"
)

// DeviceInfo is what a wand reports about itself at connect.
type DeviceInfo struct {
	Firmware   string         `json:"firmware,omitempty"`
	Model      protocol.Model `json:"-"`
	ModelName  string         `json:"model,omitempty"`
	Serial     string         `json:"serial,omitempty"`
	BoxAddress string         `json:"box_address,omitempty"`
}

// Identify queries firmware, model, serial and box address. Individual
// failures are logged and leave the field empty. ctx cancellation, a lost
// link or a missing characteristic abort the remaining queries.
func (l *Link) Identify(ctx context.Context) (DeviceInfo, error) {
	info := DeviceInfo{Model: protocol.ModelUnknown}
	queries := []struct {
		name string
		cmd  []byte
	}{
		{"firmware", protocol.RequestFirmware()},
		{"wand type", protocol.RequestProductInfo(protocol.InfoWandType)},
		{"serial", protocol.RequestProductInfo(protocol.InfoSerial)},
		{"box address", protocol.RequestBoxAddress()},
	}
	for _, q := range queries {
		reply, err := l.Send(ctx, q.cmd, true)
		if err != nil {
			if ctx.Err() != nil {
				return info, ctx.Err()
			}
			if IsMissing(err) || errors.Is(err, ErrLinkLost) {
				return info, fmt.Errorf("%s query: %w", q.name, err)
			}
			l.log.WithError(err).Warnf("BLE: %s query failed", q.name)
			continue
		}
		switch ev := l.decoder.Decode(reply).(type) {
		case protocol.FirmwareVersion:
			info.Firmware = ev.Version
		case protocol.WandType:
			info.Model = ev.Model
		case protocol.SerialNumber:
			info.Serial = ev.Hex
		case protocol.Address:
			if !ev.Companion {
				info.BoxAddress = ev.MAC
			}
		default:
			l.log.WithField("payload", fmt.Sprintf("%x", reply)).Debugf("BLE: unexpected %s reply", q.name)
		}
	}
	info.ModelName = info.Model.String()
	l.log.WithFields(logrus.Fields{
		"firmware": info.Firmware,
		"model":    info.ModelName,
		"serial":   info.Serial,
	}).Info("BLE: wand identified")
	return info, nil
}

// InitButtons writes the default button threshold sequence.
func (l *Link) InitButtons(ctx context.Context) error {
	for _, cmd := range protocol.ButtonInit() {
		if _, err := l.Send(ctx, cmd, false); err != nil {
			return fmt.Errorf("button init: %w", err)
		}
	}
	return nil
}

// StartIMU enables the inertial stream.
func (l *Link) StartIMU(ctx context.Context) error {
	_, err := l.Send(ctx, protocol.IMUStart(), false)
	return err
}

// StopIMU disables the inertial stream.
func (l *Link) StopIMU(ctx context.Context) error {
	_, err := l.Send(ctx, protocol.IMUStop(), false)
	return err
}

// Vibrate pulses the wand motor for d.
func (l *Link) Vibrate(ctx context.Context, d time.Duration) error {
	ms := d.Milliseconds()
	if ms < 0 || ms > 0xFFFF {
		return fmt.Errorf("%w: vibrate %s", protocol.ErrInvalidArgument, d)
	}
	_, err := l.Send(ctx, protocol.Vibrate(uint16(ms)), false)
	return err
}

// KeepAlive sends one keep-alive. The wand answers on the battery path.
func (l *Link) KeepAlive(ctx context.Context) error {
	_, err := l.Send(ctx, protocol.KeepAlive(), false)
	return err
}

// RunKeepAlive sends a keep-alive every interval until ctx ends or the link
// drops. A zero interval disables it.
func (l *Link) RunKeepAlive(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.conn.Done():
			return
		case <-ticker.C:
			if err := l.KeepAlive(ctx); err != nil {
				l.log.WithError(err).Warn("BLE: keep-alive failed")
			}
		}
	}
}

// ClearLights turns the wand LED off.
func (l *Link) ClearLights(ctx context.Context) error {
	_, err := l.Send(ctx, protocol.LightClear(), false)
	return err
}

// CastFeedback buzzes the wand when casting starts and clears its light when
// it ends. Commands are fire-and-forget.
type CastFeedback struct {
	Link    *Link
	Vibrate time.Duration
}

func (f CastFeedback) BeginCasting() {
	if f.Vibrate > 0 {
		f.fire("vibrate", func(ctx context.Context) error { return f.Link.Vibrate(ctx, f.Vibrate) })
	}
}

func (f CastFeedback) EndCasting() {
	f.fire("light clear", f.Link.ClearLights)
}

func (f CastFeedback) fire(name string, cmd func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := cmd(ctx); err != nil {
			f.Link.log.WithError(err).Debugf("BLE: %s feedback failed", name)
		}
	}()
}
