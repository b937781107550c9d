package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/muka/go-bluetooth/bluez"
	"github.com/muka/go-bluetooth/bluez/profile/gatt"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"tinygo.org/x/bluetooth"

	"wandcaster/protocol"
)

const (
	bluezService   = "org.bluez"
	adapterPath    = "/org/bluez/hci0"
	deviceIface    = "org.bluez.Device1"
	charIface      = "org.bluez.GattCharacteristic1"
	serviceIface   = "org.bluez.GattService1"
	propertiesSig  = "org.freedesktop.DBus.Properties"
	objectManager  = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"
	removeDevice   = "org.bluez.Adapter1.RemoveDevice"
	dbusUnknownObj = "org.freedesktop.DBus.Error.UnknownObject"
	dbusUnknownMtd = "org.freedesktop.DBus.Error.UnknownMethod"
)

// BlueZConfig tunes the BlueZ transport.
type BlueZConfig struct {
	// ResolveTimeout bounds the wait for GATT service discovery after connect.
	ResolveTimeout time.Duration
}

// DefaultBlueZConfig returns defaults for a local hci0 adapter.
func DefaultBlueZConfig() BlueZConfig {
	return BlueZConfig{ResolveTimeout: 15 * time.Second}
}

// BlueZ is the Linux Transport: tinygo bluetooth finds and connects to the
// wand, GATT I/O goes straight to BlueZ over D-Bus.
type BlueZ struct {
	adapter *bluetooth.Adapter
	cfg     BlueZConfig
	log     logrus.FieldLogger

	enableOnce sync.Once
	enableErr  error
}

// NewBlueZ uses the default adapter.
func NewBlueZ(cfg BlueZConfig, log logrus.FieldLogger) *BlueZ {
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = DefaultBlueZConfig().ResolveTimeout
	}
	return &BlueZ{
		adapter: bluetooth.DefaultAdapter,
		cfg:     cfg,
		log:     log.WithField("component", "bluez"),
	}
}

// Enable powers the adapter. Connect calls it on first use.
func (b *BlueZ) Enable() error {
	b.enableOnce.Do(func() {
		b.log.Info("BLE: enabling adapter")
		if err := b.adapter.Enable(); err != nil {
			b.enableErr = fmt.Errorf("failed to enable BLE adapter: %w", err)
		}
	})
	return b.enableErr
}

// Connect scans for deviceID (a MAC address, or empty for the first wand
// advertising the MCW- prefix), connects and waits for GATT resolution.
func (b *BlueZ) Connect(ctx context.Context, deviceID string) (Connection, error) {
	if err := b.Enable(); err != nil {
		return nil, err
	}
	result, err := b.scan(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	addr := strings.ToUpper(result.Address.String())
	log := b.log.WithField("device", addr)
	log.Infof("BLE: connecting to %s", result.LocalName())

	device, err := b.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	devPath := devicePath(addr)
	resolveCtx, cancel := context.WithTimeout(ctx, b.cfg.ResolveTimeout)
	defer cancel()
	if err := waitForDeviceProperty(resolveCtx, devPath, "ServicesResolved", true); err != nil {
		_ = device.Disconnect()
		return nil, fmt.Errorf("GATT not resolved on %s: %w", addr, err)
	}
	log.Info("BLE: GATT resolved")

	conn := &bluezConn{
		device:  device,
		addr:    addr,
		devPath: devPath,
		log:     log,
		chars:   make(map[string]*gatt.GattCharacteristic1),
		done:    make(chan struct{}),
	}
	watchCtx, stopWatch := context.WithCancel(context.Background())
	conn.stopWatch = stopWatch
	go func() {
		if err := waitForDeviceProperty(watchCtx, devPath, "Connected", false); err == nil {
			log.Warn("BLE: wand disconnected")
		}
		conn.markDone()
	}()
	return conn, nil
}

func (b *BlueZ) scan(ctx context.Context, deviceID string) (bluetooth.ScanResult, error) {
	want := strings.ToUpper(deviceID)
	found := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)

	if want == "" {
		b.log.Infof("BLE: scanning for %s* devices", protocol.DeviceNamePrefix)
	} else {
		b.log.Infof("BLE: scanning for %s", want)
	}
	go func() {
		scanErr <- b.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !matchesWand(result, want) {
				return
			}
			select {
			case found <- result:
				_ = adapter.StopScan()
			default:
			}
		})
	}()

	select {
	case result := <-found:
		<-scanErr
		b.log.Infof("BLE: found %s at %s", result.LocalName(), result.Address.String())
		return result, nil
	case err := <-scanErr:
		if err == nil {
			err = errors.New("scan stopped")
		}
		return bluetooth.ScanResult{}, fmt.Errorf("scan: %w", err)
	case <-ctx.Done():
		_ = b.adapter.StopScan()
		<-scanErr
		return bluetooth.ScanResult{}, ctx.Err()
	}
}

func matchesWand(result bluetooth.ScanResult, want string) bool {
	if want != "" {
		return strings.EqualFold(result.Address.String(), want)
	}
	return strings.HasPrefix(result.LocalName(), protocol.DeviceNamePrefix)
}

// devicePath maps "D4:E9:F4:E2:B5:8A" to "/org/bluez/hci0/dev_D4_E9_F4_E2_B5_8A".
func devicePath(mac string) dbus.ObjectPath {
	return dbus.ObjectPath(adapterPath + "/dev_" + strings.ReplaceAll(strings.ToUpper(mac), ":", "_"))
}

// bluezConn is one connected wand.
type bluezConn struct {
	device  *bluetooth.Device
	addr    string
	devPath dbus.ObjectPath
	log     logrus.FieldLogger

	mu      sync.Mutex
	chars   map[string]*gatt.GattCharacteristic1
	watches []watch
	closed  bool

	stopWatch context.CancelFunc
	done      chan struct{}
	doneOnce  sync.Once
}

type watch struct {
	char *gatt.GattCharacteristic1
	ch   chan *bluez.PropertyChanged
}

func (c *bluezConn) Address() string       { return c.addr }
func (c *bluezConn) Done() <-chan struct{} { return c.done }

func (c *bluezConn) markDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *bluezConn) characteristic(uuid string) (*gatt.GattCharacteristic1, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrNotConnected
	}
	if ch, ok := c.chars[uuid]; ok {
		return ch, nil
	}
	service := protocol.ServiceUUID
	if uuid == protocol.BatteryUUID {
		service = protocol.BatteryServiceUUID
	}
	ch, err := discoverGATT(c.devPath, service, uuid, c.log)
	if err != nil {
		return nil, err
	}
	c.chars[uuid] = ch
	return ch, nil
}

func (c *bluezConn) Write(ctx context.Context, uuid string, data []byte, withResponse bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ch, err := c.characteristic(uuid)
	if err != nil {
		return err
	}
	kind := "command"
	if withResponse {
		kind = "request"
	}
	if err := ch.WriteValue(data, map[string]interface{}{"type": kind}); err != nil {
		return classifyDBusError(err)
	}
	return nil
}

func (c *bluezConn) Subscribe(uuid string, fn func([]byte)) error {
	ch, err := c.characteristic(uuid)
	if err != nil {
		return err
	}
	propCh, err := ch.WatchProperties()
	if err != nil {
		return fmt.Errorf("WatchProperties: %w", classifyDBusError(err))
	}
	if err := ch.StartNotify(); err != nil {
		_ = ch.UnwatchProperties(propCh)
		return fmt.Errorf("StartNotify: %w", classifyDBusError(err))
	}

	c.mu.Lock()
	c.watches = append(c.watches, watch{char: ch, ch: propCh})
	c.mu.Unlock()

	go func() {
		for update := range propCh {
			if update == nil {
				continue
			}
			if update.Interface == charIface && update.Name == "Value" {
				if value, ok := update.Value.([]byte); ok {
					fn(value)
				}
			}
		}
	}()
	return nil
}

func (c *bluezConn) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	watches := c.watches
	c.watches = nil
	c.chars = make(map[string]*gatt.GattCharacteristic1)
	c.mu.Unlock()

	var err error
	for _, w := range watches {
		err = multierr.Append(err, w.char.StopNotify())
		err = multierr.Append(err, w.char.UnwatchProperties(w.ch))
	}
	err = multierr.Append(err, c.device.Disconnect())
	c.stopWatch()
	c.markDone()
	c.log.Info("BLE: disconnected")
	return err
}

// ClearCache removes the device from the adapter so BlueZ rebuilds its GATT
// table on the next connect.
func (c *bluezConn) ClearCache() error {
	bus, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("dbus: %w", err)
	}
	defer bus.Close()
	if err := bus.Object(bluezService, adapterPath).Call(removeDevice, 0, c.devPath).Err; err != nil {
		return fmt.Errorf("RemoveDevice %s: %w", c.devPath, err)
	}
	c.log.Info("BLE: cleared cached GATT table")
	return nil
}

// classifyDBusError maps BlueZ "object gone" replies onto ErrCharacteristicMissing.
func classifyDBusError(err error) error {
	switch dbusErrorName(err) {
	case dbusUnknownObj, dbusUnknownMtd:
		return fmt.Errorf("%w: %v", ErrCharacteristicMissing, err)
	}
	return err
}

func dbusErrorName(err error) string {
	var e dbus.Error
	if errors.As(err, &e) {
		return e.Name
	}
	var ep *dbus.Error
	if errors.As(err, &ep) && ep != nil {
		return ep.Name
	}
	return ""
}

// waitForDeviceProperty blocks until the boolean Device1 property name equals
// want, or ctx ends.
//
// BlueZ resolves GATT services asynchronously after the ACL link is up, so
// ServicesResolved must be awaited before GetManagedObjects shows the
// characteristics. The same signal carries Connected=false on link loss.
func waitForDeviceProperty(ctx context.Context, devPath dbus.ObjectPath, name string, want bool) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("dbus: %w", err)
	}
	defer conn.Close()

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(propertiesSig),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchObjectPath(devPath),
	); err != nil {
		return fmt.Errorf("dbus match: %w", err)
	}
	ch := make(chan *dbus.Signal, 16)
	conn.Signal(ch)
	defer conn.RemoveSignal(ch)

	// Fast path: already in the wanted state.
	v, err := conn.Object(bluezService, devPath).GetProperty(deviceIface + "." + name)
	if err == nil {
		if got, ok := v.Value().(bool); ok && got == want {
			return nil
		}
	}

	for {
		select {
		case sig, ok := <-ch:
			if !ok {
				return errors.New("dbus signal channel closed")
			}
			if len(sig.Body) < 2 {
				continue
			}
			iface, ok := sig.Body[0].(string)
			if !ok || iface != deviceIface {
				continue
			}
			changed, ok := sig.Body[1].(map[string]dbus.Variant)
			if !ok {
				continue
			}
			if v, ok := changed[name]; ok {
				if got, ok := v.Value().(bool); ok && got == want {
					return nil
				}
			}
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", name, ctx.Err())
		}
	}
}

// discoverGATT calls GetManagedObjects on a fresh bus connection rather than
// the go-bluetooth ObjectManager singleton, which can serve a stale tree.
func discoverGATT(devPath dbus.ObjectPath, serviceUUID, charUUID string, log logrus.FieldLogger) (*gatt.GattCharacteristic1, error) {
	serviceUUID = strings.ToLower(serviceUUID)
	charUUID = strings.ToLower(charUUID)

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("dbus connect: %w", err)
	}
	defer conn.Close()

	var managed map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if err := conn.Object(bluezService, "/").Call(objectManager, 0).Store(&managed); err != nil {
		return nil, fmt.Errorf("GetManagedObjects: %w", err)
	}
	log.Debugf("BLE: GetManagedObjects returned %d objects", len(managed))

	servicePath := findChild(managed, string(devPath), "service", serviceIface, serviceUUID)
	if servicePath == "" {
		return nil, fmt.Errorf("%w: %s on %s", ErrServiceMissing, serviceUUID, devPath)
	}
	charPath := findChild(managed, servicePath, "char", charIface, charUUID)
	if charPath == "" {
		return nil, fmt.Errorf("%w: %s under %s", ErrCharacteristicMissing, charUUID, servicePath)
	}
	log.Debugf("BLE: %s at %s", charUUID, charPath)

	// Method calls go through the go-bluetooth client; only
	// GetManagedObjects was unreliable there.
	char, err := gatt.NewGattCharacteristic1(dbus.ObjectPath(charPath))
	if err != nil {
		return nil, fmt.Errorf("NewGattCharacteristic1(%s): %w", charPath, err)
	}
	return char, nil
}

// findChild returns the object exactly one level below parent whose name
// starts with kind and whose iface reports the given UUID.
func findChild(managed map[dbus.ObjectPath]map[string]map[string]dbus.Variant, parent, kind, iface, uuid string) string {
	prefix := parent + "/" + kind
	for path, ifaces := range managed {
		p := string(path)
		if !strings.HasPrefix(p, prefix) || strings.Contains(p[len(parent)+1:], "/") {
			continue
		}
		props, ok := ifaces[iface]
		if !ok {
			continue
		}
		v, ok := props["UUID"]
		if !ok {
			continue
		}
		if s, ok := v.Value().(string); ok && strings.ToLower(s) == uuid {
			return p
		}
	}
	return ""
}
