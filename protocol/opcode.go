// Package protocol encodes commands for and decodes notifications from a
// Magic Caster wand.
package protocol

// GATT UUIDs in the canonical string form BlueZ reports.
const (
	ServiceUUID = "57420001-587e-48a0-974c-544d6163c577"
	CommandUUID = "57420002-587e-48a0-974c-544d6163c577"
	NotifyUUID  = "57420003-587e-48a0-974c-544d6163c577"
	BatteryUUID = "00002a19-0000-1000-8000-00805f9b34fb"

	BatteryServiceUUID = "0000180f-0000-1000-8000-00805f9b34fb"
)

// DeviceNamePrefix is the advertised local name prefix of every wand.
const DeviceNamePrefix = "MCW-"

// Commands written to the command characteristic.
const (
	OpFirmware      byte = 0x00
	OpKeepAlive     byte = 0x01 // also requests a battery notification
	OpWandAddress   byte = 0x08
	OpBoxAddress    byte = 0x09
	OpFactoryUnlock byte = 0x0B
	OpProductInfo   byte = 0x0E
	OpIMUStart      byte = 0x30
	OpIMUStop       byte = 0x31
	OpLightClear    byte = 0x40
	OpVibrate       byte = 0x50
	OpMacroFlush    byte = 0x60
	OpMacroExec     byte = 0x68
	OpPredefined    byte = 0x69
	OpSetThreshold  byte = 0x70
	OpButtonInit    byte = 0xDC
	OpReadThreshold byte = 0xDD
	OpCalibrate     byte = 0xFC
)

// Responses to commands.
const (
	RespBoxAddress  byte = 0x0A
	RespProductInfo byte = 0x0E
	RespThreshold   byte = 0xDE
)

// Unsolicited stream events.
const (
	StreamButton byte = 0x11
	StreamSpell  byte = 0x24
	StreamIMU    byte = 0x2C
)

// ProductInfo subtypes carried in byte 1 of a 0x0E response.
type ProductInfo byte

const (
	InfoSerial       ProductInfo = 0x01
	InfoSKU          ProductInfo = 0x02
	InfoManufacturer ProductInfo = 0x03
	InfoDeviceID     ProductInfo = 0x04
	InfoEdition      ProductInfo = 0x05
	InfoDecoration   ProductInfo = 0x06
	InfoCompanionMAC ProductInfo = 0x08
	InfoWandType     ProductInfo = 0x09
)

func (p ProductInfo) String() string {
	switch p {
	case InfoSerial:
		return "serial"
	case InfoSKU:
		return "sku"
	case InfoManufacturer:
		return "manufacturer"
	case InfoDeviceID:
		return "device_id"
	case InfoEdition:
		return "edition"
	case InfoDecoration:
		return "decoration"
	case InfoCompanionMAC:
		return "companion_mac"
	case InfoWandType:
		return "wand_type"
	default:
		return "unknown"
	}
}

// Button mask bits of a 0x11 stream event.
const (
	ButtonBig    uint8 = 1 << 0
	ButtonTop    uint8 = 1 << 1
	ButtonMiddle uint8 = 1 << 2
	ButtonBottom uint8 = 1 << 3

	ButtonsAll = ButtonBig | ButtonTop | ButtonMiddle | ButtonBottom
)
