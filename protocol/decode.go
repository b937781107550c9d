package protocol

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Spell name length byte positions seen across firmware revisions. The name
// body starts one byte after the length.
const (
	SpellLengthIndexLegacy = 4
	SpellLengthIndexLive   = 3

	DefaultSpellLengthIndex = SpellLengthIndexLive
)

const minSpellPayload = 6

// Decoder turns notification payloads into events. The zero value is not
// usable; call NewDecoder.
type Decoder struct {
	spellLengthIndex int
	now              func() time.Time
}

// NewDecoder returns a decoder reading the spell name length at
// spellLengthIndex. Values other than 3 or 4 select the default.
func NewDecoder(spellLengthIndex int) *Decoder {
	if spellLengthIndex != SpellLengthIndexLegacy && spellLengthIndex != SpellLengthIndexLive {
		spellLengthIndex = DefaultSpellLengthIndex
	}
	return &Decoder{spellLengthIndex: spellLengthIndex, now: time.Now}
}

// SpellLengthIndex reports the configured spell length byte offset.
func (d *Decoder) SpellLengthIndex() int {
	return d.spellLengthIndex
}

// Decode classifies a payload from the notify characteristic. Unrecognized or
// malformed payloads yield nil.
func (d *Decoder) Decode(data []byte) Event {
	if len(data) == 0 {
		return nil
	}

	if utf8.Valid(data) && strings.HasPrefix(string(data), "MCW") {
		return FirmwareVersion{Version: strings.TrimSpace(string(data))}
	}

	opcode := data[0]

	if opcode == RespBoxAddress && len(data) == 7 {
		return Address{MAC: formatMAC(data[1:7])}
	}

	if opcode == RespProductInfo && len(data) >= 3 {
		if ev := decodeProductInfo(ProductInfo(data[1]), data[2:]); ev != nil {
			return ev
		}
	}

	if opcode == RespThreshold && len(data) == 4 {
		return ButtonThreshold{Index: data[1], Threshold: Threshold{Min: data[2], Max: data[3]}}
	}

	switch opcode {
	case StreamButton:
		if len(data) >= 2 {
			return Buttons{Mask: data[1]}
		}
	case StreamSpell:
		return d.decodeSpell(data)
	case StreamIMU:
		if samples := decodeIMU(data); samples != nil {
			return IMUBatch{Samples: samples, At: d.now()}
		}
	}
	return nil
}

func (d *Decoder) decodeSpell(data []byte) Event {
	if len(data) < minSpellPayload || len(data) <= d.spellLengthIndex+1 {
		return nil
	}
	n := int(data[d.spellLengthIndex])
	start := d.spellLengthIndex + 1
	end := start + n
	if end > len(data) {
		end = len(data)
	}
	raw := data[start:end]
	// Trimmed before NULs and underscores are replaced, so a trailing
	// underscore survives as a space.
	name := strings.TrimSpace(strings.ToValidUTF8(string(raw), ""))
	name = strings.ReplaceAll(strings.ReplaceAll(name, "\x00", ""), "_", " ")
	if name == "" {
		return nil
	}
	return NativeSpell{Name: name, Raw: append([]byte(nil), raw...)}
}

func decodeProductInfo(kind ProductInfo, val []byte) Event {
	switch kind {
	case InfoSerial:
		if len(val) >= 4 {
			return SerialNumber{Number: binary.LittleEndian.Uint32(val[:4]), Hex: hex.EncodeToString(val)}
		}
	case InfoWandType:
		return WandType{ID: val[0], Model: ModelFromID(val[0])}
	case InfoSKU, InfoManufacturer, InfoDeviceID, InfoEdition:
		return ProductText{Kind: kind, Value: cleanText(val)}
	case InfoCompanionMAC:
		if len(val) == 6 {
			return Address{Companion: true, MAC: formatMAC(val)}
		}
	}
	return nil
}

// DecodeBattery reads a battery characteristic payload. The value is a
// little-endian integer percentage.
func DecodeBattery(data []byte) Event {
	if len(data) == 0 {
		return nil
	}
	var v uint64
	for i := len(data) - 1; i >= 0; i-- {
		v = v<<8 | uint64(data[i])
		if v > 100 {
			v = 100
		}
	}
	return Battery{Percent: uint8(v)}
}

// cleanText drops invalid UTF-8 and NUL bytes and trims surrounding space.
func cleanText(b []byte) string {
	s := strings.ToValidUTF8(string(b), "")
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}

// formatMAC renders little-endian address bytes most significant first.
func formatMAC(le []byte) string {
	parts := make([]string, len(le))
	for i := range le {
		parts[i] = fmt.Sprintf("%02X", le[len(le)-1-i])
	}
	return strings.Join(parts, ":")
}
