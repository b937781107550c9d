package protocol

import (
	"encoding/binary"
	"math"

	"github.com/golang/geo/r3"
)

// IMU frame layout: a 4 byte header followed by 12 byte samples.
const (
	IMUHeaderSize = 4
	IMUSampleSize = 12
)

// Sensor scale factors (±8 g, ±2000 °/s ranges).
const (
	AccelCountsPerG    = 4096.0
	GyroCountsPerDPS   = 16.4
	StandardGravity    = 9.80665
	degreesToRadians   = math.Pi / 180
	accelCountsToMS2   = StandardGravity / AccelCountsPerG
	gyroCountsToRadSec = degreesToRadians / GyroCountsPerDPS
)

// RawSample is one sensor reading as the wand sends it. All fields are
// little-endian int16 counts.
type RawSample struct {
	AccX, AccY, AccZ    int16
	GyroX, GyroY, GyroZ int16
}

func parseRawSample(data []byte) RawSample {
	return RawSample{
		AccX:  int16(binary.LittleEndian.Uint16(data[0:2])),
		AccY:  int16(binary.LittleEndian.Uint16(data[2:4])),
		AccZ:  int16(binary.LittleEndian.Uint16(data[4:6])),
		GyroX: int16(binary.LittleEndian.Uint16(data[6:8])),
		GyroY: int16(binary.LittleEndian.Uint16(data[8:10])),
		GyroZ: int16(binary.LittleEndian.Uint16(data[10:12])),
	}
}

// Scaled converts counts to m/s² and rad/s.
func (r RawSample) Scaled() Sample {
	return Sample{
		Accel: r3.Vector{
			X: float64(r.AccX) * accelCountsToMS2,
			Y: float64(r.AccY) * accelCountsToMS2,
			Z: float64(r.AccZ) * accelCountsToMS2,
		},
		Gyro: r3.Vector{
			X: float64(r.GyroX) * gyroCountsToRadSec,
			Y: float64(r.GyroY) * gyroCountsToRadSec,
			Z: float64(r.GyroZ) * gyroCountsToRadSec,
		},
	}
}

// decodeIMU returns nil unless the frame holds at least one whole sample.
// Trailing bytes that do not form a whole sample are ignored.
func decodeIMU(data []byte) []Sample {
	if len(data) < IMUHeaderSize+IMUSampleSize {
		return nil
	}
	body := data[IMUHeaderSize:]
	n := len(body) / IMUSampleSize
	samples := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		off := i * IMUSampleSize
		samples = append(samples, parseRawSample(body[off:off+IMUSampleSize]).Scaled())
	}
	return samples
}

// EncodeIMU builds an IMU frame from raw samples. The wand never receives
// these; tools and tests use it to synthesize streams.
func EncodeIMU(samples ...RawSample) []byte {
	b := make([]byte, IMUHeaderSize, IMUHeaderSize+len(samples)*IMUSampleSize)
	b[0] = StreamIMU
	b[3] = byte(len(samples))
	for _, s := range samples {
		for _, v := range []int16{s.AccX, s.AccY, s.AccZ, s.GyroX, s.GyroY, s.GyroZ} {
			b = binary.LittleEndian.AppendUint16(b, uint16(v))
		}
	}
	return b
}
