package capture

import "encoding/binary"

// mix sums two s16le PCM buffers into one.
// The secondary signal is attenuated by gain so it does not
// overpower the primary audio. The shorter buffer is padded with silence
func mix(primary, secondary []byte, gain float64) []byte {
	if len(secondary) == 0 {
		return primary
	}
	n := len(primary)
	if len(secondary) > n {
		n = len(secondary)
	}
	n -= n % 2
	res := make([]byte, n)
	for i := 0; i < n; i += 2 {
		v := int32(sampleAt(primary, i)) + int32(float64(sampleAt(secondary, i))*gain)
		binary.LittleEndian.PutUint16(res[i:], uint16(clamp(v)))
	}
	return res
}

func sampleAt(b []byte, i int) int16 {
	if i+2 > len(b) {
		return 0
	}
	return int16(binary.LittleEndian.Uint16(b[i:]))
}

func clamp(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
