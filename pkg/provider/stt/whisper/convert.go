package whisper

import "encoding/binary"

// pcmToFloat32 converts 16-bit little-endian mono PCM into the normalised
// [-1, 1) float32 samples whisper.cpp consumes. A trailing odd byte is
// ignored.
func pcmToFloat32(pcm []byte) []float32 {
	samples := make([]float32, 0, len(pcm)/2)
	for len(pcm) >= 2 {
		s := int16(binary.LittleEndian.Uint16(pcm))
		samples = append(samples, float32(s)/32768)
		pcm = pcm[2:]
	}
	return samples
}
