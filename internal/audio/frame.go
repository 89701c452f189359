package audio

import "math"

// Direction marks which way a frame travels relative to the session.
type Direction uint8

const (
	Inbound Direction = iota
	Outbound
)

// Frame is a fixed-duration chunk of PCM16LE mono samples. Frames are
// immutable once produced; ownership transfers stage to stage along the
// pipeline with a single consumer per frame.
type Frame struct {
	Seq uint64
	Dir Direction
	PCM []byte
}

// RMS computes the root-mean-square energy of PCM16LE audio.
func RMS(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}
	var sum float64
	n := len(pcm) / 2
	for i := 0; i < n; i++ {
		// Little-endian int16
		sample := int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
		sum += float64(sample) * float64(sample)
	}
	return math.Sqrt(sum / float64(n))
}

// FrameBytes returns the byte size of one frame of the given duration in
// milliseconds at the given sample rate (PCM16 mono).
func FrameBytes(sampleRate, frameMs int) int {
	return sampleRate / 1000 * frameMs * 2
}

// Split cuts a PCM buffer into frame-sized chunks, dropping any trailing
// partial chunk shorter than a frame.
func Split(pcm []byte, frameBytes int) [][]byte {
	if frameBytes <= 0 || len(pcm) < frameBytes {
		return nil
	}
	var out [][]byte
	for off := 0; off+frameBytes <= len(pcm); off += frameBytes {
		out = append(out, pcm[off:off+frameBytes])
	}
	return out
}
