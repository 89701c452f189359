package audio

import "testing"

func pcmOf(samples ...int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		b[i*2] = byte(uint16(s) & 0xFF)
		b[i*2+1] = byte(uint16(s) >> 8)
	}
	return b
}

func TestRMSSilence(t *testing.T) {
	if r := RMS(pcmOf(0, 0, 0, 0)); r != 0 {
		t.Fatalf("silence should have zero RMS, got %f", r)
	}
}

func TestRMSConstant(t *testing.T) {
	r := RMS(pcmOf(1000, 1000, 1000, 1000))
	if r < 999.0 || r > 1001.0 {
		t.Fatalf("expected RMS ~1000, got %f", r)
	}
}

func TestRMSTooShort(t *testing.T) {
	if r := RMS([]byte{0x01}); r != 0 {
		t.Fatalf("expected 0 for short buffer, got %f", r)
	}
}

func TestSplitDropsTail(t *testing.T) {
	chunks := Split(make([]byte, 650), 320)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len(c) != 320 {
			t.Fatalf("chunk size %d", len(c))
		}
	}
}

func TestFrameBytes(t *testing.T) {
	// 20ms at 16kHz mono PCM16 = 640 bytes
	if n := FrameBytes(16000, 20); n != 640 {
		t.Fatalf("expected 640, got %d", n)
	}
}
