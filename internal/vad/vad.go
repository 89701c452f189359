// Package vad implements energy-based voice activity detection over inbound
// PCM frames. Speech opens after a run of consecutive frames above the RMS
// threshold and closes after a hangover run below it. A guard window armed
// when bot playback starts suppresses triggers from synthesis echo.
package vad

import "time"

// Event is a discrete boundary emitted by the detector.
type Event int

const (
	None Event = iota
	SpeechStart
	SpeechEnd
)

type Detector struct {
	minRMS   float64
	minStart int
	hangover int

	speaking     bool
	consecSpeech int
	nonSpeech    int
	guardUntil   time.Time
}

func New(minRMS float64, minStartFrames, hangoverFrames int) *Detector {
	if minStartFrames <= 0 {
		minStartFrames = 2
	}
	if hangoverFrames <= 0 {
		hangoverFrames = 20
	}
	return &Detector{minRMS: minRMS, minStart: minStartFrames, hangover: hangoverFrames}
}

// Arm opens a guard window during which frames above threshold are ignored.
func (d *Detector) Arm(guard time.Duration, now time.Time) {
	d.guardUntil = now.Add(guard)
}

func (d *Detector) Speaking() bool { return d.speaking }

// Reset clears counters and speaking state, typically when bot playback starts.
func (d *Detector) Reset() {
	d.speaking = false
	d.consecSpeech = 0
	d.nonSpeech = 0
}

// Observe feeds one frame's RMS and returns the boundary it produced, if any.
func (d *Detector) Observe(rms float64, now time.Time) Event {
	metricFrames.Inc()
	if !d.speaking {
		if rms >= d.minRMS && now.Before(d.guardUntil) {
			metricGuardBlocks.Inc()
			return None
		}
		if rms >= d.minRMS {
			d.consecSpeech++
			if d.consecSpeech >= d.minStart {
				d.speaking = true
				d.nonSpeech = 0
				metricStarts.Inc()
				return SpeechStart
			}
		} else {
			d.consecSpeech = 0
		}
		return None
	}

	// Currently speaking - check for end of speech
	if rms < d.minRMS {
		d.nonSpeech++
		if d.nonSpeech >= d.hangover {
			d.speaking = false
			d.consecSpeech = 0
			d.nonSpeech = 0
			metricEnds.Inc()
			return SpeechEnd
		}
	} else {
		d.nonSpeech = 0
	}
	return None
}
