package utterance

import (
	"testing"

	"vox/agent/internal/transcript"
)

func collect() (*transcript.Emitter, *[]transcript.Event) {
	var got []transcript.Event
	em := transcript.NewEmitter(func(ev transcript.Event) { got = append(got, ev) })
	return em, &got
}

func TestFinalTextIsConcatenationInArrivalOrder(t *testing.T) {
	em, _ := collect()
	a := NewAggregator(em, 0.4)

	a.OnIncrement(transcript.SpeakerUser, Increment{Text: "what's"})
	a.OnIncrement(transcript.SpeakerUser, Increment{Text: "my"})
	a.OnIncrement(transcript.SpeakerUser, Increment{Text: "  "})           // dropped: whitespace
	a.OnIncrement(transcript.SpeakerUser, Increment{Text: "uh", Confidence: 0.1}) // dropped: low confidence
	fin, sealed := a.OnIncrement(transcript.SpeakerUser, Increment{Text: "balance", Final: true})
	if !sealed {
		t.Fatal("final increment should seal the utterance")
	}
	if fin.Text != "what's my balance" {
		t.Fatalf("final text %q", fin.Text)
	}
	if a.OpenText(transcript.SpeakerUser) != "" {
		t.Fatal("utterance should be closed after seal")
	}
}

func TestAtMostOneOpenUtterancePerSpeaker(t *testing.T) {
	em, got := collect()
	a := NewAggregator(em, 0)

	a.OnIncrement(transcript.SpeakerUser, Increment{Text: "one"})
	a.OnIncrement(transcript.SpeakerUser, Increment{Text: "two"})
	if a.OpenText(transcript.SpeakerUser) != "one two" {
		t.Fatalf("open text %q", a.OpenText(transcript.SpeakerUser))
	}
	finals := 0
	for _, ev := range *got {
		if ev.Final {
			finals++
		}
	}
	if finals != 0 {
		t.Fatal("no final events before seal")
	}
}

func TestSpeakerSwitchSealsOtherSide(t *testing.T) {
	em, got := collect()
	a := NewAggregator(em, 0)

	a.OnIncrement(transcript.SpeakerUser, Increment{Text: "hello"})
	a.OnIncrement(transcript.SpeakerBot, Increment{Text: "hi there"})

	if a.OpenText(transcript.SpeakerUser) != "" {
		t.Fatal("user utterance should have been sealed by the speaker switch")
	}
	// The user's final must precede the bot's first event.
	var sawUserFinal bool
	for _, ev := range *got {
		if ev.Speaker == transcript.SpeakerBot && !sawUserFinal {
			t.Fatal("bot event emitted before user finalization")
		}
		if ev.Speaker == transcript.SpeakerUser && ev.Final {
			sawUserFinal = true
		}
	}
	if !sawUserFinal {
		t.Fatal("expected a user final event")
	}
}

func TestForceFinalizeUsesConfirmedText(t *testing.T) {
	em, _ := collect()
	a := NewAggregator(em, 0)

	a.OnIncrement(transcript.SpeakerBot, Increment{Text: "Your balance is"})
	fin, ok := a.ForceFinalize(transcript.SpeakerBot)
	if !ok || fin.Text != "Your balance is" {
		t.Fatalf("forced finalization got (%q, %v)", fin.Text, ok)
	}
	// A second force is a no-op.
	if _, ok := a.ForceFinalize(transcript.SpeakerBot); ok {
		t.Fatal("force on closed utterance should be a no-op")
	}
}

func TestExplicitFinalWinsOverForce(t *testing.T) {
	em, got := collect()
	a := NewAggregator(em, 0)

	a.OnIncrement(transcript.SpeakerUser, Increment{Text: "pay my"})
	// Explicit final lands first (pump ordering), force follows.
	fin, _ := a.OnIncrement(transcript.SpeakerUser, Increment{Text: "bill", Final: true})
	if fin.Text != "pay my bill" {
		t.Fatalf("final text %q", fin.Text)
	}
	if _, ok := a.ForceFinalize(transcript.SpeakerUser); ok {
		t.Fatal("trailing force must not re-seal")
	}
	finals := 0
	for _, ev := range *got {
		if ev.Final && ev.Speaker == transcript.SpeakerUser {
			finals++
		}
	}
	if finals != 1 {
		t.Fatalf("exactly one final event should close the utterance, got %d", finals)
	}
}

func TestEmptyFinalSealsOpenUtterance(t *testing.T) {
	em, _ := collect()
	a := NewAggregator(em, 0)

	a.OnIncrement(transcript.SpeakerUser, Increment{Text: "hello"})
	fin, sealed := a.OnIncrement(transcript.SpeakerUser, Increment{Text: "   ", Final: true})
	if !sealed || fin.Text != "hello" {
		t.Fatalf("empty final should seal with confirmed text, got (%q, %v)", fin.Text, sealed)
	}
}

func TestSealCarriesDetectedLanguage(t *testing.T) {
	em, _ := collect()
	a := NewAggregator(em, 0)

	a.OnIncrement(transcript.SpeakerUser, Increment{Text: "privet", Language: "ru"})
	fin, sealed := a.OnIncrement(transcript.SpeakerUser, Increment{Text: "mir", Final: true})
	if !sealed || fin.Text != "privet mir" {
		t.Fatalf("sealed (%q, %v)", fin.Text, sealed)
	}
	if fin.Language != "ru" {
		t.Fatalf("detected language %q, want ru", fin.Language)
	}

	// Forced finalization reports it too.
	a.OnIncrement(transcript.SpeakerUser, Increment{Text: "hola", Language: "es"})
	fin, ok := a.ForceFinalize(transcript.SpeakerUser)
	if !ok || fin.Language != "es" {
		t.Fatalf("forced seal language %q ok=%v, want es", fin.Language, ok)
	}
}

func TestZeroConfidenceIsNotDropped(t *testing.T) {
	em, _ := collect()
	a := NewAggregator(em, 0.5)
	a.OnIncrement(transcript.SpeakerUser, Increment{Text: "hello", Confidence: 0})
	if a.OpenText(transcript.SpeakerUser) != "hello" {
		t.Fatal("provider without confidence reporting must not be filtered")
	}
}

func TestPreviewEmitsWithoutCommitting(t *testing.T) {
	em, got := collect()
	a := NewAggregator(em, 0)

	a.OnIncrement(transcript.SpeakerUser, Increment{Text: "check my"})
	a.Preview(transcript.SpeakerUser, "balance pl", "")
	a.Preview(transcript.SpeakerUser, "balance please", "")

	if a.OpenText(transcript.SpeakerUser) != "check my" {
		t.Fatalf("preview must not commit, open text %q", a.OpenText(transcript.SpeakerUser))
	}
	last := (*got)[len(*got)-1]
	if last.Final || last.Text != "check my balance please" {
		t.Fatalf("preview event %+v", last)
	}

	fin, sealed := a.OnIncrement(transcript.SpeakerUser, Increment{Text: "balance please", Final: true})
	if !sealed || fin.Text != "check my balance please" {
		t.Fatalf("sealed text %q", fin.Text)
	}
}

func TestPreviewAloneLeavesNothingOpen(t *testing.T) {
	em, _ := collect()
	a := NewAggregator(em, 0)
	a.Preview(transcript.SpeakerUser, "hel", "")
	if _, ok := a.ForceFinalize(transcript.SpeakerUser); ok {
		t.Fatal("a bare preview must not open an utterance")
	}
}
