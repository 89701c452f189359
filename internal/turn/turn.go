// Package turn owns the per-session speaking-rights state machine.
// Exactly one speaker may hold the floor at a time; an interrupt while the
// bot speaks (barge-in) forcibly hands the floor back to the user.
package turn

import "sync"

// State is the current holder of speaking rights for a session.
type State int

const (
	Idle State = iota
	UserSpeaking
	Dispatched // utterance sent to backend, awaiting reply
	BotSpeaking
	Closing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case UserSpeaking:
		return "USER_SPEAKING"
	case Dispatched:
		return "DISPATCHED"
	case BotSpeaking:
		return "BOT_SPEAKING"
	case Closing:
		return "CLOSING"
	}
	return "UNKNOWN"
}

// Hooks lets the host react to transitions. All funcs are optional.
// Interrupt side effects run in declaration order: cancel the in-flight
// backend request, discard buffered and in-flight output, finalize the
// bot's open utterance, then the state flips to UserSpeaking.
type Hooks struct {
	CancelBackend        func()
	DiscardOutput        func()
	FinalizeBotUtterance func()
	// FinalizeUserUtterance runs when the user's turn ends (UserSpeaking ->
	// Dispatched) so a still-open user utterance is sealed before dispatch.
	FinalizeUserUtterance func()
	OnTransition          func(from, to State)
}

// Controller serializes turn-taking for one session.
type Controller struct {
	mu           sync.Mutex
	state        State
	interrupting bool
	hooks        Hooks
}

func New(h Hooks) *Controller { return &Controller{hooks: h} }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SignalUserSpeechStart moves Idle -> UserSpeaking. Any other state is a
// no-op; barge-in goes through RequestInterrupt instead.
func (c *Controller) SignalUserSpeechStart() bool {
	return c.transition(Idle, UserSpeaking)
}

// SignalUserSpeechEnd moves UserSpeaking -> Dispatched and seals the user's
// open utterance.
func (c *Controller) SignalUserSpeechEnd() bool {
	ok := c.transition(UserSpeaking, Dispatched)
	if ok && c.hooks.FinalizeUserUtterance != nil {
		c.hooks.FinalizeUserUtterance()
	}
	return ok
}

// SignalBotSpeechStart moves Dispatched -> BotSpeaking.
func (c *Controller) SignalBotSpeechStart() bool {
	return c.transition(Dispatched, BotSpeaking)
}

// SignalBotSpeechEnd moves BotSpeaking -> Idle and finalizes the bot's open
// utterance.
func (c *Controller) SignalBotSpeechEnd() bool {
	ok := c.transition(BotSpeaking, Idle)
	if ok && c.hooks.FinalizeBotUtterance != nil {
		c.hooks.FinalizeBotUtterance()
	}
	return ok
}

// RequestInterrupt forces the floor back to the user while the bot holds it
// (BotSpeaking, or Dispatched with the reply still pending). While Idle or
// UserSpeaking it is a no-op. Reports whether an interrupt was performed.
func (c *Controller) RequestInterrupt() bool {
	c.mu.Lock()
	if c.interrupting || (c.state != BotSpeaking && c.state != Dispatched) {
		c.mu.Unlock()
		return false
	}
	from := c.state
	c.interrupting = true
	c.mu.Unlock()

	if c.hooks.CancelBackend != nil {
		c.hooks.CancelBackend()
	}
	if c.hooks.DiscardOutput != nil {
		c.hooks.DiscardOutput()
	}
	if c.hooks.FinalizeBotUtterance != nil {
		c.hooks.FinalizeBotUtterance()
	}

	c.mu.Lock()
	c.state = UserSpeaking
	c.interrupting = false
	c.mu.Unlock()

	metricInterrupts.Inc()
	c.notify(from, UserSpeaking)
	return true
}

// Reset returns the floor to Idle from any non-terminal state. Used for
// error recovery when a turn cannot proceed (e.g. the recognizer died with
// an utterance still open). No hooks run; the caller finalizes first.
func (c *Controller) Reset() bool {
	c.mu.Lock()
	if c.state == Closing || c.state == Idle {
		c.mu.Unlock()
		return false
	}
	from := c.state
	c.state = Idle
	c.mu.Unlock()
	c.notify(from, Idle)
	return true
}

// Close moves the controller to Closing regardless of current state.
// Closing is terminal for turn-taking purposes.
func (c *Controller) Close() {
	c.mu.Lock()
	from := c.state
	c.state = Closing
	c.mu.Unlock()
	if from != Closing {
		c.notify(from, Closing)
	}
}

func (c *Controller) transition(from, to State) bool {
	c.mu.Lock()
	if c.state != from {
		c.mu.Unlock()
		return false
	}
	c.state = to
	c.mu.Unlock()
	c.notify(from, to)
	return true
}

func (c *Controller) notify(from, to State) {
	metricTransitions.WithLabelValues(from.String(), to.String()).Inc()
	if c.hooks.OnTransition != nil {
		c.hooks.OnTransition(from, to)
	}
}
