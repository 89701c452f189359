// Package session owns the per-call pipeline: one transport connection wired
// through voice-activity detection, streaming recognition, utterance
// aggregation, backend dispatch, response streaming, synthesis and paced
// egress, all under a single turn-taking state machine.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"vox/agent/internal/audio"
	"vox/agent/internal/dispatch"
	"vox/agent/internal/egress"
	"vox/agent/internal/events"
	"vox/agent/internal/recog"
	"vox/agent/internal/respond"
	"vox/agent/internal/synth"
	"vox/agent/internal/transcript"
	"vox/agent/internal/transport"
	"vox/agent/internal/turn"
	"vox/agent/internal/utterance"
	"vox/agent/internal/vad"
)

// Status is the session lifecycle phase.
type Status string

const (
	StatusConnecting Status = "CONNECTING"
	StatusActive     Status = "ACTIVE"
	StatusClosing    Status = "CLOSING"
	StatusClosed     Status = "CLOSED"
)

// Config selects the conversational identity of one session.
type Config struct {
	ID       string
	Agent    string
	Language string
	Voice    string
}

// Session is one live call. All pipeline goroutines hang off ctx and exit
// when the session is destroyed.
type Session struct {
	ID        string
	CreatedAt time.Time

	cfg  Config
	opts Options

	conn    transport.Conn
	turns   *turn.Controller
	det     *vad.Detector
	rec     recog.Recognizer
	agg     *utterance.Aggregator
	disp    *dispatch.Dispatcher
	str     *respond.Streamer
	syn     synth.Synthesizer
	sched   *egress.Scheduler
	emitter *transcript.Emitter
	journal *events.Store

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	vadMu sync.Mutex // det is shared by readLoop and turn goroutines

	mu           sync.Mutex
	status       Status
	lastActivity time.Time
	turnCancel   context.CancelFunc // in-flight backend request
	speakCancel  context.CancelFunc // in-flight synthesis/egress
	userFinal    *utterance.Final   // seal captured by the finalize hook

	outSeq  atomic.Uint64
	onClose func(id string) // manager teardown, set once before start
}

func newSession(conn transport.Conn, cfg Config, opts Options, c Collaborators, journal *events.Store) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:        cfg.ID,
		CreatedAt: time.Now().UTC(),
		cfg:       cfg,
		opts:      opts,
		conn:      conn,
		rec:       c.NewRecognizer(cfg.Language),
		syn:       c.Synth,
		str:       respond.New(),
		journal:   journal,
		ctx:       ctx,
		cancel:    cancel,
		status:    StatusConnecting,
	}

	s.det = vad.New(opts.VADMinRMS, opts.VADMinStart, opts.VADHangover)
	s.disp = dispatch.New(c.Backend, opts.BackendTimeout)

	s.emitter = transcript.NewEmitter(func(ev transcript.Event) {
		_ = conn.WriteEvent(ctx, map[string]any{"type": "transcript", "data": ev})
		journal.Append(cfg.ID, "transcript", map[string]any{
			"speaker": string(ev.Speaker), "text": ev.Text, "is_final": ev.Final, "seq": ev.Seq,
		})
	})
	s.agg = utterance.NewAggregator(s.emitter, opts.MinConfidence)

	s.sched = egress.New(func(f audio.Frame) error {
		return conn.WriteFrame(ctx, f.PCM)
	}, opts.EgressDepth, time.Duration(opts.FrameMs)*time.Millisecond)

	s.turns = turn.New(turn.Hooks{
		CancelBackend:         s.cancelTurn,
		DiscardOutput:         s.discardOutput,
		FinalizeBotUtterance: func() { s.agg.ForceFinalize(transcript.SpeakerBot) },
		FinalizeUserUtterance: func() {
			// The seal is captured here, inside the transition, so the
			// dispatched text can never miss a fragment committed between a
			// snapshot and the turn boundary.
			if fin, ok := s.agg.ForceFinalize(transcript.SpeakerUser); ok {
				s.mu.Lock()
				s.userFinal = &fin
				s.mu.Unlock()
			}
		},
		OnTransition: func(from, to turn.State) {
			_ = conn.WriteEvent(ctx, map[string]any{"type": "turn_state", "from": from.String(), "to": to.String()})
		},
	})
	s.lastActivity = time.Now()
	return s
}

// start brings the pipeline up. Recognition failure here is fatal for the
// session; the caller surfaces the error to the client.
func (s *Session) start() error {
	if err := s.rec.Start(s.ctx, s.cfg.Language); err != nil {
		return err
	}
	s.mu.Lock()
	s.status = StatusActive
	s.mu.Unlock()

	s.wg.Add(3)
	go s.readLoop()
	go s.recogPump()
	go func() {
		defer s.wg.Done()
		s.sched.Run(s.ctx)
	}()

	metricSessionsActive.Inc()
	log.Printf("[session] started id=%s agent=%s lang=%s", s.ID, s.cfg.Agent, s.cfg.Language)
	return nil
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) TurnState() turn.State { return s.turns.State() }

// Config returns the session's conversational selection. Immutable after
// creation.
func (s *Session) Config() Config { return s.cfg }

// LastActivity is the last time user audio arrived or the bot spoke.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// readLoop pulls inbound PCM off the transport, feeds the recognizer and
// drives barge-in from local voice activity.
func (s *Session) readLoop() {
	defer s.wg.Done()
	for {
		pcm, err := s.conn.ReadFrame(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil {
				log.Printf("[session] transport lost id=%s: %v", s.ID, err)
				s.journal.Append(s.ID, "error", map[string]any{"code": "TRANSPORT_LOST"})
				metricErrors.WithLabelValues("transport_lost").Inc()
				if s.onClose != nil {
					go s.onClose(s.ID)
				}
			}
			return
		}
		s.handleInbound(pcm)
	}
}

// handleInbound feeds one inbound PCM chunk through admission and VAD.
func (s *Session) handleInbound(pcm []byte) {
	s.touch()
	metricInboundFrames.Inc()

	if !s.rec.SendAudio(pcm) {
		metricRecogDrops.Inc()
	}

	// Local VAD owns barge-in and speech onset. Utterance boundaries come
	// from the recognition stream instead, so an explicit final always
	// orders ahead of the boundary that would force-finalize it.
	s.vadMu.Lock()
	ev := s.det.Observe(audio.RMS(pcm), time.Now())
	s.vadMu.Unlock()
	if ev == vad.SpeechStart {
		st := s.turns.State()
		if st == turn.BotSpeaking || st == turn.Dispatched {
			if s.turns.RequestInterrupt() {
				s.journal.Append(s.ID, "interrupt", nil)
			}
		} else {
			s.turns.SignalUserSpeechStart()
		}
	}
}

// recogPump drains the recognizer's event stream into the aggregator and the
// turn machine.
func (s *Session) recogPump() {
	defer s.wg.Done()
	for ev := range s.rec.Events() {
		switch ev.Kind {
		case recog.KindInterim:
			s.turns.SignalUserSpeechStart() // no-op unless Idle
			s.agg.Preview(transcript.SpeakerUser, ev.Text, ev.Language)

		case recog.KindFinal:
			s.turns.SignalUserSpeechStart() // open the turn if the detector missed onset
			fin, sealed := s.agg.OnIncrement(transcript.SpeakerUser, utterance.Increment{
				Text: ev.Text, Final: true, Confidence: ev.Confidence, Language: ev.Language,
			})
			if sealed && fin.Text != "" && s.turns.SignalUserSpeechEnd() {
				s.dispatchUserText(fin)
			}

		case recog.KindSpeechStart:
			// Local VAD already owns barge-in. Upstream start only opens the
			// user turn when the detector missed it.
			s.turns.SignalUserSpeechStart()

		case recog.KindSpeechEnd:
			if s.turns.State() == turn.UserSpeaking {
				s.endUserTurn()
			}

		case recog.KindError:
			log.Printf("[session] recognition error id=%s: %v", s.ID, ev.Err)
			s.journal.Append(s.ID, "error", map[string]any{"code": "RECOGNITION_FAILURE"})
			metricErrors.WithLabelValues("recognition_failure").Inc()
			_ = s.conn.WriteEvent(s.ctx, map[string]any{"type": "error", "code": "RECOGNITION_FAILURE"})
			// Salvage whatever was heard, then hand the floor back.
			if fin, ok := s.agg.ForceFinalize(transcript.SpeakerUser); ok && fin.Text != "" {
				if s.turns.SignalUserSpeechEnd() {
					s.dispatchUserText(fin)
					continue
				}
			}
			if st := s.turns.State(); st == turn.UserSpeaking {
				s.turns.Reset()
			}
		}
	}
}

// endUserTurn seals the open user utterance on a speech boundary. An explicit
// recognizer final may already have sealed and dispatched it; then the
// FinalizeUserUtterance hook is a no-op and nothing is dispatched twice.
func (s *Session) endUserTurn() {
	if !s.turns.SignalUserSpeechEnd() {
		return
	}
	fin, ok := s.takeUserFinal()
	if ok && fin.Text != "" {
		s.dispatchUserText(fin)
	} else {
		// Nothing usable was heard this turn.
		s.turns.Reset()
	}
}

// takeUserFinal consumes the seal the FinalizeUserUtterance hook captured.
func (s *Session) takeUserFinal() (utterance.Final, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fin := s.userFinal
	s.userFinal = nil
	if fin == nil {
		return utterance.Final{}, false
	}
	return *fin, true
}

// dispatchUserText starts a reply turn for a sealed user utterance. The
// detected language, when the recognizer reported one, overrides the
// configured selection so "auto" sessions bind to the language actually
// spoken.
func (s *Session) dispatchUserText(fin utterance.Final) {
	lang := fin.Language
	if lang == "" {
		lang = s.cfg.Language
	}
	go s.runTurn(fin.Text, lang)
}

// runTurn drives one request/reply turn: backend stream -> unit cutting ->
// synthesis -> paced egress. It runs on its own goroutine; barge-in reaches
// it through the two cancel funcs registered on the session.
func (s *Session) runTurn(text, language string) {
	ctx, cancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	s.turnCancel = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		s.turnCancel = nil
		s.speakCancel = nil
		s.mu.Unlock()
	}()

	started := time.Now()
	tokens, errs, err := s.disp.Dispatch(ctx, s.cfg.Agent, language, text)
	if err != nil {
		s.reportTurnFailure(ctx, err)
		return
	}

	speakCtx, speakCancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.speakCancel = speakCancel
	s.mu.Unlock()

	firstUnit := true
	spoken, runErr := s.str.Run(speakCtx, tokens, func(uctx context.Context, unit string) error {
		if firstUnit {
			firstUnit = false
			if !s.turns.SignalBotSpeechStart() {
				speakCancel()
				return context.Canceled
			}
			s.armGuard()
			metricTurnLatency.Observe(time.Since(started).Seconds())
		}
		return s.speakUnit(uctx, unit)
	})
	speakCancel()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Printf("[session] stream turn id=%s: %v", s.ID, runErr)
	}
	if ctx.Err() != nil {
		// Barge-in: the interrupt hooks already discarded output and sealed
		// the bot utterance with what was actually spoken.
		return
	}

	select {
	case berr := <-errs:
		if berr != nil && spoken == "" {
			s.reportTurnFailure(ctx, berr)
			return
		}
	default:
	}

	if spoken == "" {
		// Backend produced nothing speakable.
		s.turns.Reset()
		return
	}
	s.touch()
	s.turns.SignalBotSpeechEnd()
}

// speakUnit synthesizes one reply unit and enqueues its frames for paced
// delivery. The unit joins the bot's open utterance only once fully queued,
// so an interrupted reply finalizes to what the user could actually hear.
func (s *Session) speakUnit(ctx context.Context, unit string) error {
	chunks, errs := s.syn.Speak(ctx, unit, s.cfg.Voice)
	for pcm := range chunks {
		f := audio.Frame{Seq: s.outSeq.Add(1), Dir: audio.Outbound, PCM: pcm}
		if err := s.sched.Enqueue(ctx, f); err != nil {
			return err
		}
	}
	if err := <-errs; err != nil {
		if ctx.Err() != nil {
			return ctx.Err() // interrupted, not a synthesis fault
		}
		s.journal.Append(s.ID, "error", map[string]any{"code": "SYNTHESIS_FAILURE"})
		metricErrors.WithLabelValues("synthesis_failure").Inc()
		return err
	}
	// A barge-in may have landed while frames were queueing; the unit then
	// never fully reached the user and must not join the bot utterance.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.agg.OnIncrement(transcript.SpeakerBot, utterance.Increment{Text: unit})
	return nil
}

// reportTurnFailure handles an unreachable backend: one client-visible error
// event plus a spoken fallback so the caller is not left in silence.
func (s *Session) reportTurnFailure(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return
	}
	log.Printf("[session] backend unavailable id=%s: %v", s.ID, err)
	s.journal.Append(s.ID, "error", map[string]any{"code": "BACKEND_UNAVAILABLE"})
	metricErrors.WithLabelValues("backend_unavailable").Inc()
	_ = s.conn.WriteEvent(s.ctx, map[string]any{"type": "error", "code": "BACKEND_UNAVAILABLE"})

	if s.opts.FallbackPhrase == "" || !s.turns.SignalBotSpeechStart() {
		s.turns.Reset()
		return
	}
	s.armGuard()
	if err := s.speakUnit(ctx, s.opts.FallbackPhrase); err != nil {
		log.Printf("[session] fallback speak id=%s: %v", s.ID, err)
	}
	if ctx.Err() == nil {
		s.turns.SignalBotSpeechEnd()
	}
}

// armGuard clears detector state and opens the echo guard window when bot
// playback begins.
func (s *Session) armGuard() {
	s.vadMu.Lock()
	s.det.Reset()
	s.det.Arm(time.Duration(s.opts.GuardMs)*time.Millisecond, time.Now())
	s.vadMu.Unlock()
}

func (s *Session) cancelTurn() {
	s.mu.Lock()
	cancel := s.turnCancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) discardOutput() {
	s.mu.Lock()
	cancel := s.speakCancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if n := s.sched.Flush(); n > 0 {
		log.Printf("[session] flushed %d queued frames id=%s", n, s.ID)
	}
}

// destroy tears the pipeline down. Safe to call more than once.
func (s *Session) destroy(reason string) {
	s.mu.Lock()
	if s.status == StatusClosing || s.status == StatusClosed {
		s.mu.Unlock()
		return
	}
	wasActive := s.status == StatusActive
	s.status = StatusClosing
	s.mu.Unlock()

	s.turns.Close()
	s.cancelTurn()
	s.rec.Cancel()
	s.cancel()
	_ = s.conn.Close(reason)
	s.wg.Wait()

	s.mu.Lock()
	s.status = StatusClosed
	s.mu.Unlock()
	if wasActive {
		metricSessionsActive.Dec()
	}
	log.Printf("[session] destroyed id=%s reason=%s", s.ID, reason)
}
