// Package wake owns the half-duplex arbitration between microphone
// capture and TTS playback. It never touches audio hardware: it reacts
// to detector results, tts/status, and stt/final, and publishes
// wake/event, wake/mic, and tts/control envelopes.
package wake

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tars-project/tars/internal/metrics"
	"github.com/tars-project/tars/internal/topics"
)

// Options configures a Machine. IdleTimeout and InterruptWindow are
// loaded from WAKE_IDLE_TIMEOUT and WAKE_INTERRUPT_WINDOW in the
// environment contract (internal/config).
type Options struct {
	IdleTimeout     time.Duration
	InterruptWindow time.Duration
	InstanceID      string // prefixes published session_ids for log correlation
	Log             zerolog.Logger
}

// Machine is the single-goroutine actor owning all wake/TTS state.
// Every exported method enqueues an event (TTSState also waits for
// the loop's reply); all state mutation happens inside run, so
// nothing here needs a mutex.
type Machine struct {
	publish Publisher
	opts    Options
	log     zerolog.Logger

	input chan any
	done  chan struct{}
	once  sync.Once

	ttsState        TTSState
	ttsUttID        string
	activeInterrupt *activeInterrupt
	idleEpoch       int
	interruptEpoch  int
	sessionCounter  int
}

// New builds a Machine in the idle state. Call Start to begin
// processing.
func New(publish Publisher, opts Options) *Machine {
	return &Machine{
		publish:  publish,
		opts:     opts,
		log:      opts.Log,
		input:    make(chan any, 64),
		done:     make(chan struct{}),
		ttsState: TTSIdle,
	}
}

// Start runs the machine's event loop in a new goroutine.
func (m *Machine) Start() {
	go m.run()
}

// Stop terminates the event loop. Idempotent.
func (m *Machine) Stop() {
	m.once.Do(func() { close(m.done) })
}

// OnDetection feeds one detector result into the machine.
func (m *Machine) OnDetection(r DetectionResult) {
	m.send(detectionMsg{r})
}

// OnTTSStatus feeds a parsed tts/status event into the machine.
// Parsing/validation of the incoming envelope is the caller's
// responsibility; an unparseable message must be logged and dropped
// before it reaches here.
func (m *Machine) OnTTSStatus(event, uttID string) {
	m.send(ttsStatusMsg{event: event, uttID: uttID})
}

// OnSTTFinal feeds a final transcript into the machine.
func (m *Machine) OnSTTFinal(text string) {
	m.send(sttFinalMsg{text: text})
}

// OnDetectorFailure reports that the detector itself failed to load or
// run. The machine publishes an error event and stops.
func (m *Machine) OnDetectorFailure(err error) {
	m.send(detectorFailureMsg{err: err})
}

func (m *Machine) send(msg any) {
	select {
	case m.input <- msg:
	case <-m.done:
	}
}

// TTSState reports the machine's current playback state. Intended for
// tests and diagnostics; not used for control flow by callers.
func (m *Machine) TTSState() TTSState {
	ch := make(chan TTSState, 1)
	select {
	case m.input <- queryStateMsg{reply: ch}:
	case <-m.done:
		return ""
	}
	select {
	case s := <-ch:
		return s
	case <-m.done:
		return ""
	}
}

type queryStateMsg struct{ reply chan<- TTSState }

func (m *Machine) run() {
	for {
		select {
		case raw := <-m.input:
			if failure, ok := raw.(detectorFailureMsg); ok {
				m.publishWakeEvent(WakeEventPayload{Type: "error", Cause: "detector_failure"}, "")
				m.log.Error().Err(failure.err).Msg("detector failure, stopping wake activation")
				return
			}
			m.dispatch(raw)
		case <-m.done:
			return
		}
	}
}

func (m *Machine) dispatch(raw any) {
	switch msg := raw.(type) {
	case detectionMsg:
		m.handleDetection(msg.result)
	case ttsStatusMsg:
		m.handleTTSStatus(msg.event, msg.uttID)
	case sttFinalMsg:
		m.handleSTTFinal(msg.text)
	case idleTimeoutMsg:
		m.handleIdleTimeout(msg.epoch)
	case interruptTimeoutMsg:
		m.handleInterruptTimeout(msg.epoch)
	case queryStateMsg:
		msg.reply <- m.ttsState
	}
}

// handleDetection implements transitions 1 and 2.
func (m *Machine) handleDetection(r DetectionResult) {
	sessionID := m.nextSessionID()

	switch m.ttsState {
	case TTSIdle:
		m.publishWakeEvent(WakeEventPayload{
			Type: "wake", Confidence: r.Score, Energy: r.Energy,
			Cause: "wake_phrase", SessionID: sessionID,
		}, "")
		m.publishMic(MicPayload{
			Action: "unmute", Reason: "wake",
			TTLMs: m.opts.IdleTimeout.Milliseconds(), SessionID: sessionID,
		})
		m.startIdleTimeout()

	case TTSSpeaking:
		ttsID := m.ttsUttID
		metrics.WakeInterruptsTotal.Inc()
		m.publishWakeEvent(WakeEventPayload{
			Type: "interrupt", TTSID: ttsID, Cause: "double_wake", SessionID: sessionID,
		}, "")
		m.publishMic(MicPayload{
			Action: "unmute", Reason: "wake",
			TTLMs: m.opts.IdleTimeout.Milliseconds(), SessionID: sessionID,
		})
		m.publishTTSControl(TTSControlPayload{Action: "pause", ID: ttsID, SessionID: sessionID})

		m.ttsState = TTSPaused
		m.activeInterrupt = &activeInterrupt{
			ttsID:    ttsID,
			deadline: time.Now().Add(m.opts.InterruptWindow),
		}
		m.startIdleTimeout()
		m.startInterruptTimeout()

	case TTSPaused:
		m.log.Debug().Msg("wake detected while already paused, ignoring")
	}
}

// handleSTTFinal implements transition 3. A final transcript always
// closes the open mic window; cancel-phrase handling only applies
// while an interrupt is pending.
func (m *Machine) handleSTTFinal(text string) {
	m.idleEpoch++ // cancel any pending idle_timeout

	if m.activeInterrupt == nil {
		return
	}

	ttsID := m.activeInterrupt.ttsID
	normalized := normalize(text)

	if isCancelPhrase(normalized) {
		m.publishTTSControl(TTSControlPayload{Action: "stop", ID: ttsID})
		m.publishWakeEvent(WakeEventPayload{Type: "cancelled", Cause: "cancel", TTSID: ttsID}, "")
		m.activeInterrupt = nil
		m.interruptEpoch++
		m.ttsState = TTSIdle
		return
	}

	// Any other final utterance: drop the interrupt window but leave
	// playback parked so downstream producers know it's still paused.
	m.interruptEpoch++
	m.activeInterrupt = nil
}

// handleInterruptTimeout implements transition 4.
func (m *Machine) handleInterruptTimeout(epoch int) {
	if epoch != m.interruptEpoch {
		return // stale, already cancelled
	}

	var ttsID string
	if m.activeInterrupt != nil {
		ttsID = m.activeInterrupt.ttsID
	}

	m.publishWakeEvent(WakeEventPayload{Type: "resume", Cause: "timeout", TTSID: ttsID}, "")
	m.publishTTSControl(TTSControlPayload{Action: "resume", ID: ttsID})
	m.ttsState = TTSSpeaking
	m.activeInterrupt = nil
}

// handleIdleTimeout implements transition 5.
func (m *Machine) handleIdleTimeout(epoch int) {
	if epoch != m.idleEpoch {
		return // stale, already cancelled
	}

	m.publishWakeEvent(WakeEventPayload{Type: "timeout", Cause: "silence"}, "")

	if m.activeInterrupt != nil {
		m.publishTTSControl(TTSControlPayload{Action: "resume", ID: m.activeInterrupt.ttsID})
		m.ttsState = TTSSpeaking
		m.activeInterrupt = nil
		m.interruptEpoch++
		return
	}

	m.ttsState = TTSIdle
}

// handleTTSStatus implements transition 6.
func (m *Machine) handleTTSStatus(event, uttID string) {
	switch event {
	case "speaking_start", "resumed":
		m.ttsState = TTSSpeaking
		m.ttsUttID = uttID
		m.interruptEpoch++ // cancel any pending interrupt_timeout
	case "paused":
		m.ttsState = TTSPaused
	case "speaking_end", "stopped":
		m.ttsState = TTSIdle
		m.ttsUttID = ""
		m.activeInterrupt = nil
		m.interruptEpoch++
	default:
		m.log.Debug().Str("event", event).Msg("unrecognized tts/status event, ignoring")
	}
}

func (m *Machine) startIdleTimeout() {
	m.idleEpoch++
	epoch := m.idleEpoch
	timeout := m.opts.IdleTimeout

	go func() {
		select {
		case <-time.After(timeout):
			m.send(idleTimeoutMsg{epoch: epoch})
		case <-m.done:
		}
	}()
}

func (m *Machine) startInterruptTimeout() {
	m.interruptEpoch++
	epoch := m.interruptEpoch
	window := m.opts.InterruptWindow

	go func() {
		select {
		case <-time.After(window):
			m.send(interruptTimeoutMsg{epoch: epoch})
		case <-m.done:
		}
	}()
}

func (m *Machine) nextSessionID() string {
	m.sessionCounter++
	return fmt.Sprintf("%s-%d", m.opts.InstanceID, m.sessionCounter)
}

func (m *Machine) publishWakeEvent(p WakeEventPayload, correlate string) {
	metrics.WakeTransitionsTotal.WithLabelValues(p.Cause).Inc()
	t := topics.WakeEvent
	if err := m.publish.PublishEvent(t.Name, t.EventType, p, correlate, t.QoS, t.Retained); err != nil {
		m.log.Error().Err(err).Msg("failed to publish wake/event")
	}
}

func (m *Machine) publishMic(p MicPayload) {
	t := topics.WakeMic
	if err := m.publish.PublishEvent(t.Name, t.EventType, p, "", t.QoS, t.Retained); err != nil {
		m.log.Error().Err(err).Msg("failed to publish wake/mic")
	}
}

func (m *Machine) publishTTSControl(p TTSControlPayload) {
	t := topics.TTSControl
	if err := m.publish.PublishEvent(t.Name, t.EventType, p, "", t.QoS, t.Retained); err != nil {
		m.log.Error().Err(err).Msg("failed to publish tts/control")
	}
}
