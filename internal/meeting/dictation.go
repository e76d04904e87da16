package meeting

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"meetline/internal/config"
	"meetline/internal/domain"
	"meetline/internal/metrics"
)

// RecognitionEvent is one message from a recognition channel. Err set means
// the channel failed; otherwise Transcript is interim or final.
type RecognitionEvent struct {
	Transcript string
	IsFinal    bool
	Err        error
}

// Options configure a recognition channel.
type Options struct {
	Locale     string
	Continuous bool
	Interim    bool
}

// Channel is one recognition session. Events is closed at end of stream.
type Channel interface {
	Events() <-chan RecognitionEvent
	Close() error
}

// Recognizer opens recognition channels.
type Recognizer interface {
	Available() bool
	Open(ctx context.Context, opts Options) (Channel, error)
}

// RestartPolicy bounds automatic channel restarts. A channel that ends within
// QuickSessionWindow without a final result counts as a rapid restart.
type RestartPolicy struct {
	QuickSessionWindow time.Duration
	MaxRapidRestarts   int
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration
}

func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{
		QuickSessionWindow: time.Second,
		MaxRapidRestarts:   5,
		InitialBackoff:     250 * time.Millisecond,
		MaxBackoff:         5 * time.Second,
	}
}

// RestartPolicyFromConfig fills the policy from meetline.yml values.
func RestartPolicyFromConfig(cfg config.DictationConfig) RestartPolicy {
	p := DefaultRestartPolicy()
	if cfg.QuickSessionWindow > 0 {
		p.QuickSessionWindow = cfg.QuickSessionWindow
	}
	if cfg.MaxRapidRestarts > 0 {
		p.MaxRapidRestarts = cfg.MaxRapidRestarts
	}
	if cfg.RestartBackoff > 0 {
		p.InitialBackoff = cfg.RestartBackoff
	}
	return p
}

// Backoff is the wait before the n-th restart past MaxRapidRestarts.
func (p RestartPolicy) Backoff(n int) time.Duration {
	backoff := p.InitialBackoff
	for i := 1; i < n; i++ {
		backoff *= 2
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return backoff
}

// Dictation turns recognized speech into voice notes. One supervised
// goroutine owns at most one live channel and restarts it while the user
// keeps dictation on.
type Dictation struct {
	Recognizer Recognizer
	Notes      *Notes
	Locale     string
	Policy     RestartPolicy
	Metrics    *metrics.Dictation
	Log        zerolog.Logger
	Now        func() time.Time

	// Hooks run on the dictation goroutine. OnInterim and OnError must not
	// call StopListening.
	OnInterim func(text string)
	// OnError gets channel and commit errors that do not stop dictation.
	OnError func(err error)
	// OnStopped runs when dictation ends by itself; err is the cause.
	OnStopped func(err error)

	mu        sync.Mutex
	active    bool
	meetingID string
	interim   string
	err       error
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewDictation(r Recognizer, notes *Notes) *Dictation {
	return &Dictation{
		Recognizer: r,
		Notes:      notes,
		Locale:     "ru-RU",
		Policy:     DefaultRestartPolicy(),
		Log:        zerolog.Nop(),
		Now:        time.Now,
	}
}

// StartListening turns dictation on for the meeting. It is a no-op while
// already active.
func (d *Dictation) StartListening(ctx context.Context, meetingID string) error {
	d.mu.Lock()
	if d.active {
		d.mu.Unlock()
		return nil
	}
	prev := d.done
	d.mu.Unlock()
	if prev != nil {
		<-prev
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active {
		return nil
	}
	if d.Recognizer == nil || !d.Recognizer.Available() {
		return domain.ErrUnsupportedEnvironment
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.active = true
	d.meetingID = meetingID
	d.interim = ""
	d.err = nil
	d.cancel = cancel
	d.done = done
	go d.run(loopCtx, meetingID, done)
	d.Log.Info().Str("meeting_id", meetingID).Msg("dictation started")
	return nil
}

// StopListening turns dictation off, drops interim text and waits for the
// loop to exit. Safe to call at any time.
func (d *Dictation) StopListening() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	wasActive := d.active
	d.active = false
	d.interim = ""
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if wasActive {
		d.Log.Info().Msg("dictation stopped")
	}
}

func (d *Dictation) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// MeetingID is the meeting dictation is, or was last, attached to.
func (d *Dictation) MeetingID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.meetingID
}

// Interim is the uncommitted transcript of the current utterance.
func (d *Dictation) Interim() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.interim
}

// Err is the error that stopped dictation by itself, if any.
func (d *Dictation) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *Dictation) run(ctx context.Context, meetingID string, done chan struct{}) {
	var stopErr error
	defer func() {
		d.mu.Lock()
		own := d.done == done
		if own {
			d.active = false
			d.interim = ""
			d.err = stopErr
		}
		d.mu.Unlock()
		close(done)
		if own && stopErr != nil && d.OnStopped != nil {
			d.OnStopped(stopErr)
		}
	}()

	policy := d.Policy
	if policy.MaxRapidRestarts < 1 {
		policy = DefaultRestartPolicy()
	}
	rapid := 0
	for {
		opened := d.now()
		finals, err := d.session(ctx, meetingID)
		if err != nil {
			stopErr = err
			if d.Metrics != nil {
				d.Metrics.ChannelErrors.WithLabelValues(errorKind(err)).Inc()
			}
			d.Log.Warn().Err(err).Str("meeting_id", meetingID).Msg("dictation stopped by recognizer")
			return
		}
		if ctx.Err() != nil {
			return
		}

		if finals == 0 && d.now().Sub(opened) < policy.QuickSessionWindow {
			rapid++
		} else {
			rapid = 0
		}
		if rapid >= 2*policy.MaxRapidRestarts {
			stopErr = domain.ErrRestartLimit
			d.Log.Warn().Int("rapid_restarts", rapid).Str("meeting_id", meetingID).Msg("dictation restart limit reached")
			return
		}
		kind := "normal"
		if rapid > policy.MaxRapidRestarts {
			kind = "backoff"
			wait := policy.Backoff(rapid - policy.MaxRapidRestarts)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		} else if rapid > 0 {
			kind = "rapid"
		}
		if d.Metrics != nil {
			d.Metrics.Restarts.WithLabelValues(kind).Inc()
		}
		d.Log.Debug().Str("kind", kind).Int("rapid_restarts", rapid).Msg("dictation restart")
	}
}

// session runs one channel to its end. A non-nil error stops dictation.
func (d *Dictation) session(ctx context.Context, meetingID string) (int, error) {
	ch, err := d.Recognizer.Open(ctx, Options{Locale: d.locale(), Continuous: true, Interim: true})
	if err != nil {
		if fatal(err) {
			return 0, err
		}
		if ctx.Err() != nil {
			return 0, nil
		}
		d.report(err)
		return 0, nil
	}
	defer ch.Close()
	if d.Metrics != nil {
		d.Metrics.ChannelsOpened.Inc()
	}

	finals := 0
	events := ch.Events()
	for {
		select {
		case <-ctx.Done():
			return finals, nil
		case ev, ok := <-events:
			if !ok {
				d.setInterim("")
				return finals, nil
			}
			switch {
			case ev.Err != nil:
				d.setInterim("")
				if fatal(ev.Err) {
					return finals, ev.Err
				}
				d.report(ev.Err)
				return finals, nil
			case ev.IsFinal:
				d.setInterim("")
				text := strings.TrimSpace(ev.Transcript)
				if text == "" {
					continue
				}
				// A final result is committed even if dictation is being stopped.
				if _, err := d.Notes.Add(context.WithoutCancel(ctx), meetingID, text, domain.SourceVoice); err != nil {
					d.report(err)
					continue
				}
				finals++
				if d.Metrics != nil {
					d.Metrics.UtterancesTotal.Inc()
				}
			default:
				d.setInterim(ev.Transcript)
				if d.OnInterim != nil {
					d.OnInterim(ev.Transcript)
				}
			}
		}
	}
}

func (d *Dictation) setInterim(text string) {
	d.mu.Lock()
	d.interim = text
	d.mu.Unlock()
}

func (d *Dictation) report(err error) {
	if d.Metrics != nil {
		d.Metrics.ChannelErrors.WithLabelValues(errorKind(err)).Inc()
	}
	d.Log.Warn().Err(err).Msg("dictation error")
	if d.OnError != nil {
		d.OnError(err)
	}
}

func (d *Dictation) locale() string {
	if d.Locale == "" {
		return "ru-RU"
	}
	return d.Locale
}

func (d *Dictation) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func fatal(err error) bool {
	return errors.Is(err, domain.ErrPermissionDenied) || errors.Is(err, domain.ErrUnsupportedEnvironment)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		return "permission"
	case errors.Is(err, domain.ErrEmptyNote), errors.Is(err, domain.ErrNotFound):
		return "commit"
	}
	return "channel"
}
