// Package speech provides a line-driven recognizer for terminal dictation and
// scripted runs.
//
// Each line is one recognition event:
//
//	~text         interim transcript
//	text          final transcript
//	!deny         microphone permission denied
//	!error msg    transient recognition error
//	(blank)       end of the current channel
//
// At end of input the current channel ends and later channels stay open,
// silent, until closed. Done reports end of input; Drained reports that a
// channel was opened after it, so every earlier channel has been consumed.
package speech

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"meetline/internal/domain"
	"meetline/internal/meeting"
)

type LineRecognizer struct {
	// Unavailable makes the recognizer report no capability.
	Unavailable bool

	mu       sync.Mutex
	scanner  *bufio.Scanner
	eof      bool
	done     chan struct{}
	doneOnce sync.Once
	drained  chan struct{}
	drainOne sync.Once
	locales  []string
}

func NewLineRecognizer(r io.Reader) *LineRecognizer {
	return &LineRecognizer{scanner: bufio.NewScanner(r), done: make(chan struct{}), drained: make(chan struct{})}
}

// NewScript builds a recognizer over in-memory lines.
func NewScript(lines []string) *LineRecognizer {
	return NewLineRecognizer(strings.NewReader(strings.Join(lines, "\n")))
}

func (l *LineRecognizer) Available() bool { return !l.Unavailable }

// Done is closed once the input is exhausted.
func (l *LineRecognizer) Done() <-chan struct{} { return l.done }

// Drained is closed by the first Open after the input is exhausted.
func (l *LineRecognizer) Drained() <-chan struct{} { return l.drained }

// Locales lists the locale each channel was opened with.
func (l *LineRecognizer) Locales() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.locales...)
}

func (l *LineRecognizer) Open(ctx context.Context, opts meeting.Options) (meeting.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.locales = append(l.locales, opts.Locale)
	eof := l.eof
	l.mu.Unlock()
	c := &lineChannel{events: make(chan meeting.RecognitionEvent), closed: make(chan struct{})}
	go c.run(ctx, l, opts.Interim)
	if eof {
		l.drainOne.Do(func() { close(l.drained) })
	}
	return c, nil
}

func (l *LineRecognizer) next() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.eof {
		return "", false
	}
	if l.scanner.Scan() {
		return l.scanner.Text(), true
	}
	l.eof = true
	l.doneOnce.Do(func() { close(l.done) })
	return "", false
}

func (l *LineRecognizer) exhausted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.eof
}

type lineChannel struct {
	events    chan meeting.RecognitionEvent
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *lineChannel) Events() <-chan meeting.RecognitionEvent { return c.events }

func (c *lineChannel) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *lineChannel) run(ctx context.Context, l *LineRecognizer, interim bool) {
	defer close(c.events)
	if l.exhausted() {
		c.wait(ctx)
		return
	}
	for {
		line, ok := l.next()
		if !ok {
			return
		}
		ev, end := ParseLine(line)
		if end {
			return
		}
		if !interim && !ev.IsFinal && ev.Err == nil {
			continue
		}
		select {
		case c.events <- ev:
		case <-c.closed:
			return
		case <-ctx.Done():
			return
		}
		if ev.Err != nil {
			return
		}
	}
}

func (c *lineChannel) wait(ctx context.Context) {
	select {
	case <-c.closed:
	case <-ctx.Done():
	}
}

// ParseLine turns one input line into an event. end reports a blank line.
func ParseLine(line string) (ev meeting.RecognitionEvent, end bool) {
	text := strings.TrimSpace(line)
	switch {
	case text == "":
		return meeting.RecognitionEvent{}, true
	case text == "!deny":
		return meeting.RecognitionEvent{Err: domain.ErrPermissionDenied}, false
	case strings.HasPrefix(text, "!error"):
		msg := strings.TrimSpace(strings.TrimPrefix(text, "!error"))
		if msg == "" {
			msg = "recognition error"
		}
		return meeting.RecognitionEvent{Err: errors.New(msg)}, false
	case strings.HasPrefix(text, "~"):
		return meeting.RecognitionEvent{Transcript: strings.TrimSpace(text[1:])}, false
	}
	return meeting.RecognitionEvent{Transcript: text, IsFinal: true}, false
}
