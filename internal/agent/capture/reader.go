package capture

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

var ErrReaderClosed = errors.New("reader closed")

// Reader is polled by the capture loop. present is false when no tag is in
// the field.
type Reader interface {
	Poll(ctx context.Context) (tagID string, present bool, err error)
}

// LineReader turns a line-oriented source (a keyboard-wedge reader on
// stdin, a serial device) into a Reader. Each line is one tap; the poll
// after a tap always reports the field empty.
type LineReader struct {
	lines chan string
	done  chan struct{}

	mu       sync.Mutex
	err      error
	afterTap bool
}

func NewLineReader(r io.Reader) *LineReader {
	lr := &LineReader{
		lines: make(chan string, 64),
		done:  make(chan struct{}),
	}
	go lr.scan(r)
	return lr
}

func (lr *LineReader) scan(r io.Reader) {
	defer close(lr.done)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lr.lines <- line
		}
	}

	err := sc.Err()
	if err == nil {
		err = ErrReaderClosed
	}
	lr.mu.Lock()
	lr.err = err
	lr.mu.Unlock()
}

func (lr *LineReader) Poll(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.afterTap {
		lr.afterTap = false
		return "", false, nil
	}

	select {
	case line := <-lr.lines:
		lr.afterTap = true
		return line, true, nil
	default:
	}

	select {
	case <-lr.done:
		// Lines queued before the source ended are still delivered.
		if len(lr.lines) > 0 {
			lr.afterTap = true
			return <-lr.lines, true, nil
		}
		return "", false, lr.err
	default:
		return "", false, nil
	}
}

// ScriptStep is one poll result for ScriptedReader. An empty Tag with no
// Err means the field is empty.
type ScriptStep struct {
	Tag string
	Err error
}

// ScriptedReader replays a fixed sequence of poll results and then reports
// an empty field forever.
type ScriptedReader struct {
	mu    sync.Mutex
	steps []ScriptStep
	polls int
}

func NewScriptedReader(steps ...ScriptStep) *ScriptedReader {
	return &ScriptedReader{steps: steps}
}

func (s *ScriptedReader) Poll(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.polls++
	if len(s.steps) == 0 {
		return "", false, nil
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	if st.Err != nil {
		return "", false, st.Err
	}
	return st.Tag, st.Tag != "", nil
}

// Polls reports how many times Poll has been called.
func (s *ScriptedReader) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

// Remaining reports how many scripted steps have not been polled yet.
func (s *ScriptedReader) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}
