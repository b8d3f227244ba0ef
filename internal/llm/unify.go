package llm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/tmaxmax/go-sse"
)

const maxFrameSize = 4 << 20

var errEmptyBody = errors.New("empty response body")

// Unify reads one vendor response from body. Every event is passed to
// onEvent in decode order as soon as its frame is read; the folded result
// is returned once the vendor's terminal marker arrives or the body ends.
// A frame that fails to decode is logged and skipped.
func Unify(ctx context.Context, body io.Reader, adapter Adapter, onEvent func(Event)) (*Turn, error) {
	br := bufio.NewReaderSize(body, 64<<10)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errEmptyBody
		}
		return nil, err
	}

	u := &unifier{ctx: ctx, adapter: adapter, acc: NewAccumulator(), onEvent: onEvent}
	if adapter.Framing() == FramingSSE && first == '{' {
		return u.single(br)
	}
	if adapter.Framing() == FramingNDJSON {
		return u.lines(br)
	}
	return u.events(br)
}

type unifier struct {
	ctx     context.Context
	adapter Adapter
	acc     *Accumulator
	onEvent func(Event)
	frames  int
}

// apply folds events and reports whether a terminal event was seen.
func (u *unifier) apply(events []Event) bool {
	terminal := false
	for _, ev := range events {
		u.acc.Add(ev)
		if u.onEvent != nil {
			u.onEvent(ev)
		}
		if ev.Kind == Terminal {
			terminal = true
		}
	}
	return terminal
}

// frame decodes one frame. done is true on a terminal event.
func (u *unifier) frame(f Frame) (done bool, err error) {
	if err := u.ctx.Err(); err != nil {
		return false, err
	}
	u.frames++
	events, err := u.adapter.DecodeFrame(f)
	var streamErr *StreamError
	if errors.As(err, &streamErr) {
		return false, streamErr
	}
	if err != nil {
		slog.Warn("skipping malformed stream frame", "vendor", u.adapter.Vendor(), "error", err)
	}
	return u.apply(events), nil
}

func (u *unifier) single(r io.Reader) (*Turn, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", u.adapter.Vendor(), err)
	}
	events, err := u.adapter.DecodeBody(data)
	if err != nil {
		return nil, err
	}
	u.apply(events)
	return u.acc.Turn(false), nil
}

func (u *unifier) events(r io.Reader) (*Turn, error) {
	for ev, err := range sse.Read(r, &sse.ReadConfig{MaxEventSize: maxFrameSize}) {
		if err != nil {
			if ctxErr := u.ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("read %s stream: %w", u.adapter.Vendor(), err)
		}
		// Each data line is its own frame; a bad line never takes its
		// neighbours with it.
		for line := range strings.SplitSeq(ev.Data, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			done, err := u.frame(Frame{Event: ev.Type, Data: []byte(line)})
			if err != nil {
				return nil, err
			}
			if done {
				return u.acc.Turn(true), nil
			}
		}
	}
	slog.Debug("stream ended without terminal marker", "vendor", u.adapter.Vendor(), "frames", u.frames)
	return u.acc.Turn(true), nil
}

func (u *unifier) lines(r io.Reader) (*Turn, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxFrameSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		done, err := u.frame(Frame{Data: append([]byte(nil), line...)})
		if err != nil {
			return nil, err
		}
		if done {
			return u.acc.Turn(u.frames > 1), nil
		}
	}
	if err := scanner.Err(); err != nil {
		if ctxErr := u.ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("read %s stream: %w", u.adapter.Vendor(), err)
	}
	return u.acc.Turn(u.frames > 1), nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}
