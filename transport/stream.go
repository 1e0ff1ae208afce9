package transport

import (
	"context"
	"io"

	"github.com/driftware/b2go/internal/pool"
	"github.com/driftware/b2go/types"
)

type streamState int

const (
	stateConnecting streamState = iota
	stateCollecting
	stateCollectingError
	stateDone
)

// defaultStreamCapacity is the initial element-buffer allocation for a
// Stream whose caller gave no size hint.
const defaultStreamCapacity = 4096

// Stream resolves a pending exchange to a sequence of decoded list
// elements, emitting each element as soon as its bytes are fully buffered
// rather than waiting for the end of the body.
//
// A Stream is owned by exactly one goroutine. Calling Next after it has
// finished is a programming error and panics; it never silently returns
// stale data. Cancellation of the request context tears down the underlying
// body, and Close releases it early.
type Stream[T any] struct {
	ex       Exchange
	state    streamState
	body     io.ReadCloser
	dec      *PartialJSON[T]
	status   int
	errBody  []byte
	readBuf  *[]byte
	eof      bool
	level    int
	capacity int
}

// DecodeStream creates a Stream over the exchange. The level is the nesting
// depth of the list elements, as for NewPartialJSON.
func DecodeStream[T any](ex Exchange, level int) *Stream[T] {
	return &Stream[T]{
		ex:       ex,
		state:    stateConnecting,
		level:    level,
		capacity: defaultStreamCapacity,
	}
}

// Next returns the next decoded element. It returns (value, true, nil) for
// each element in body order, (zero, false, nil) exactly once when the
// stream ends cleanly, and (zero, false, err) on transport, decode, or API
// errors. After any of the latter two outcomes the stream is finished.
func (s *Stream[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	for {
		switch s.state {
		case stateConnecting:
			resp, err := s.ex.Do(ctx)
			if err != nil {
				s.state = stateDone
				return zero, false, asTransportError(err)
			}
			if isSuccess(resp.StatusCode) {
				s.body = resp.Body
				s.dec = NewPartialJSON[T](s.capacity, s.level)
				s.state = stateCollecting
			} else {
				s.body = resp.Body
				s.status = resp.StatusCode
				s.state = stateCollectingError
			}

		case stateCollecting:
			if v, ok, err := s.dec.Next(); err != nil {
				s.finish()
				return zero, false, err
			} else if ok {
				return v, true, nil
			}
			if s.eof {
				s.finish()
				return zero, false, nil
			}
			if s.readBuf == nil {
				s.readBuf = pool.GetReadBuffer()
			}
			buf := *s.readBuf
			n, err := s.body.Read(buf)
			if n > 0 {
				s.dec.Push(buf[:n])
			}
			switch {
			case err == nil:
			case err == io.EOF:
				s.eof = true
			default:
				s.finish()
				return zero, false, types.TransportError(err)
			}

		case stateCollectingError:
			// Error payloads are small, so here the whole body is
			// accumulated before decoding.
			body, err := io.ReadAll(io.LimitReader(s.body, maxErrorBody))
			s.errBody = body
			s.finish()
			if err != nil {
				return zero, false, types.TransportError(err)
			}
			return zero, false, decodeAPIError(s.status, s.errBody)

		case stateDone:
			panic("transport: Next called on finished Stream")
		}
	}
}

// Collect drains the stream into a slice.
func (s *Stream[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for {
		v, ok, err := s.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
}

// Close releases the underlying body without consuming the rest of the
// stream. It is safe to call more than once and after the stream finished.
func (s *Stream[T]) Close() error {
	if s.state == stateDone {
		return nil
	}
	err := s.closeBody()
	s.state = stateDone
	if s.readBuf != nil {
		pool.PutReadBuffer(s.readBuf)
		s.readBuf = nil
	}
	return err
}

func (s *Stream[T]) finish() {
	_ = s.closeBody()
	s.state = stateDone
	if s.readBuf != nil {
		pool.PutReadBuffer(s.readBuf)
		s.readBuf = nil
	}
}

func (s *Stream[T]) closeBody() error {
	if s.body == nil {
		return nil
	}
	err := s.body.Close()
	s.body = nil
	return err
}
