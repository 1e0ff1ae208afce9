package transport

import (
	"encoding/json"
	"errors"

	"github.com/driftware/b2go/types"
)

// PartialJSON decodes one element of a JSON list at a time as bytes arrive,
// without requiring the whole body to be buffered.
//
// The level is the nesting depth at which the list elements live: 1 for a
// bare list like `[1,2,3]`, 2 for a list wrapped in an object like
// `{"buckets": [1,2,3]}`. The wrapper key is not validated. Bytes below the
// target level are evicted from the buffer as soon as they are scanned, so
// an arbitrarily long preamble before the list costs no memory.
type PartialJSON[T any] struct {
	buf        []byte
	parens     int
	level      int
	inString   bool
	lastEscape bool
	lastStart  bool
	cursor     int
}

// NewPartialJSON creates a decoder for elements at the given nesting level.
// The capacity is the initial buffer allocation.
func NewPartialJSON[T any](capacity, level int) *PartialJSON[T] {
	if level < 1 {
		panic("transport: PartialJSON level must be at least 1")
	}
	return &PartialJSON[T]{
		buf:   make([]byte, 0, capacity),
		level: level,
	}
}

// Push appends a chunk to the internal buffer. It never parses and never
// fails. Splitting the same input into any sequence of Push calls yields an
// identical sequence of decoded elements.
func (p *PartialJSON[T]) Push(chunk []byte) {
	p.buf = append(p.buf, chunk...)
}

// Next extracts one complete element from the buffered bytes. It returns
// (value, true, nil) when an element completed, (zero, false, nil) when the
// buffered bytes are insufficient and more must be pushed, and an error on
// structural damage or when the element does not deserialize into T.
func (p *PartialJSON[T]) Next() (T, bool, error) {
	var zero T
	for {
		if p.cursor == len(p.buf) {
			return zero, false, nil
		}
		c := p.buf[p.cursor]
		if p.parens < p.level {
			// Below the target level nothing is ever revisited.
			p.buf = p.buf[1:]
		} else {
			p.cursor++
		}
		if p.inString {
			switch {
			case p.lastEscape:
				p.lastEscape = false
			case c == '"':
				p.inString = false
			case c == '\\':
				p.lastEscape = true
			}
			continue
		}
		switch c {
		case '[', '{':
			p.parens++
			p.lastStart = p.parens == p.level
		case ',':
			p.lastStart = false
			if p.parens == p.level {
				return p.takeValue()
			}
		case '"':
			p.lastStart = false
			p.inString = true
		case ']', '}':
			if p.parens == 0 {
				return zero, false, types.DecodeError(errors.New("close bracket with no matching opener"))
			}
			p.parens--
			if p.parens == p.level-1 {
				if !p.lastStart {
					return p.takeValue()
				}
				// An empty container at the target level yields nothing,
				// but its bytes must still be dropped so a sibling
				// container at the same level starts from a clean buffer.
				p.buf = p.buf[p.cursor:]
				p.cursor = 0
			}
			p.lastStart = false
		default:
			if !isJSONSpace(c) {
				p.lastStart = false
			}
		}
	}
}

// takeValue deserializes the element span ending just before the cursor and
// drops it from the buffer. The span is consumed even when deserialization
// fails, so a schema mismatch on one element does not wedge the scanner.
func (p *PartialJSON[T]) takeValue() (T, bool, error) {
	span := p.buf[:p.cursor-1]
	var v T
	err := json.Unmarshal(span, &v)
	p.buf = p.buf[p.cursor:]
	p.cursor = 0
	if err != nil {
		var zero T
		return zero, false, types.DecodeError(err)
	}
	return v, true, nil
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
