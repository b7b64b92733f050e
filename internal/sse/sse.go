// Package sse implements the Server-Sent Events wire format: encoding one
// event per call onto an io.Writer, and decoding a byte stream back into
// events one line at a time.
package sse

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

// Separator is one of the three line-ending conventions the wire format
// permits on output. Input is always accepted in any of the three.
type Separator string

const (
	CRLF Separator = "\r\n"
	CR   Separator = "\r"
	LF   Separator = "\n"
)

// ErrInvalidRetry is returned by Encode when an Event's Retry field is
// present but not a valid integer.
var ErrInvalidRetry = errors.New("sse: retry value is not an integer")

// MessageEvent is the logical event name an absent `event` field decodes
// to, per the data model.
const MessageEvent = "message"

// Event is one SSE record. Comment is only meaningful to Encode (decoded
// comment lines are discarded, producing no event). Retry is a string so
// that Encode can detect and reject the "present but not an integer" case
// explicitly, rather than silently coercing it; empty means absent.
type Event struct {
	Comment string
	ID      string
	Event   string
	Data    string
	Retry   string
}

// stripTerminators removes any embedded \r or \n from s, satisfying the
// encoding contract's requirement that id/event field values never carry
// embedded line terminators onto the wire.
func stripTerminators(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\r' || r == '\n' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// splitFragments splits s on any of \r\n, \r, or \n, mirroring the input
// line-terminator flexibility for multi-line comment/data values.
func splitFragments(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}

// Encoder writes Events to an underlying io.Writer using a configured line
// separator (default CRLF).
type Encoder struct {
	w   io.Writer
	sep Separator
}

// NewEncoder returns an Encoder writing to w. An empty sep defaults to CRLF.
func NewEncoder(w io.Writer, sep Separator) *Encoder {
	if sep == "" {
		sep = CRLF
	}
	return &Encoder{w: w, sep: sep}
}

// Encode writes one event record, terminated by a blank line:
//  1. comment lines prefixed by ": "
//  2. id (terminator-stripped)
//  3. event (terminator-stripped)
//  4. data, one `data:` line per fragment split on any line terminator
//  5. retry, failing with ErrInvalidRetry when not an integer
//  6. a trailing blank line
func (e *Encoder) Encode(ev Event) error {
	var b strings.Builder

	if ev.Comment != "" {
		for _, line := range splitFragments(ev.Comment) {
			b.WriteString(": ")
			b.WriteString(line)
			b.WriteString(string(e.sep))
		}
	}
	if ev.ID != "" {
		b.WriteString("id: ")
		b.WriteString(stripTerminators(ev.ID))
		b.WriteString(string(e.sep))
	}
	if ev.Event != "" {
		b.WriteString("event: ")
		b.WriteString(stripTerminators(ev.Event))
		b.WriteString(string(e.sep))
	}
	if ev.Data != "" {
		for _, frag := range splitFragments(ev.Data) {
			b.WriteString("data:")
			if frag != "" {
				b.WriteString(" ")
				b.WriteString(frag)
			}
			b.WriteString(string(e.sep))
		}
	}
	if ev.Retry != "" {
		n, err := strconv.Atoi(ev.Retry)
		if err != nil {
			return ErrInvalidRetry
		}
		b.WriteString("retry: ")
		b.WriteString(strconv.Itoa(n))
		b.WriteString(string(e.sep))
	}

	// Terminate the record with one additional separator.
	b.WriteString(string(e.sep))

	_, err := io.WriteString(e.w, b.String())
	return err
}

// Decoder is a stateful, line-at-a-time SSE accumulator. Feed each input
// line (without its terminator) via Feed; a blank line dispatches the
// accumulated event. last_event_id is preserved across dispatches, exactly
// as required by the decoding contract.
type Decoder struct {
	event       string
	dataLines   []string
	retry       string
	sawAnyField bool

	lastEventID string
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed processes one line with its terminator already stripped. It returns
// the decoded event and true when the line was blank and at least one
// field had been seen since the previous dispatch; otherwise it returns
// the zero Event and false.
func (d *Decoder) Feed(line string) (Event, bool) {
	if line == "" {
		return d.dispatch()
	}
	if strings.HasPrefix(line, ":") {
		// Comment line: decodes to no event, never contributes a field.
		return Event{}, false
	}

	field, value := splitField(line)
	switch field {
	case "event":
		d.event = value
		d.sawAnyField = true
	case "data":
		d.dataLines = append(d.dataLines, value)
		d.sawAnyField = true
	case "id":
		if strings.IndexByte(value, 0) != -1 {
			// id values containing a NUL are discarded.
			break
		}
		d.lastEventID = value
		d.sawAnyField = true
	case "retry":
		if _, err := strconv.Atoi(value); err != nil {
			// retry values that fail integer parsing are ignored.
			break
		}
		d.retry = value
		d.sawAnyField = true
	default:
		// Any other field is ignored.
	}
	return Event{}, false
}

// dispatch finalizes the accumulated record into an Event, then resets
// event/data/retry while preserving last_event_id.
func (d *Decoder) dispatch() (Event, bool) {
	if !d.sawAnyField {
		// An empty record (no fields seen) produces no event.
		return Event{}, false
	}

	name := d.event
	if name == "" {
		name = MessageEvent
	}
	ev := Event{
		ID:    d.lastEventID,
		Event: name,
		Data:  strings.Join(d.dataLines, "\n"),
		Retry: d.retry,
	}

	d.event = ""
	d.dataLines = nil
	d.retry = ""
	d.sawAnyField = false

	return ev, true
}

// splitField splits a "field:value" line on the first colon and strips at
// most one leading space from the value, per the wire format.
func splitField(line string) (field, value string) {
	i := strings.IndexByte(line, ':')
	if i == -1 {
		return line, ""
	}
	field = line[:i]
	value = line[i+1:]
	if strings.HasPrefix(value, " ") {
		value = value[1:]
	}
	return field, value
}

// splitSSELines is a bufio.SplitFunc that recognizes \r\n, \r, and \n as
// line terminators, including a lone trailing \r at the end of a buffered
// chunk (which requires one more byte of lookahead to disambiguate from a
// pending \r\n).
func splitSSELines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case '\n':
			return i + 1, data[:i], nil
		case '\r':
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}
				return i + 1, data[:i], nil
			}
			if atEOF {
				return i + 1, data[:i], nil
			}
			// Need more data to know whether \n follows.
			return 0, nil, nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// StreamDecoder pulls lines off an io.Reader using splitSSELines and feeds
// them through a Decoder, yielding one Event per call to Next.
type StreamDecoder struct {
	sc  *bufio.Scanner
	dec *Decoder
}

// NewStreamDecoder returns a StreamDecoder reading SSE records from r.
func NewStreamDecoder(r io.Reader) *StreamDecoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	sc.Split(splitSSELines)
	return &StreamDecoder{sc: sc, dec: NewDecoder()}
}

// Next returns the next decoded event. ok is false once the underlying
// reader is exhausted with no further event pending; err carries any
// non-EOF scan error.
func (s *StreamDecoder) Next() (ev Event, ok bool, err error) {
	for s.sc.Scan() {
		if ev, ok := s.dec.Feed(s.sc.Text()); ok {
			return ev, true, nil
		}
	}
	if err := s.sc.Err(); err != nil {
		return Event{}, false, err
	}
	return Event{}, false, nil
}

// LastEventID returns the most recently preserved id value, if any.
func (s *StreamDecoder) LastEventID() string {
	return s.dec.lastEventID
}
