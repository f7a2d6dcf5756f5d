package exec

import (
	"bytes"
	"strings"
)

// lineSplitter turns raw pipe chunks into complete lines while keeping the
// raw bytes for the final Result. One splitter serves both pipes; the caller
// serializes access.
type lineSplitter struct {
	pending [2]bytes.Buffer
	raw     [2]strings.Builder
}

// feed appends chunk to the buffer for src and returns every line it completes.
func (s *lineSplitter) feed(src StreamSource, chunk []byte) []StreamEvent {
	s.raw[src].Write(chunk)
	buf := &s.pending[src]
	buf.Write(chunk)

	var events []StreamEvent
	for {
		data := buf.Bytes()
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(string(data[:i]), "\r")
		buf.Next(i + 1)
		events = append(events, StreamEvent{Source: src, Line: line})
	}
	return events
}

// flush returns the unterminated tail of each pipe, stdout first. Tails that
// are blank after trimming are dropped.
func (s *lineSplitter) flush() []StreamEvent {
	var events []StreamEvent
	for _, src := range []StreamSource{Stdout, Stderr} {
		buf := &s.pending[src]
		tail := buf.String()
		buf.Reset()
		if strings.TrimSpace(tail) == "" {
			continue
		}
		events = append(events, StreamEvent{Source: src, Line: strings.TrimSuffix(tail, "\r")})
	}
	return events
}

func (s *lineSplitter) stdout() string { return s.raw[Stdout].String() }
func (s *lineSplitter) stderr() string { return s.raw[Stderr].String() }
