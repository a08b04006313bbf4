package dify

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/spetersoncode/difybridge"
)

const maxLineSize = 10 << 20

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// Stream reads records from a chat-messages response.
// A Stream is not safe for concurrent use.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	pending []*StreamEvent
	logger  *slog.Logger
	err     error
}

func newSSEStream(body io.ReadCloser, logger *slog.Logger) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	return &Stream{body: body, scanner: scanner, logger: logger}
}

func newStaticStream(records []*StreamEvent) *Stream {
	return &Stream{pending: records}
}

// Recv returns the next record. It returns io.EOF once the body is exhausted.
// Blank data lines, the [DONE] sentinel and records that are not valid JSON
// are skipped.
func (s *Stream) Recv() (*StreamEvent, error) {
	if len(s.pending) > 0 {
		ev := s.pending[0]
		s.pending = s.pending[1:]
		return ev, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.scanner == nil {
		s.err = io.EOF
		return nil, s.err
	}

	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		data := bytes.TrimSpace(line[len(dataPrefix):])
		if len(data) == 0 || bytes.Equal(data, doneMarker) {
			continue
		}

		var ev StreamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			s.logger.Debug("skipping malformed stream record", "error", err, "bytes", len(data))
			continue
		}
		return &ev, nil
	}

	if err := s.scanner.Err(); err != nil {
		s.err = difybridge.NewTransportError("reading dify stream", err)
	} else {
		s.err = io.EOF
	}
	return nil, s.err
}

// Close releases the response body. It is safe to call more than once.
func (s *Stream) Close() error {
	if s.body == nil {
		return nil
	}
	err := s.body.Close()
	s.body = nil
	return err
}
