package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

const (
	readChunkSize = 4 * 1024
	doneSentinel  = "[DONE]"
	ssePrefix     = "data:"
)

// StreamResult is the outcome of decoding one upstream response stream.
type StreamResult struct {
	Text string
	Raw  map[string]any
	Done bool
}

// inBandError is raised when a decoded payload carries an error field.
type inBandError struct {
	Message string
	Payload map[string]any
}

func (e *inBandError) Error() string {
	return e.Message
}

// StreamAccumulator holds the per-request decode state. It is owned by a
// single in-flight request and must not be reused.
type StreamAccumulator struct {
	buffer      []byte
	aggregate   string
	lastPayload map[string]any
	done        bool
}

// Feed appends a chunk and processes every complete line in the buffer. A
// trailing partial line stays buffered until more bytes or Finish arrive.
func (a *StreamAccumulator) Feed(chunk []byte) error {
	a.buffer = append(a.buffer, chunk...)
	for {
		idx := bytes.IndexByte(a.buffer, '\n')
		if idx < 0 {
			return nil
		}
		line := a.buffer[:idx]
		a.buffer = a.buffer[idx+1:]
		if err := a.consumeLine(line); err != nil {
			return err
		}
	}
}

// Finish treats end of stream as a final line terminator and returns the
// accumulated result.
func (a *StreamAccumulator) Finish() (StreamResult, error) {
	if len(a.buffer) > 0 {
		line := a.buffer
		a.buffer = nil
		if err := a.consumeLine(line); err != nil {
			return StreamResult{}, err
		}
	}
	return StreamResult{
		Text: strings.TrimSpace(a.aggregate),
		Raw:  a.lastPayload,
		Done: a.done,
	}, nil
}

func (a *StreamAccumulator) consumeLine(line []byte) error {
	text := strings.TrimSpace(string(bytes.TrimSuffix(line, []byte("\r"))))
	if text == "" || strings.HasPrefix(text, ":") {
		return nil
	}
	if strings.HasPrefix(text, ssePrefix) {
		text = strings.TrimSpace(strings.TrimPrefix(text, ssePrefix))
		if text == "" {
			return nil
		}
	}
	if text == doneSentinel {
		a.done = true
		return nil
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil || payload == nil {
		// Garbled frames are skipped.
		return nil
	}
	return a.consumePayload(payload)
}

func (a *StreamAccumulator) consumePayload(payload map[string]any) error {
	if message, ok := payloadError(payload); ok {
		return &inBandError{Message: message, Payload: payload}
	}
	if fragment, ok := extractText(payload); ok {
		a.aggregate = mergeFragment(a.aggregate, fragment)
	}
	a.lastPayload = payload
	if payloadDone(payload) {
		a.done = true
	}
	return nil
}

// mergeFragment appends a delta, or replaces the aggregate when the upstream
// resent a growing prefix.
func mergeFragment(aggregate, fragment string) string {
	if strings.HasPrefix(fragment, aggregate) {
		return fragment
	}
	return aggregate + fragment
}

// DecodeStream folds r through a fresh StreamAccumulator. A nil reader yields
// an empty result.
func DecodeStream(r io.Reader) (StreamResult, error) {
	if r == nil {
		return StreamResult{}, nil
	}

	var acc StreamAccumulator
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if feedErr := acc.Feed(buf[:n]); feedErr != nil {
				return StreamResult{}, feedErr
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return StreamResult{}, err
		}
	}
	return acc.Finish()
}

// decodeSingle parses a buffered, non-streamed response body.
func decodeSingle(body []byte) (StreamResult, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return StreamResult{}, err
	}
	var acc StreamAccumulator
	if payload != nil {
		if err := acc.consumePayload(payload); err != nil {
			return StreamResult{}, err
		}
	}
	return acc.Finish()
}
