package spy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// EventStream is a live tap on the server's push event feed.
//
// Records arrive as CR-terminated lines over a long-lived HTTP response.
// The stream ends when the server closes the connection or the opening
// context is cancelled; callers are expected to reopen with backoff.
type EventStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
}

// OpenEventStream connects to the server's event feed (protocol version 2).
//
// The returned stream stays open until Close is called, the context is
// cancelled, or the server drops the connection. The per-request timeout
// used for control calls does not apply.
func (c *Client) OpenEventStream(ctx context.Context) (*EventStream, error) {
	u := c.baseURL + pathEventStream + "?" + url.Values{"version": {"2"}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode}
	}

	return &EventStream{
		body:   resp.Body,
		reader: bufio.NewReader(resp.Body),
	}, nil
}

// Next blocks until the next event record arrives and returns it parsed.
//
// Unparseable records return an error wrapping ErrMalformedResponse with
// the stream left open; callers should log and call Next again. io.EOF
// (or a connection error) means the stream is dead and must be reopened.
func (s *EventStream) Next() (Event, error) {
	line, err := s.reader.ReadString('\r')
	if err != nil {
		if errors.Is(err, io.EOF) && strings.TrimSpace(line) == "" {
			return Event{}, io.EOF
		}
		if strings.TrimSpace(line) == "" {
			return Event{}, fmt.Errorf("%w: %w", ErrConnection, err)
		}
		// Partial final record; fall through and try to parse it.
	}

	line = strings.TrimSpace(line)
	if line == "" {
		// Keep-alive or stray newline between records.
		return s.Next()
	}

	return ParseEvent(line)
}

// Close terminates the stream connection.
func (s *EventStream) Close() error {
	return s.body.Close()
}
