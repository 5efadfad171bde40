// Package gateway speaks the Gateway's HTTP/XML protocol: report
// definitions go out as UTF-16 POST bodies, flat report renderings come
// back in whatever encoding the Gateway felt like using.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/marcus/erpsync/internal/report"
	"github.com/marcus/erpsync/internal/resilience"
)

var (
	// ErrNetwork reports a transport-level failure reaching the Gateway.
	ErrNetwork = errors.New("gateway unreachable")
	// ErrTimeout reports a request that exceeded its deadline.
	ErrTimeout = errors.New("gateway request timed out")
	// ErrEmpty reports a Gateway that answered but returned no usable data.
	ErrEmpty = errors.New("gateway returned empty response")
)

// Retryable reports whether an error is a transient transport condition
// worth retrying.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout)
}

// Client talks to one Gateway endpoint.
type Client struct {
	server string
	port   int
	http   *http.Client
	exec   *resilience.Executor
}

// New builds a client. exec may be nil to call the Gateway with no retry
// or breaker policy (tests mostly do this).
func New(server string, port int, timeout time.Duration, exec *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		server: server,
		port:   port,
		http:   &http.Client{Timeout: timeout},
		exec:   exec,
	}
}

// URL returns the Gateway endpoint.
func (c *Client) URL() string {
	return fmt.Sprintf("http://%s:%d", c.server, c.port)
}

// BreakerState reports the resilience state for status output.
func (c *Client) BreakerState() string {
	if c.exec == nil {
		return "closed"
	}
	return c.exec.State("gateway")
}

// Send posts one report payload and returns the decoded response body.
// The payload is encoded as UTF-16 little-endian with a BOM, which is the
// only encoding every Gateway build accepts.
func (c *Client) Send(ctx context.Context, payload string) (string, error) {
	if c.exec == nil {
		return c.send(ctx, payload)
	}
	var out string
	err := c.exec.Do(ctx, "gateway", func() error {
		var err error
		out, err = c.send(ctx, payload)
		return err
	})
	return out, err
}

func (c *Client) send(ctx context.Context, payload string) (string, error) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	body, err := enc.String(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(), strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-16")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", classifyTransport(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransport(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", ErrNetwork, resp.StatusCode)
	}

	text := decodeBody(raw)
	slog.Debug("gateway request complete",
		"bytes", len(raw), "elapsed", time.Since(start).Round(time.Millisecond))
	return text, nil
}

func classifyTransport(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

// decodeBody tries the encodings the Gateway is known to emit, in order:
// UTF-16 with a BOM, bare UTF-16LE, UTF-8, then Latin-1 as the fallback
// that always succeeds.
func decodeBody(raw []byte) string {
	if dec, err := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder().Bytes(raw); err == nil {
		return string(dec)
	}
	if looksUTF16LE(raw) {
		if dec, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(raw); err == nil {
			return string(dec)
		}
	}
	if utf8.Valid(raw) {
		return string(raw)
	}
	dec, _ := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	return string(dec)
}

// looksUTF16LE sniffs BOM-less UTF-16LE: XML responses are ASCII-heavy,
// so roughly every second byte is zero.
func looksUTF16LE(raw []byte) bool {
	if len(raw) < 4 || len(raw)%2 != 0 {
		return false
	}
	zeros := 0
	limit := min(len(raw), 256)
	for i := 1; i < limit; i += 2 {
		if raw[i] == 0 {
			zeros++
		}
	}
	return zeros > limit/4
}

// ConnectionStatus is the result of a connectivity probe.
type ConnectionStatus struct {
	Connected bool   `json:"connected"`
	Server    string `json:"server"`
	Port      int    `json:"port"`
	Error     string `json:"error,omitempty"`
}

// TestConnection probes the Gateway with a minimal export request.
func (c *Client) TestConnection(ctx context.Context) ConnectionStatus {
	st := ConnectionStatus{Server: c.server, Port: c.port}
	if _, err := c.Send(ctx, report.Probe); err != nil {
		st.Error = err.Error()
		return st
	}
	st.Connected = true
	return st
}
