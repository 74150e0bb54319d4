package control

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// Client talks to a resident found in [Start, End].
type Client struct {
	Start, End int
	Timeout    time.Duration
}

// NewClient returns a client scanning the inclusive port range.
func NewClient(start, end int) *Client {
	return &Client{Start: start, End: end, Timeout: 2 * time.Second}
}

func (c *Client) timeout(ctx context.Context) time.Duration {
	d := c.Timeout
	if d <= 0 {
		d = 2 * time.Second
	}
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left > 0 && left < d {
			d = left
		}
	}
	return d
}

// DetectResident scans the port range and returns (port, true) if a
// resident responds to PING.
func (c *Client) DetectResident(ctx context.Context) (int, bool) {
	timeout := c.timeout(ctx)
	if timeout > 300*time.Millisecond {
		timeout = 300 * time.Millisecond
	}
	for port := c.Start; port <= c.End; port++ {
		if ctx.Err() != nil {
			return 0, false
		}
		if ping(addrFor(port), timeout) {
			return port, true
		}
	}
	return 0, false
}

// Send delivers one command to the resident and returns the response body.
func (c *Client) Send(ctx context.Context, command string, args ...string) (string, error) {
	line, err := encodeRequest(command, args)
	if err != nil {
		return "", err
	}
	port, ok := c.DetectResident(ctx)
	if !ok {
		return "", ErrNoResident
	}

	timeout := c.timeout(ctx)
	conn, err := net.DialTimeout("tcp", addrFor(port), timeout)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout + requestTimeout))

	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(line); err != nil {
		return "", err
	}
	if err := w.Flush(); err != nil {
		return "", err
	}

	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return "", err
	}
	switch status {
	case okStatus:
		return string(body), nil
	case errorStatus:
		return "", errors.New(strings.TrimSpace(string(body)))
	default:
		return "", errors.New("control: malformed response " + strconv.Quote(status))
	}
}

func addrFor(port int) string {
	return net.JoinHostPort(residentHost, strconv.Itoa(port))
}

func ping(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))
	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(pingRequest); err != nil {
		return false
	}
	if err := w.Flush(); err != nil {
		return false
	}
	resp, err := bufio.NewReader(conn).ReadString('\n')
	return err == nil && resp == pongResponse
}
