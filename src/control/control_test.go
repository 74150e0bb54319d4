package control

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"game-overlay/src/desktop"
	"game-overlay/src/engine"
)

type fakeEngine struct {
	mu    sync.Mutex
	calls []string
	added desktop.Rect
	err   error
}

func (f *fakeEngine) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeEngine) Show() error            { return f.record("show") }
func (f *fakeEngine) Hide() error            { return f.record("hide") }
func (f *fakeEngine) CatchForeground() error { return f.record("catch") }
func (f *fakeEngine) UpdateAll() error       { return f.record("update") }
func (f *fakeEngine) TakeInput() error       { return f.record("input on") }
func (f *fakeEngine) ReleaseInput() error    { return f.record("input off") }

func (f *fakeEngine) AddWebView(url string, r desktop.Rect) (int, error) {
	f.added = r
	return 130, f.record("add " + url)
}

func (f *fakeEngine) SetURL(id int, url string) error { return f.record("url " + url) }
func (f *fakeEngine) MoveOverlay(id, x, y int) error  { return f.record("move") }
func (f *fakeEngine) SetTransparency(id, l int) error { return f.record("alpha") }
func (f *fakeEngine) Remove(id int) error             { return f.record("remove") }
func (f *fakeEngine) Count() int                      { return 2 }
func (f *fakeEngine) Status() engine.Status           { return engine.StatusRunning }

func (f *fakeEngine) Overlays() []engine.Info {
	return []engine.Info{
		{ID: 128, Kind: "window", State: "working", Geometry: desktop.Rect{Width: 10, Height: 20}, Source: 0x1004},
		{ID: 129, Kind: "webview", State: "working", URL: "https://example.com"},
	}
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		line    string
		want    Request
		wantErr bool
	}{
		{"show\n", Request{Command: "SHOW", Args: []string{}}, false},
		{"MOVE 128 10 20\n", Request{Command: "MOVE", Args: []string{"128", "10", "20"}}, false},
		{"  \n", Request{}, true},
	}
	for _, tt := range tests {
		got, err := ParseRequest(tt.line)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseRequest(%q) error = %v", tt.line, err)
		}
		if err == nil && (got.Command != tt.want.Command || strings.Join(got.Args, ",") != strings.Join(tt.want.Args, ",")) {
			t.Errorf("ParseRequest(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestEncodeRequestRejectsSpaces(t *testing.T) {
	if _, err := encodeRequest("add", []string{"a b"}); err == nil {
		t.Fatal("expected error for argument with spaces")
	}
	line, err := encodeRequest("add", []string{"https://example.com"})
	if err != nil || line != "ADD https://example.com\n" {
		t.Fatalf("unexpected line %q (%v)", line, err)
	}
}

func TestCommands(t *testing.T) {
	quit := 0
	fe := &fakeEngine{}
	c := &Commands{Engine: fe, Quit: func() { quit++ }}

	tests := []struct {
		req      string
		wantBody string
		wantCall string
		wantErr  bool
	}{
		{"SHOW", "", "show", false},
		{"HIDE", "", "hide", false},
		{"CATCH", "", "catch", false},
		{"UPDATE", "", "update", false},
		{"INPUT on", "", "input on", false},
		{"INPUT off", "", "input off", false},
		{"INPUT maybe", "", "", true},
		{"ADD https://example.com", "130\n", "add https://example.com", false},
		{"ADD https://example.com 1 2", "", "", true},
		{"COUNT", "2\n", "", false},
		{"STATUS", "running\n", "", false},
		{"REMOVE 128", "", "remove", false},
		{"REMOVE x", "", "", true},
		{"MOVE 128 1 2", "", "move", false},
		{"ALPHA 0 128", "", "alpha", false},
		{"URL 129 https://example.org", "", "url https://example.org", false},
		{"URL 129", "", "", true},
		{"BOGUS", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.req, func(t *testing.T) {
			fe.calls = nil
			req, _ := ParseRequest(tt.req)
			body, err := c.Handle(context.Background(), req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
			if tt.wantCall != "" && (len(fe.calls) != 1 || fe.calls[0] != tt.wantCall) {
				t.Errorf("calls = %v, want %q", fe.calls, tt.wantCall)
			}
		})
	}

	if fe.added != DefaultWebViewRect {
		t.Errorf("expected default rect for ADD without geometry, got %v", fe.added)
	}
	if _, err := c.Handle(context.Background(), Request{Command: CmdQuit}); err != nil || quit != 1 {
		t.Fatalf("quit not delivered (%v)", err)
	}
}

func TestFormatOverlays(t *testing.T) {
	out := FormatOverlays((&fakeEngine{}).Overlays())
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", out)
	}
	if !strings.HasSuffix(lines[0], "0x1004") || !strings.HasSuffix(lines[1], "https://example.com") {
		t.Fatalf("unexpected listing %q", out)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("loopback unavailable: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func TestServerClientRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	port := freePort(t)
	fe := &fakeEngine{}
	srv := NewServer(port, &Commands{Engine: fe})
	if err := srv.Start(ctx); err != nil {
		t.Skipf("loopback unavailable in this environment: %v", err)
	}
	defer srv.Close()

	if second := NewServer(port, &Commands{Engine: fe}); second.Start(ctx) == nil {
		second.Close()
		t.Fatal("a second resident must not bind the same port")
	}

	client := NewClient(port, port)
	if p, ok := client.DetectResident(ctx); !ok || p != port {
		t.Fatalf("expected resident on %d, got %d/%v", port, p, ok)
	}

	body, err := client.Send(ctx, "count")
	if err != nil || body != "2\n" {
		t.Fatalf("COUNT = %q (%v)", body, err)
	}

	fe.mu.Lock()
	fe.err = errors.New("engine: not running")
	fe.mu.Unlock()
	if _, err := client.Send(ctx, "show"); err == nil || err.Error() != "engine: not running" {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestClientWithoutResident(t *testing.T) {
	port := freePort(t)
	client := NewClient(port, port)
	client.Timeout = 100 * time.Millisecond
	if _, err := client.Send(context.Background(), "show"); !errors.Is(err, ErrNoResident) {
		t.Fatalf("expected ErrNoResident, got %v", err)
	}
}
