package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"game-overlay/src/control"
)

type fakeSender struct {
	command string
	args    []string
	body    string
	err     error
	calls   int
}

func (f *fakeSender) Send(ctx context.Context, command string, args ...string) (string, error) {
	f.calls++
	f.command, f.args = command, args
	if _, ok := ctx.Deadline(); !ok {
		return "", errors.New("request without deadline")
	}
	return f.body, f.err
}

func TestCommandsMapToProtocol(t *testing.T) {
	tests := []struct {
		args        []string
		wantCommand string
		wantArgs    string
	}{
		{[]string{"show"}, control.CmdShow, ""},
		{[]string{"hide"}, control.CmdHide, ""},
		{[]string{"update"}, control.CmdUpdate, ""},
		{[]string{"catch"}, control.CmdCatch, ""},
		{[]string{"list"}, control.CmdList, ""},
		{[]string{"count"}, control.CmdCount, ""},
		{[]string{"status"}, control.CmdStatus, ""},
		{[]string{"quit"}, control.CmdQuit, ""},
		{[]string{"input", "on"}, control.CmdInput, "on"},
		{[]string{"add", "https://example.com"}, control.CmdAdd, "https://example.com 100 100 800 600"},
		{[]string{"add", "https://example.com", "--x", "-1920", "--width", "640"}, control.CmdAdd, "https://example.com -1920 100 640 600"},
		{[]string{"remove", "128"}, control.CmdRemove, "128"},
		{[]string{"move", "128", "-10", "20"}, control.CmdMove, "128 -10 20"},
		{[]string{"alpha", "0", "200"}, control.CmdAlpha, "0 200"},
		{[]string{"url", "129", "https://example.org"}, control.CmdURL, "129 https://example.org"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, "_"), func(t *testing.T) {
			fs := &fakeSender{}
			var out bytes.Buffer
			args := append([]string{"overlayctl"}, tt.args...)
			if err := runWithArgs(args, fs, &out); err != nil {
				t.Fatalf("runWithArgs(%v) failed: %v", tt.args, err)
			}
			if fs.command != tt.wantCommand || strings.Join(fs.args, " ") != tt.wantArgs {
				t.Fatalf("sent %s %v, want %s %s", fs.command, fs.args, tt.wantCommand, tt.wantArgs)
			}
		})
	}
}

func TestInvalidArgumentsNeverReachResident(t *testing.T) {
	tests := [][]string{
		{"show", "extra"},
		{"input", "maybe"},
		{"remove", "abc"},
		{"move", "1", "2"},
		{"alpha", "x", "1"},
		{"url", "x", "https://example.com"},
		{"add"},
		{"bogus"},
	}
	for _, args := range tests {
		fs := &fakeSender{}
		if err := runWithArgs(append([]string{"overlayctl"}, args...), fs, &bytes.Buffer{}); err == nil {
			t.Errorf("expected %v to fail", args)
		}
		if fs.calls != 0 {
			t.Errorf("%v reached the resident", args)
		}
	}
}

func TestResponseBodyIsPrinted(t *testing.T) {
	fs := &fakeSender{body: "128\twindow\tworking\t0,0 10x20\t0x1004\n"}
	var out bytes.Buffer
	if err := runWithArgs([]string{"overlayctl", "list"}, fs, &out); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if out.String() != fs.body {
		t.Fatalf("stdout = %q, want %q", out.String(), fs.body)
	}
}

func TestResidentErrorIsReturned(t *testing.T) {
	fs := &fakeSender{err: control.ErrNoResident}
	var out bytes.Buffer
	err := runWithArgs([]string{"overlayctl", "show"}, fs, &out)
	if !errors.Is(err, control.ErrNoResident) {
		t.Fatalf("expected ErrNoResident, got %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected empty stdout on error, got %q", out.String())
	}
}

func TestNormalizeLegacyArgs(t *testing.T) {
	got := normalizeLegacyArgs([]string{"overlayctl", "-verbose", "-timeout=2s", "show"})
	want := []string{"overlayctl", "--verbose", "--timeout=2s", "show"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("arg[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
