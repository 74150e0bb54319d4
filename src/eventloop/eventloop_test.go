package eventloop

import (
	"context"
	"errors"
	"testing"
	"time"

	"game-overlay/src/desktop"
	"game-overlay/src/desktop/desktoptest"
	"game-overlay/src/messages"
	"game-overlay/src/registry"
	"game-overlay/src/router"
)

type loopFixture struct {
	desk *desktoptest.Desktop
	bus  *router.Router
	reg  *registry.Registry
	loop *Loop
	errc chan error
}

func startLoop(t *testing.T, ctx context.Context, startup func()) *loopFixture {
	t.Helper()
	f := &loopFixture{desk: desktoptest.New(), bus: router.NewRouter(), errc: make(chan error, 1)}
	inbox, err := f.bus.Register(messages.ContextOverlays, 64)
	if err != nil {
		t.Fatal(err)
	}
	f.reg = registry.New(registry.Options{Desktop: f.desk, Bus: f.bus, ShowOnStart: true})
	f.loop = New(Options{
		Registry:       f.reg,
		Desktop:        f.desk,
		Inbox:          inbox,
		RedrawInterval: 5 * time.Millisecond,
		PumpInterval:   time.Millisecond,
		Startup:        startup,
	})
	go func() { f.errc <- f.loop.Run(ctx) }()
	t.Cleanup(f.bus.Shutdown)
	return f
}

func (f *loopFixture) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-f.errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit")
		return nil
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLoopCreatesWindowsAndExitsAfterQuit(t *testing.T) {
	f := startLoop(t, context.Background(), nil)
	src := f.desk.AddSource(1, "game", desktop.Rect{Width: 32, Height: 32})
	f.desk.SetForeground(src)

	id, err := f.reg.CreateFromWindow(src)
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return f.reg.Get(id).Render() != 0 })
	waitFor(t, func() bool { return f.desk.Captures(src) > 2 })

	if err := f.bus.PostTo(messages.ContextHost, messages.ContextOverlays, messages.Command(messages.Quit)); err != nil {
		t.Fatal(err)
	}
	if err := f.wait(t); err != nil {
		t.Fatalf("expected clean exit, got %v", err)
	}
	if f.desk.LiveWindows() != 0 || f.reg.Count() != 0 {
		t.Fatal("expected every overlay released")
	}
	if f.desk.Pumps() == 0 {
		t.Fatal("expected the OS message pump to run")
	}
}

func TestLoopCancelQuitsRegistry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := startLoop(t, ctx, nil)
	src := f.desk.AddSource(1, "game", desktop.Rect{Width: 8, Height: 8})
	id, _ := f.reg.CreateFromWindow(src)
	waitFor(t, func() bool { return f.reg.Get(id).Render() != 0 })

	cancel()
	if err := f.wait(t); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !f.reg.Quitting() || f.reg.Count() != 0 {
		t.Fatal("cancellation must tear down overlays")
	}
}

func TestLoopSurvivesPanics(t *testing.T) {
	ran := make(chan struct{})
	f := startLoop(t, context.Background(), func() {
		close(ran)
		panic("startup failure")
	})
	<-ran
	f.bus.PostTo(messages.ContextHost, messages.ContextOverlays, messages.Command(messages.Quit))
	if err := f.wait(t); err != nil {
		t.Fatalf("expected clean exit, got %v", err)
	}
}

func TestDefaultIntervals(t *testing.T) {
	l := New(Options{})
	if l.RedrawInterval() != defaultRedraw || l.pump != defaultPump {
		t.Fatalf("unexpected defaults %v/%v", l.redraw, l.pump)
	}
}
