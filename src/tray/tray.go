// Package tray puts the resident program in the notification area and maps
// its menu onto engine commands.
package tray

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"

	"game-overlay/src/clipboard"
	"game-overlay/src/control"
	"game-overlay/src/desktop"
	"game-overlay/src/notification"

	"github.com/getlantern/systray"
)

// Controller is the part of the engine reachable from the menu.
type Controller interface {
	Show() error
	Hide() error
	CatchForeground() error
	TakeInput() error
	ReleaseInput() error
	Intercepting() bool
	AddWebView(url string, r desktop.Rect) (int, error)
	Count() int
}

type Config struct {
	Title   string
	Tooltip string
	Engine  Controller

	// ReadClipboard returns the clipboard text. Defaults to the system
	// clipboard.
	ReadClipboard func() (string, error)

	// OnExit runs once the tray has gone, whether through the Quit item or
	// Stop.
	OnExit func()
}

type action int

const (
	actionShow action = iota
	actionHide
	actionCatch
	actionInput
	actionAddFromClipboard
)

var errNoURL = errors.New("clipboard does not contain a web address")

type Tray struct {
	cfg      Config
	stopOnce sync.Once
}

func New(cfg Config) (*Tray, error) {
	if cfg.Engine == nil {
		return nil, errors.New("tray: engine is required")
	}
	if cfg.Title == "" {
		cfg.Title = "Game Overlay"
	}
	if cfg.Tooltip == "" {
		cfg.Tooltip = cfg.Title
	}
	if cfg.ReadClipboard == nil {
		cfg.ReadClipboard = clipboard.ReadText
	}
	return &Tray{cfg: cfg}, nil
}

// Run blocks until the tray exits.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Stop removes the icon and makes Run return.
func (t *Tray) Stop() {
	t.stopOnce.Do(systray.Quit)
}

func (t *Tray) onReady() {
	systray.SetIcon(Icon())
	systray.SetTitle(t.cfg.Title)
	systray.SetTooltip(t.cfg.Tooltip)

	mShow := systray.AddMenuItem("Show overlays", "Show every overlay")
	mHide := systray.AddMenuItem("Hide overlays", "Hide every overlay")
	mCatch := systray.AddMenuItem("Catch foreground app", "Overlay the windows of the foreground application")
	mInput := systray.AddMenuItemCheckbox("Take input", "Route keyboard and mouse to the overlays", t.cfg.Engine.Intercepting())
	mAdd := systray.AddMenuItem("Add page from clipboard", "Open the copied web address as an overlay")
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Close every overlay and exit")

	go func() {
		for {
			var err error
			select {
			case <-mShow.ClickedCh:
				err = t.perform(actionShow)
			case <-mHide.ClickedCh:
				err = t.perform(actionHide)
			case <-mCatch.ClickedCh:
				err = t.perform(actionCatch)
			case <-mInput.ClickedCh:
				// interception starts asynchronously on the loop thread
				take := !t.cfg.Engine.Intercepting()
				if err = t.perform(actionInput); err == nil && take {
					mInput.Check()
				} else if err == nil {
					mInput.Uncheck()
				}
			case <-mAdd.ClickedCh:
				err = t.perform(actionAddFromClipboard)
			case <-mQuit.ClickedCh:
				t.Stop()
				return
			}
			if err != nil {
				log.Printf("tray: %v", err)
				notification.Notify(t.cfg.Title, err.Error())
			}
			systray.SetTooltip(t.tooltip())
		}
	}()
}

func (t *Tray) onExit() {
	if t.cfg.OnExit != nil {
		t.cfg.OnExit()
	}
}

func (t *Tray) tooltip() string {
	n := t.cfg.Engine.Count()
	if n == 1 {
		return t.cfg.Tooltip + " (1 overlay)"
	}
	return fmt.Sprintf("%s (%d overlays)", t.cfg.Tooltip, n)
}

func (t *Tray) perform(a action) error {
	e := t.cfg.Engine
	switch a {
	case actionShow:
		return e.Show()
	case actionHide:
		return e.Hide()
	case actionCatch:
		return e.CatchForeground()
	case actionInput:
		if e.Intercepting() {
			return e.ReleaseInput()
		}
		return e.TakeInput()
	case actionAddFromClipboard:
		text, err := t.cfg.ReadClipboard()
		if err != nil {
			return fmt.Errorf("read clipboard: %w", err)
		}
		u, err := clipboardURL(text)
		if err != nil {
			return err
		}
		id, err := e.AddWebView(u, control.DefaultWebViewRect)
		if err != nil {
			return err
		}
		log.Printf("tray: opened %s as overlay %d", u, id)
		return nil
	default:
		return fmt.Errorf("unknown menu action %d", a)
	}
}

// clipboardURL extracts an absolute http(s) address from clipboard text.
func clipboardURL(text string) (string, error) {
	s := strings.TrimSpace(text)
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return "", errNoURL
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", errNoURL
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.String(), nil
	default:
		return "", errNoURL
	}
}
