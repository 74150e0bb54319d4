package messages

import (
	"fmt"

	"game-overlay/src/desktop"
)

// Code identifies a command carried between execution contexts
type Code int

const (
	// Collection-wide commands handled by the registry. They carry no id.
	CatchForegroundApp Code = iota + 1
	ShowOverlays
	HideOverlays
	UpdateOverlays
	Quit
	TakeInput
	ReleaseInput

	// Entry-addressed commands consumed by the overlays context.
	SourceReady     // source bound, create the render window (payload: Window when produced by the worker)
	WindowDestroyed // render window gone (payload: Window)
	EntryDestroyed  // teardown finished without a render window
	FramePushed     // externally produced pixels (payload: *Frame)
	GeometryChanged // worker moved or resized its view (payload: Rect)
	OverlayClose
	OverlayPosition     // payload: Rect, only X and Y are used
	OverlayTransparency // payload: Alpha
	OverlayURL          // payload: URL

	// Entry-addressed commands sent to the web-content worker.
	WebViewCreate       // payload: WebView
	WebViewClose
	WebViewTransparency // payload: Alpha
	WebViewPosition     // payload: Rect
	WebViewURL          // payload: URL
	// WorkerQuit closes the worker context entirely.
	WorkerQuit
)

var codeNames = map[Code]string{
	CatchForegroundApp:  "CatchForegroundApp",
	ShowOverlays:        "ShowOverlays",
	HideOverlays:        "HideOverlays",
	UpdateOverlays:      "UpdateOverlays",
	Quit:                "Quit",
	TakeInput:           "TakeInput",
	ReleaseInput:        "ReleaseInput",
	SourceReady:         "SourceReady",
	WindowDestroyed:     "WindowDestroyed",
	EntryDestroyed:      "EntryDestroyed",
	FramePushed:         "FramePushed",
	GeometryChanged:     "GeometryChanged",
	OverlayClose:        "OverlayClose",
	OverlayPosition:     "OverlayPosition",
	OverlayTransparency: "OverlayTransparency",
	OverlayURL:          "OverlayURL",
	WebViewCreate:       "WebViewCreate",
	WebViewClose:        "WebViewClose",
	WebViewTransparency: "WebViewTransparency",
	WebViewPosition:     "WebViewPosition",
	WebViewURL:          "WebViewURL",
	WorkerQuit:          "WorkerQuit",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Collection reports whether c is a registry-wide command without an id.
func (c Code) Collection() bool {
	return c >= CatchForegroundApp && c <= ReleaseInput
}

// Payload is owned by whoever holds the message. The receiver releases it
// exactly once after handling; a sender whose post fails releases it itself.
type Payload interface {
	Release()
}

// Message is one command: a code, the addressed overlay id and an optional payload
type Message struct {
	Code    Code
	ID      int
	Payload Payload
}

// Type returns the command name, used for logging
func (m Message) Type() string { return m.Code.String() }

// Release frees the payload, if any.
func (m Message) Release() {
	if m.Payload != nil {
		m.Payload.Release()
	}
}

// Command builds a collection-wide message
func Command(code Code) Message { return Message{Code: code} }

// To builds an entry-addressed message
func To(id int, code Code, payload Payload) Message {
	return Message{Code: code, ID: id, Payload: payload}
}

// Rect is a rectangle payload
type Rect struct{ desktop.Rect }

func (Rect) Release() {}

// URL is a web-content address payload
type URL string

func (URL) Release() {}

// Alpha is a transparency payload, 0 transparent to 255 opaque
type Alpha uint8

func (Alpha) Release() {}

// Window carries a window handle
type Window struct{ Handle desktop.Handle }

func (Window) Release() {}

// WebView describes a web-content overlay for the worker to create
type WebView struct {
	URL   string
	Rect  desktop.Rect
	Alpha uint8
}

func (WebView) Release() {}

// Envelope wraps messages with routing metadata
type Envelope struct {
	From    string // Source context name
	To      string // Destination context name
	Message Message
}

// Context names
const (
	ContextOverlays = "overlays"
	ContextWebView  = "webview"
	ContextHost     = "host"
)
