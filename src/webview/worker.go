// Package webview is the secondary execution context that owns web-content
// views. It talks to the overlays context only through the message bus.
package webview

import (
	"context"
	"log"

	"game-overlay/src/desktop"
	"game-overlay/src/messages"
)

// FirstHandle is the first synthetic source handle given to a view.
const FirstHandle desktop.Handle = 0x7f000000

// Poster delivers messages to another context
type Poster interface {
	PostTo(from, to string, msg messages.Message) error
}

// Options configure a Worker. Renderer and Frames default to the card
// renderer and a fresh pool.
type Options struct {
	Bus      Poster
	Inbox    <-chan messages.Envelope
	Frames   *messages.FramePool
	Renderer Renderer
}

type view struct {
	id     int
	handle desktop.Handle
	url    string
	rect   desktop.Rect
	alpha  uint8
}

// Worker renders web-content views and pushes their frames to the overlays
// context. All of its state is owned by the Run goroutine.
type Worker struct {
	bus      Poster
	inbox    <-chan messages.Envelope
	frames   *messages.FramePool
	renderer Renderer

	views map[int]*view
	next  desktop.Handle
}

// New creates a worker
func New(opts Options) *Worker {
	w := &Worker{
		bus:      opts.Bus,
		inbox:    opts.Inbox,
		frames:   opts.Frames,
		renderer: opts.Renderer,
		views:    make(map[int]*view),
		next:     FirstHandle,
	}
	if w.frames == nil {
		w.frames = messages.NewFramePool()
	}
	if w.renderer == nil {
		w.renderer = NewCardRenderer()
	}
	return w
}

// Frames returns the pool pushed frames are drawn from.
func (w *Worker) Frames() *messages.FramePool { return w.frames }

// Run serves the webview mailbox until WorkerQuit, a closed inbox or ctx
// cancellation.
func (w *Worker) Run(ctx context.Context) error {
	log.Printf("WebView: worker started")
	defer func() {
		log.Printf("WebView: worker stopped with %d views open", len(w.views))
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if w.handle(env.Message) {
				return nil
			}
		}
	}
}

func (w *Worker) handle(msg messages.Message) (quit bool) {
	defer msg.Release()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC in web view worker (%s): %v", msg.Type(), r)
		}
	}()

	if msg.Code == messages.WorkerQuit {
		return true
	}
	if msg.Code == messages.WebViewCreate {
		if req, ok := msg.Payload.(messages.WebView); ok {
			w.create(msg.ID, req)
		}
		return false
	}

	v, ok := w.views[msg.ID]
	if !ok {
		log.Printf("WebView: %s for unknown view %d", msg.Code, msg.ID)
		return false
	}
	switch msg.Code {
	case messages.WebViewClose:
		delete(w.views, msg.ID)
		log.Printf("WebView: view %d closed", msg.ID)
	case messages.WebViewTransparency:
		if a, ok := msg.Payload.(messages.Alpha); ok {
			v.alpha = uint8(a)
		}
	case messages.WebViewPosition:
		r, ok := msg.Payload.(messages.Rect)
		if !ok || r.Empty() {
			return false
		}
		resized := !r.SameSize(v.rect)
		v.rect = r.Rect
		w.post(messages.To(v.id, messages.GeometryChanged, messages.Rect{Rect: v.rect}))
		if resized {
			w.push(v)
		}
	case messages.WebViewURL:
		if u, ok := msg.Payload.(messages.URL); ok {
			v.url = string(u)
			w.push(v)
		}
	default:
		log.Printf("WebView: unhandled %s", msg.Code)
	}
	return false
}

func (w *Worker) create(id int, req messages.WebView) {
	if _, exists := w.views[id]; exists {
		log.Printf("WebView: view %d already exists", id)
		return
	}
	w.next++
	v := &view{id: id, handle: w.next, url: req.URL, rect: req.Rect, alpha: req.Alpha}
	w.views[id] = v
	log.Printf("WebView: view %d created for %s at %v", id, v.url, v.rect)

	w.post(messages.To(id, messages.SourceReady, messages.Window{Handle: v.handle}))
	w.push(v)
}

// push renders v and hands the frame to the overlays context, which
// releases it after painting.
func (w *Worker) push(v *view) {
	if v.rect.Empty() {
		return
	}
	f := w.frames.Get(v.rect.Width, v.rect.Height)
	if err := w.renderer.Render(v.url, f.Width, f.Height, f.Pix); err != nil {
		f.Release()
		log.Printf("WebView: render view %d: %v", v.id, err)
		return
	}
	w.post(messages.To(v.id, messages.FramePushed, f))
}

func (w *Worker) post(msg messages.Message) {
	if err := w.bus.PostTo(messages.ContextWebView, messages.ContextOverlays, msg); err != nil {
		log.Printf("WebView: %s for view %d not delivered: %v", msg.Code, msg.ID, err)
	}
}
