package overlay

import "errors"

// ErrDestroying is returned by operations on an entry that is being torn down.
var ErrDestroying = errors.New("overlay: entry is being destroyed")

// State is the lifecycle state of an entry. It only ever advances.
type State int32

const (
	StateCreating State = iota
	StateSourceReady
	StateWorking
	StateDestroying
)

func (s State) String() string {
	switch s {
	case StateCreating:
		return "creating"
	case StateSourceReady:
		return "source-ready"
	case StateWorking:
		return "working"
	case StateDestroying:
		return "destroying"
	default:
		return "unknown"
	}
}

// Kind selects how an entry gets its pixels and where its geometry lives.
type Kind int

const (
	// KindWindow mirrors an OS source window by capturing it.
	KindWindow Kind = iota
	// KindWebView shows frames pushed by the web-content worker. Reposition
	// and teardown are delegated to the worker over the message bus.
	KindWebView
)

func (k Kind) String() string {
	if k == KindWebView {
		return "webview"
	}
	return "window"
}
