package clipboard

import (
	"sync"

	"golang.design/x/clipboard"
)

var (
	initOnce sync.Once
	initErr  error
	readMu   sync.Mutex
)

// Init prepares the system clipboard. Calling it more than once is cheap.
func Init() error {
	initOnce.Do(func() { initErr = clipboard.Init() })
	return initErr
}

// ReadText returns the clipboard text, or "" when it holds something else.
func ReadText() (string, error) {
	if err := Init(); err != nil {
		return "", err
	}
	readMu.Lock()
	defer readMu.Unlock()
	return string(clipboard.Read(clipboard.FmtText)), nil
}
