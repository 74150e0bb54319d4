// Package hookevents shares the process-wide gohook event stream. gohook
// keeps one global listener, so every consumer subscribes here instead of
// calling gohook.Start itself.
package hookevents

import (
	"errors"
	"log"
	"sync"

	gohook "github.com/robotn/gohook"
)

var ErrStartFailed = errors.New("hookevents: gohook.Start() returned nil channel")

// swapped by tests
var (
	startHook = gohook.Start
	endHook   = gohook.End
)

var (
	mu      sync.RWMutex
	subs    = map[int]chan gohook.Event{}
	nextID  int
	running bool
)

// Subscribe returns a channel receiving every hook event and a function that
// cancels the subscription. Events are dropped for a subscriber whose buffer
// is full. The listener starts with the first subscriber and stops with the
// last.
func Subscribe(buffer int) (<-chan gohook.Event, func(), error) {
	mu.Lock()
	defer mu.Unlock()

	if !running {
		src := startHook()
		if src == nil {
			return nil, nil, ErrStartFailed
		}
		running = true
		go fanOut(src)
	}

	id := nextID
	nextID++
	ch := make(chan gohook.Event, buffer)
	subs[id] = ch

	var once sync.Once
	return ch, func() { once.Do(func() { unsubscribe(id) }) }, nil
}

func unsubscribe(id int) {
	mu.Lock()
	ch, ok := subs[id]
	delete(subs, id)
	last := running && len(subs) == 0
	if last {
		running = false
	}
	mu.Unlock()

	if ok {
		close(ch)
	}
	if last {
		endHook()
	}
}

func fanOut(src chan gohook.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC in hook event fan-out: %v", r)
		}
	}()
	for ev := range src {
		mu.RLock()
		for _, ch := range subs {
			select {
			case ch <- ev:
			default:
			}
		}
		mu.RUnlock()
	}
}
