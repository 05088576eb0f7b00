// Package icons resolves category marker images for the active theme and registers
// them with the map. Every requested icon gets a future that settles once, success
// or failure, so layer installs can wait on it instead of polling.
package icons

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"

	"github.com/sudorandom/event-globe/pkg/categories"
)

var (
	ErrNotRequested = errors.New("icon was never requested")
	ErrSuperseded   = errors.New("icon load superseded by a newer theme")
)

type Source interface {
	Load(ctx context.Context, theme categories.Theme, id string) (image.Image, error)
}

// ImageRegistry is the part of the map the loader writes to.
type ImageRegistry interface {
	AddImage(id string, img image.Image)
	RemoveImage(id string)
	HasImage(id string) bool
}

type future struct {
	done chan struct{}
	err  error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) settle(err error) {
	select {
	case <-f.done:
	default:
		f.err = err
		close(f.done)
	}
}

func (f *future) settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

type Loader struct {
	src Source
	reg ImageRegistry

	mu      sync.Mutex
	ctx     context.Context
	gen     uint64
	theme   categories.Theme
	futures map[string]*future
	closed  bool
}

func NewLoader(src Source, reg ImageRegistry) *Loader {
	return &Loader{
		src:     src,
		reg:     reg,
		ctx:     context.Background(),
		futures: make(map[string]*future),
	}
}

// Resolve starts loading ids for theme and returns immediately. Loads from an
// earlier Resolve that finish later are discarded without touching the map.
func (l *Loader) Resolve(ctx context.Context, theme categories.Theme, ids []string) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.gen++
	gen := l.gen
	l.ctx = ctx
	l.theme = theme
	for _, f := range l.futures {
		f.settle(ErrSuperseded)
	}
	l.futures = make(map[string]*future, len(ids))
	started := make(map[string]*future, len(ids))
	for _, id := range ids {
		if _, ok := started[id]; ok {
			continue
		}
		f := newFuture()
		l.futures[id] = f
		started[id] = f
	}
	l.mu.Unlock()

	log.Printf("[ICONS] Resolving %d icons for %s theme", len(started), theme)
	for id, f := range started {
		go l.load(ctx, gen, theme, id, f)
	}
}

func (l *Loader) load(ctx context.Context, gen uint64, theme categories.Theme, id string, f *future) {
	img, err := l.src.Load(ctx, theme, id)
	if err != nil {
		log.Printf("[ICONS] Failed to load %s (%s): %v", id, theme, err)
		f.settle(fmt.Errorf("load icon %s: %w", id, err))
		return
	}

	l.mu.Lock()
	if l.closed || l.gen != gen {
		l.mu.Unlock()
		f.settle(ErrSuperseded)
		return
	}
	// Held across the swap so a newer Resolve cannot interleave.
	l.reg.RemoveImage(id)
	l.reg.AddImage(id, img)
	l.mu.Unlock()
	f.settle(nil)
}

// Wait blocks until id's current load settles or ctx is done.
func (l *Loader) Wait(ctx context.Context, id string) error {
	l.mu.Lock()
	f, ok := l.futures[id]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("wait for icon %s: %w", id, ErrNotRequested)
	}
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether id has been registered for the current theme.
func (l *Loader) Ready(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, ok := l.futures[id]
	return ok && f.settled() && f.err == nil
}

func (l *Loader) Theme() categories.Theme {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.theme
}

// HandleMissing answers the map asking for an image it does not have. A
// transparent placeholder goes in right away so the layer can draw, and a real
// load for the current theme starts unless one is already running.
func (l *Loader) HandleMissing(id string) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	if !l.reg.HasImage(id) {
		l.reg.AddImage(id, image.NewRGBA(image.Rect(0, 0, 1, 1)))
	}
	if f, ok := l.futures[id]; ok && !f.settled() {
		l.mu.Unlock()
		return
	}
	f := newFuture()
	l.futures[id] = f
	gen, theme, ctx := l.gen, l.theme, l.ctx
	l.mu.Unlock()

	log.Printf("[ICONS] Map is missing %s, loading", id)
	go l.load(ctx, gen, theme, id, f)
}

// Close stops any in-flight load from registering and releases waiters.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.gen++
	for _, f := range l.futures {
		f.settle(ErrSuperseded)
	}
}
