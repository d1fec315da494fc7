package xsystray

import (
	"sync"

	"github.com/jezek/xgb/xproto"
)

// EmbeddedWindow is a client window docked in the tray.
type EmbeddedWindow struct {
	// Window of the tray icon. Unique within a [Registry].
	Handle xproto.Window

	// Index of the screen the window was docked on.
	Screen int

	// XEmbed metadata of the client.
	Info Info

	// Name of the window, taken from _NET_WM_NAME or WM_NAME. Empty if the
	// window has no name.
	Title string
}

// Registry stores embedded windows in the order they were docked. The zero
// value is an empty registry ready to use.
//
// Registry is safe for concurrent use, but consecutive calls are not atomic
// with respect to each other.
type Registry struct {
	mu      sync.RWMutex
	windows []EmbeddedWindow
	index   map[xproto.Window]int
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		index: make(map[xproto.Window]int),
	}
}

// Append adds window to the registry.
//
// If a window with the same handle is already registered, its metadata is
// replaced in place and Append reports false.
func (r *Registry) Append(window EmbeddedWindow) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index == nil {
		r.index = make(map[xproto.Window]int)
	}

	if idx, exists := r.index[window.Handle]; exists {
		r.windows[idx] = window
		return false
	}

	r.index[window.Handle] = len(r.windows)
	r.windows = append(r.windows, window)

	return true
}

// Lookup returns the window registered under handle.
func (r *Registry) Lookup(handle xproto.Window) (EmbeddedWindow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, exists := r.index[handle]
	if !exists {
		return EmbeddedWindow{}, false
	}

	return r.windows[idx], true
}

// Count returns number of registered windows.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.windows)
}

// Windows returns a copy of registered windows.
func (r *Registry) Windows() []EmbeddedWindow {
	r.mu.RLock()
	defer r.mu.RUnlock()

	windows := make([]EmbeddedWindow, len(r.windows))
	copy(windows, r.windows)

	return windows
}

// ForEach calls fn for every registered window in docking order until fn
// returns false.
//
// fn operates on a snapshot, so it may call other methods of the registry.
func (r *Registry) ForEach(fn func(EmbeddedWindow) bool) {
	for _, window := range r.Windows() {
		if !fn(window) {
			return
		}
	}
}
