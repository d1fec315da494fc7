package xsystray

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"go.uber.org/zap"
)

// Events the tray listens to on embedded windows.
const embeddedEventMask = xproto.EventMaskStructureNotify |
	xproto.EventMaskPropertyChange |
	xproto.EventMaskEnterWindow

// CacheKind identifies cached rendering state of a screen.
type CacheKind int

const (
	// CacheEmbedded is the state that depends on embedded windows.
	CacheEmbedded CacheKind = iota + 1
)

// Invalidator is notified whenever cached state of a screen must be
// recomputed.
type Invalidator interface {
	Invalidate(screen int, kind CacheKind)
}

// InvalidatorFunc is an adapter to use ordinary functions as [Invalidator].
type InvalidatorFunc func(screen int, kind CacheKind)

func (f InvalidatorFunc) Invalidate(screen int, kind CacheKind) {
	f(screen, kind)
}

// Option configures [Tray].
type Option func(*Tray)

// WithLogger sets logger of the tray. By default nothing is logged.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tray) {
		t.logger = logger
	}
}

// WithVersion sets XEmbed protocol version advertised to clients. Defaults
// to [XEmbedVersion].
func WithVersion(version uint32) Option {
	return func(t *Tray) {
		t.version = version
	}
}

// WithRegistry makes the tray store embedded windows in registry.
func WithRegistry(registry *Registry) Option {
	return func(t *Tray) {
		t.registry = registry
	}
}

// WithInvalidator adds an invalidator. It can be passed multiple times.
func WithInvalidator(invalidator Invalidator) Option {
	return func(t *Tray) {
		t.invalidators = append(t.invalidators, invalidator)
	}
}

// Tray is the host side of the system tray protocol.
//
// Handlers of Tray must be called from a single goroutine. Accessors such as
// [Tray.Owner] and [Tray.Registry] may be used from any goroutine.
type Tray struct {
	display      Display
	logger       *zap.Logger
	version      uint32
	registry     *Registry
	invalidators []Invalidator
	atoms        MessageAtoms
	owners       map[int]*SelectionOwner
	mu           sync.RWMutex
	onDocked     func(EmbeddedWindow)
	onEvent      func(xgb.Event)
}

// New returns a new [Tray] and resolves atoms of the client messages it
// handles.
//
// Atoms that cannot be resolved are logged; messages of that type are then
// treated as unrecognized.
func New(display Display, opts ...Option) *Tray {
	t := &Tray{
		display:  display,
		logger:   zap.NewNop(),
		version:  XEmbedVersion,
		owners:   make(map[int]*SelectionOwner),
		onDocked: func(EmbeddedWindow) {},
		onEvent:  func(xgb.Event) {},
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.registry == nil {
		t.registry = NewRegistry()
	}

	opcodeReq := display.InternAtom(AtomTrayOpcode)
	xembedReq := display.InternAtom(AtomXEmbed)

	t.atoms = MessageAtoms{
		TrayOpcode: t.await(opcodeReq),
		XEmbed:     t.await(xembedReq),
	}

	return t
}

// Registry returns registry of embedded windows.
func (t *Tray) Registry() *Registry {
	return t.registry
}

// Version returns XEmbed protocol version advertised to clients.
func (t *Tray) Version() uint32 {
	return t.version
}

// OnDocked sets callback that runs whenever a window is docked.
//
// It runs for re-docked windows as well.
func (t *Tray) OnDocked(callback func(EmbeddedWindow)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.onDocked = callback
}

// OnEvent sets callback that receives events not handled by the tray, such
// as DestroyNotify of embedded windows.
func (t *Tray) OnEvent(callback func(xgb.Event)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.onEvent = callback
}

// Run reads events from the display and dispatches them until ctx is done
// or the connection is closed.
//
// X errors, which are expected when icons disappear, are logged and
// skipped. When ctx is done, the display is closed and ctx.Err() returned.
func (t *Tray) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			t.display.Close()
		case <-done:
		}
	}()

	for {
		ev, err := t.display.WaitForEvent()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if errors.Is(err, ErrDisplayClosed) {
				return err
			}

			t.logger.Debug("X error", zap.Error(err))
			continue
		}

		t.HandleEvent(ev)
	}
}

// HandleEvent dispatches an X event. Client messages of the tray are
// handled, everything else is passed to the [Tray.OnEvent] callback.
func (t *Tray) HandleEvent(ev xgb.Event) {
	if cm, ok := ev.(xproto.ClientMessageEvent); ok {
		msg := DecodeClientMessage(cm, t.atoms)

		if _, unrecognized := msg.(UnrecognizedMessage); !unrecognized {
			if err := t.HandleMessage(msg); err != nil {
				t.logger.Warn("Failed to handle client message", zap.Error(err))
			}

			return
		}
	}

	t.mu.RLock()
	onEvent := t.onEvent
	t.mu.RUnlock()

	onEvent(ev)
}

// HandleClientMessage decodes and handles a client message.
func (t *Tray) HandleClientMessage(ev xproto.ClientMessageEvent) error {
	return t.HandleMessage(DecodeClientMessage(ev, t.atoms))
}

// HandleMessage handles a decoded client message. Unrecognized messages are
// ignored.
func (t *Tray) HandleMessage(msg Message) error {
	switch m := msg.(type) {
	case DockMessage:
		return t.HandleDockMessage(m)
	case XEmbedMessage:
		t.HandleFocusMessage(m)
		return nil
	case UnrecognizedMessage:
		return nil
	default:
		return fmt.Errorf("unexpected message type %T", msg)
	}
}

// HandleDockMessage handles a _NET_SYSTEM_TRAY_OPCODE message. Only
// SYSTEM_TRAY_REQUEST_DOCK is handled, other opcodes are ignored.
//
// The screen is the one whose root is the root of msg.Sender. If it cannot
// be determined, an error wrapping [ErrGeometryLookup] is returned and
// nothing is registered.
func (t *Tray) HandleDockMessage(msg DockMessage) error {
	if msg.Opcode != RequestDock {
		return nil
	}

	geometry, err := t.display.Geometry(msg.Sender)
	if err != nil {
		return fmt.Errorf("dock 0x%x: %w: %w", msg.Window, ErrGeometryLookup, err)
	}

	screen, ok := ScreenOf(t.display.Roots(), geometry.Root)
	if !ok {
		return fmt.Errorf("dock 0x%x: %w: %w: 0x%x", msg.Window, ErrGeometryLookup, ErrNoScreen, geometry.Root)
	}

	return t.HandleDockRequest(msg.Window, screen, nil)
}

// HandleDockRequest embeds window into the tray of the screen.
//
// If info is nil, _XEMBED_INFO of the window is used. Failures of individual
// requests are logged and do not abort docking; an error is only returned
// when screen does not exist.
func (t *Tray) HandleDockRequest(window xproto.Window, screen int, info *Info) error {
	roots := t.display.Roots()
	if screen < 0 || screen >= len(roots) {
		return fmt.Errorf("dock 0x%x: %w: %d", window, ErrNoScreen, screen)
	}

	logger := t.logger.With(zap.Uint32("window", uint32(window)), zap.Int("screen", screen))

	if err := t.display.SelectInput(window, embeddedEventMask); err != nil {
		logger.Warn("Failed to select input", zap.Error(err))
	}

	if err := t.display.SetWithdrawn(window); err != nil {
		logger.Warn("Failed to withdraw window", zap.Error(err))
	}

	embedded := EmbeddedWindow{
		Handle: window,
		Screen: screen,
	}

	if info != nil {
		embedded.Info = *info
	} else {
		embedded.Info = t.embedInfo(logger, window)
	}

	if title, err := t.display.Title(window); err == nil {
		embedded.Title = title
	}

	if !t.registry.Append(embedded) {
		logger.Debug("Window is already docked, metadata updated")
	}

	if owner, exists := t.Owner(screen); exists && owner.Valid() {
		version := Negotiate(t.version, embedded.Info.Version)

		ev := XEmbedMessageEvent(t.atoms.XEmbed, window, XEmbedEmbeddedNotify, 0, uint32(owner.Window), version)
		if err := t.display.SendClientMessage(window, xproto.EventMaskNoEvent, ev); err != nil {
			logger.Warn("Failed to send XEMBED_EMBEDDED_NOTIFY", zap.Error(err))
		}
	}

	if embedded.Info.Mapped() {
		if err := t.display.Map(window); err != nil {
			logger.Warn("Failed to map window", zap.Error(err))
		}
	}

	// Tray rendering is not bound to a single screen, so every screen is
	// invalidated.
	for idx := range roots {
		for _, invalidator := range t.invalidators {
			invalidator.Invalidate(idx, CacheEmbedded)
		}
	}

	logger.Info("Window docked",
		zap.Uint32("xembed_version", embedded.Info.Version),
		zap.Bool("mapped", embedded.Info.Mapped()),
		zap.String("title", embedded.Title),
	)

	t.mu.RLock()
	onDocked := t.onDocked
	t.mu.RUnlock()

	onDocked(embedded)

	return nil
}

// HandleFocusMessage handles an _XEMBED message. Only XEMBED_REQUEST_FOCUS
// is handled: the window is given focus with XEMBED_FOCUS_CURRENT.
func (t *Tray) HandleFocusMessage(msg XEmbedMessage) {
	switch msg.Code {
	case XEmbedRequestFocus:
		ev := XEmbedMessageEvent(t.atoms.XEmbed, msg.Window, XEmbedFocusIn, XEmbedFocusCurrent, 0, 0)
		if err := t.display.SendClientMessage(msg.Window, xproto.EventMaskNoEvent, ev); err != nil {
			t.logger.Warn("Failed to send XEMBED_FOCUS_IN",
				zap.Uint32("window", uint32(msg.Window)),
				zap.Error(err),
			)
		}
	}
}

// embedInfo reads _XEMBED_INFO of the window, falling back to zero Info.
func (t *Tray) embedInfo(logger *zap.Logger, window xproto.Window) Info {
	info, err := t.display.EmbedInfo(window)
	if err != nil {
		logger.Debug("No XEmbed info", zap.Error(err))
		return Info{}
	}

	return info
}
