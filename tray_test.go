package xsystray

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type invalidation struct {
	screen int
	kind   CacheKind
}

type recordingInvalidator struct {
	calls []invalidation
}

func (r *recordingInvalidator) Invalidate(screen int, kind CacheKind) {
	r.calls = append(r.calls, invalidation{screen: screen, kind: kind})
}

func newTestTray(t *testing.T, screens int, opts ...Option) (*Tray, *fakeDisplay, *recordingInvalidator) {
	t.Helper()

	display := newFakeDisplay(screens)
	invalidator := &recordingInvalidator{}

	tray := New(display, append([]Option{WithInvalidator(invalidator)}, opts...)...)
	display.calls = nil

	return tray, display, invalidator
}

func TestTray_DockScenario(t *testing.T) {
	tray, display, invalidator := newTestTray(t, 2, WithVersion(2))

	tray.Announce(1)
	owner, ok := tray.Owner(1)
	require.True(t, ok)
	require.True(t, owner.Valid())

	display.geometry[owner.Window] = Geometry{Root: display.roots[1]}
	display.infos[0x700] = Info{Version: 4, Flags: FlagMapped}
	display.sent = nil

	ev := clientMessage(display.atom(AtomTrayOpcode), owner.Window, 0, RequestDock, 0x700)
	require.NoError(t, tray.HandleClientMessage(ev))

	require.Equal(t, 1, tray.Registry().Count())
	window, ok := tray.Registry().Lookup(0x700)
	require.True(t, ok)
	assert.Equal(t, 1, window.Screen)
	assert.Equal(t, Info{Version: 4, Flags: FlagMapped}, window.Info)

	notify := display.sentOfType(display.atom(AtomXEmbed))
	require.Len(t, notify, 1)
	assert.Equal(t, xproto.Window(0x700), notify[0].destination)
	assert.Equal(t, uint32(xproto.EventMaskNoEvent), notify[0].eventMask)
	assert.Equal(t, []uint32{0, uint32(XEmbedEmbeddedNotify), 0, uint32(owner.Window), 2}, notify[0].ev.Data.Data32)

	assert.Equal(t, []xproto.Window{0x700}, display.mapped)
	assert.Equal(t, []invalidation{{0, CacheEmbedded}, {1, CacheEmbedded}}, invalidator.calls)
}

func TestTray_HandleDockRequestOrder(t *testing.T) {
	tray, display, _ := newTestTray(t, 1)
	tray.Announce(0)
	display.calls = nil
	display.infos[0x700] = Info{Flags: FlagMapped}

	require.NoError(t, tray.HandleDockRequest(0x700, 0, nil))

	assert.Equal(t, []string{
		"select 0x700",
		"withdraw 0x700",
		"info 0x700",
		"send 0x700",
		"map 0x700",
	}, display.calls)

	assert.Equal(t, uint32(embeddedEventMask), display.eventMasks[0x700])
	assert.Equal(t, []xproto.Window{0x700}, display.withdrawn)
}

func TestTray_HandleDockRequestWithInfo(t *testing.T) {
	tray, display, _ := newTestTray(t, 1)
	display.infos[0x700] = Info{Version: 9}

	info := Info{Version: 1}
	require.NoError(t, tray.HandleDockRequest(0x700, 0, &info))

	assert.NotContains(t, display.calls, "info 0x700")

	window, ok := tray.Registry().Lookup(0x700)
	require.True(t, ok)
	assert.Equal(t, info, window.Info)
}

func TestTray_HandleDockRequestMissingInfo(t *testing.T) {
	tray, display, invalidator := newTestTray(t, 1, WithVersion(1))
	tray.Announce(0)
	display.sent = nil

	require.NoError(t, tray.HandleDockRequest(0x700, 0, nil))

	window, ok := tray.Registry().Lookup(0x700)
	require.True(t, ok)
	assert.Equal(t, Info{}, window.Info)
	assert.Empty(t, display.mapped)
	assert.Len(t, invalidator.calls, 1)

	notify := display.sentOfType(display.atom(AtomXEmbed))
	require.Len(t, notify, 1)
	assert.Equal(t, uint32(0), notify[0].ev.Data.Data32[4])
}

func TestTray_VisibilityFollowsFlag(t *testing.T) {
	tray, display, _ := newTestTray(t, 1)

	require.NoError(t, tray.HandleDockRequest(0x700, 0, &Info{Flags: FlagMapped}))
	require.NoError(t, tray.HandleDockRequest(0x701, 0, &Info{}))

	assert.Equal(t, []xproto.Window{0x700}, display.mapped)
	assert.Equal(t, []xproto.Window{0x700, 0x701}, display.withdrawn)
}

func TestTray_InvalidatesEveryScreen(t *testing.T) {
	tray, _, invalidator := newTestTray(t, 3)

	require.NoError(t, tray.HandleDockRequest(0x700, 2, nil))

	assert.Equal(t, []invalidation{
		{0, CacheEmbedded},
		{1, CacheEmbedded},
		{2, CacheEmbedded},
	}, invalidator.calls)
}

func TestTray_MultipleInvalidators(t *testing.T) {
	var screens []int
	tray, _, invalidator := newTestTray(t, 2, WithInvalidator(InvalidatorFunc(func(screen int, kind CacheKind) {
		screens = append(screens, screen)
	})))

	require.NoError(t, tray.HandleDockRequest(0x700, 0, nil))

	assert.Len(t, invalidator.calls, 2)
	assert.Equal(t, []int{0, 1}, screens)
}

func TestTray_NoHandshakeWithoutOwner(t *testing.T) {
	tray, display, _ := newTestTray(t, 2)
	tray.Announce(0)
	display.sent = nil

	require.NoError(t, tray.HandleDockRequest(0x700, 1, &Info{Flags: FlagMapped}))

	assert.Empty(t, display.sentOfType(display.atom(AtomXEmbed)))
	assert.Equal(t, []xproto.Window{0x700}, display.mapped)
	assert.Equal(t, 1, tray.Registry().Count())
}

func TestTray_NoHandshakeWithInvalidOwner(t *testing.T) {
	tray, display, _ := newTestTray(t, 1)
	display.failCreate = true
	tray.Announce(0)

	require.NoError(t, tray.HandleDockRequest(0x700, 0, nil))

	assert.Empty(t, display.sent)
	assert.Equal(t, 1, tray.Registry().Count())
}

func TestTray_RedockIsIdempotent(t *testing.T) {
	tray, _, invalidator := newTestTray(t, 1)

	require.NoError(t, tray.HandleDockRequest(0x700, 0, &Info{Version: 0}))
	require.NoError(t, tray.HandleDockRequest(0x700, 0, &Info{Version: 1}))

	assert.Equal(t, 1, tray.Registry().Count())

	window, _ := tray.Registry().Lookup(0x700)
	assert.Equal(t, uint32(1), window.Info.Version)
	assert.Len(t, invalidator.calls, 2)
}

func TestTray_HandleDockRequestUnknownScreen(t *testing.T) {
	tray, display, invalidator := newTestTray(t, 1)

	err := tray.HandleDockRequest(0x700, 3, nil)
	assert.ErrorIs(t, err, ErrNoScreen)
	assert.Equal(t, 0, tray.Registry().Count())
	assert.Empty(t, display.calls)
	assert.Empty(t, invalidator.calls)
}

func TestTray_HandleDockRequestTitle(t *testing.T) {
	tray, display, _ := newTestTray(t, 1)
	display.titles[0x700] = "nm-applet"

	require.NoError(t, tray.HandleDockRequest(0x700, 0, nil))

	window, _ := tray.Registry().Lookup(0x700)
	assert.Equal(t, "nm-applet", window.Title)
}

func TestTray_HandleDockMessageGeometryFailure(t *testing.T) {
	tray, display, invalidator := newTestTray(t, 2)

	err := tray.HandleDockMessage(DockMessage{Sender: 0x400001, Opcode: RequestDock, Window: 0x700})
	assert.ErrorIs(t, err, ErrGeometryLookup)

	assert.Equal(t, 0, tray.Registry().Count())
	assert.Empty(t, invalidator.calls)
	assert.Equal(t, []string{"geometry 0x400001"}, display.calls)
}

func TestTray_HandleDockMessageNoScreen(t *testing.T) {
	tray, display, invalidator := newTestTray(t, 2)
	display.geometry[0x400001] = Geometry{Root: 0x999}

	err := tray.HandleDockMessage(DockMessage{Sender: 0x400001, Opcode: RequestDock, Window: 0x700})
	assert.ErrorIs(t, err, ErrGeometryLookup)
	assert.ErrorIs(t, err, ErrNoScreen)

	assert.Equal(t, 0, tray.Registry().Count())
	assert.Empty(t, invalidator.calls)
}

func TestTray_HandleDockMessageResolvesSenderScreen(t *testing.T) {
	tray, display, _ := newTestTray(t, 3)
	display.geometry[0x400001] = Geometry{Root: display.roots[2]}
	display.geometry[0x700] = Geometry{Root: display.roots[0]}

	require.NoError(t, tray.HandleDockMessage(DockMessage{Sender: 0x400001, Opcode: RequestDock, Window: 0x700}))

	window, ok := tray.Registry().Lookup(0x700)
	require.True(t, ok)
	assert.Equal(t, 2, window.Screen)
}

func TestTray_HandleDockMessageIgnoresOtherOpcodes(t *testing.T) {
	tray, display, _ := newTestTray(t, 1)

	for _, opcode := range []uint32{BeginMessage, CancelMessage, 42} {
		require.NoError(t, tray.HandleDockMessage(DockMessage{Sender: 0x400001, Opcode: opcode, Window: 0x700}))
	}

	assert.Empty(t, display.calls)
	assert.Equal(t, 0, tray.Registry().Count())
}

func TestTray_FocusRequest(t *testing.T) {
	tray, display, invalidator := newTestTray(t, 1)
	tray.Registry().Append(EmbeddedWindow{Handle: 0x700})
	before := tray.Registry().Windows()

	ev := clientMessage(display.atom(AtomXEmbed), 0x700, 0, uint32(XEmbedRequestFocus))
	require.NoError(t, tray.HandleClientMessage(ev))

	require.Len(t, display.sent, 1)
	assert.Equal(t, xproto.Window(0x700), display.sent[0].destination)
	assert.Equal(t, []uint32{0, uint32(XEmbedFocusIn), XEmbedFocusCurrent, 0, 0}, display.sent[0].ev.Data.Data32)

	assert.Equal(t, before, tray.Registry().Windows())
	assert.Empty(t, invalidator.calls)
}

func TestTray_FocusRequestUnknownWindow(t *testing.T) {
	tray, display, _ := newTestTray(t, 1)

	tray.HandleFocusMessage(XEmbedMessage{Window: 0x800, Code: XEmbedRequestFocus})

	assert.Len(t, display.sent, 1)
	assert.Equal(t, 0, tray.Registry().Count())
}

func TestTray_IgnoresOtherXEmbedMessages(t *testing.T) {
	tray, display, _ := newTestTray(t, 1)

	for _, code := range []XEmbedCode{XEmbedFocusNext, XEmbedFocusPrev, XEmbedModalityOn, 99} {
		tray.HandleFocusMessage(XEmbedMessage{Window: 0x700, Code: code})
	}

	assert.Empty(t, display.sent)
}

func TestTray_OnDocked(t *testing.T) {
	tray, _, _ := newTestTray(t, 1)

	var docked []EmbeddedWindow
	tray.OnDocked(func(window EmbeddedWindow) {
		docked = append(docked, window)
	})

	require.NoError(t, tray.HandleDockRequest(0x700, 0, &Info{Flags: FlagMapped}))

	require.Len(t, docked, 1)
	assert.Equal(t, xproto.Window(0x700), docked[0].Handle)
}

func TestTray_HandleEvent(t *testing.T) {
	tray, display, _ := newTestTray(t, 1)
	display.geometry[0x400001] = Geometry{Root: display.roots[0]}

	var forwarded []xgb.Event
	tray.OnEvent(func(ev xgb.Event) {
		forwarded = append(forwarded, ev)
	})

	destroy := xproto.DestroyNotifyEvent{Event: 0x700, Window: 0x700}
	unknown := clientMessage(999, 0x700)

	tray.HandleEvent(clientMessage(display.atom(AtomTrayOpcode), 0x400001, 0, RequestDock, 0x700))
	tray.HandleEvent(destroy)
	tray.HandleEvent(unknown)

	assert.Equal(t, 1, tray.Registry().Count())
	assert.Equal(t, []xgb.Event{destroy, unknown}, forwarded)
}

func TestTray_UnresolvedAtoms(t *testing.T) {
	display := newFakeDisplay(1)
	display.failAtoms[AtomXEmbed] = true

	tray := New(display)

	var forwarded int
	tray.OnEvent(func(xgb.Event) {
		forwarded++
	})

	tray.HandleEvent(clientMessage(xproto.AtomNone, 0x700, 0, uint32(XEmbedRequestFocus)))

	assert.Equal(t, 1, forwarded)
	assert.Empty(t, display.sent)
}

func TestTray_Run(t *testing.T) {
	tray, display, _ := newTestTray(t, 1)
	display.geometry[0x400001] = Geometry{Root: display.roots[0]}

	destroyed := make(chan xproto.Window, 1)
	tray.OnEvent(func(ev xgb.Event) {
		if destroy, ok := ev.(xproto.DestroyNotifyEvent); ok {
			destroyed <- destroy.Window
		}
	})

	display.events <- waitResult{ev: clientMessage(display.atom(AtomTrayOpcode), 0x400001, 0, RequestDock, 0x700)}
	display.events <- waitResult{err: errors.New("BadWindow")}
	display.events <- waitResult{ev: xproto.DestroyNotifyEvent{Window: 0x700}}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() {
		errCh <- tray.Run(ctx)
	}()

	select {
	case window := <-destroyed:
		assert.Equal(t, xproto.Window(0x700), window)
	case <-time.After(time.Second):
		t.Fatal("event was not dispatched")
	}

	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}

	assert.Equal(t, 1, tray.Registry().Count())
	assert.Equal(t, 1, display.closedCalls)
}

func TestTray_RunDisplayClosed(t *testing.T) {
	tray, display, _ := newTestTray(t, 1)
	display.Close()

	err := tray.Run(context.Background())
	assert.ErrorIs(t, err, ErrDisplayClosed)
}

func TestTray_ZeroValueRegistry(t *testing.T) {
	registry := &Registry{}
	tray, _, _ := newTestTray(t, 1, WithRegistry(registry))

	require.NotPanics(t, func() {
		require.NoError(t, tray.HandleDockRequest(0x700, 0, nil))
	})

	assert.Equal(t, 1, registry.Count())
}
