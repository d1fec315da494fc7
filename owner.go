package xsystray

import (
	"github.com/jezek/xgb/xproto"
	"go.uber.org/zap"
)

// SelectionOwner is the owner of the tray selection of a screen.
type SelectionOwner struct {
	Screen int

	// Window that owns the selection. [xproto.WindowNone] if the window
	// could not be created.
	Window xproto.Window

	// The _NET_SYSTEM_TRAY_S<n> atom. [xproto.AtomNone] if it could not be
	// resolved.
	Selection xproto.Atom
}

// Valid reports whether the owner has a tray window and the selection it
// claims.
func (o *SelectionOwner) Valid() bool {
	return o != nil && o.Window != xproto.WindowNone && o.Selection != xproto.AtomNone
}

// Announce claims the tray selection of the screen and broadcasts the
// MANAGER message to its root window.
//
// Failures are logged. A screen whose tray window could not be created
// still gets an owner record, but [SelectionOwner.Valid] reports false.
func (t *Tray) Announce(screen int) {
	logger := t.logger.With(zap.Int("screen", screen))

	// Both requests are sent before either reply is read.
	managerReq := t.display.InternAtom(AtomManager)
	selectionReq := t.display.InternAtom(TraySelectionName(screen))

	window, err := t.display.CreateTrayWindow(screen)
	if err != nil {
		logger.Warn("Failed to create tray window", zap.Error(err))
		window = xproto.WindowNone
	}

	manager := t.await(managerReq)
	selection := t.await(selectionReq)

	owner := &SelectionOwner{
		Screen:    screen,
		Window:    window,
		Selection: selection,
	}

	t.mu.Lock()
	t.owners[screen] = owner
	t.mu.Unlock()

	if window == xproto.WindowNone || selection == xproto.AtomNone {
		return
	}

	if err := t.display.SetSelectionOwner(window, selection); err != nil {
		logger.Warn("Failed to claim tray selection", zap.Error(err))
		return
	}

	roots := t.display.Roots()
	if screen < 0 || screen >= len(roots) {
		logger.Warn("Screen has no root window")
		return
	}

	root := roots[screen]
	ev := ManagerMessageEvent(manager, root, selection, window)

	if err := t.display.SendClientMessage(root, xproto.EventMaskStructureNotify, ev); err != nil {
		logger.Warn("Failed to broadcast MANAGER message", zap.Error(err))
		return
	}

	logger.Info("Claimed tray selection",
		zap.String("selection", TraySelectionName(screen)),
		zap.Uint32("window", uint32(window)),
	)
}

// AnnounceAll calls [Tray.Announce] for every screen of the display.
func (t *Tray) AnnounceAll() {
	for screen := range t.display.Roots() {
		t.Announce(screen)
	}
}

// Owner returns the selection owner of the screen.
func (t *Tray) Owner(screen int) (*SelectionOwner, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	owner, exists := t.owners[screen]
	return owner, exists
}

// await waits for the atom and logs resolution failures.
func (t *Tray) await(req *AtomRequest) xproto.Atom {
	atom, err := req.Await()
	if err != nil {
		t.logger.Warn("Failed to resolve atom", zap.String("atom", req.Name()), zap.Error(err))
	}

	return atom
}
