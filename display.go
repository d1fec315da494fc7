package xsystray

import (
	"errors"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

var (
	// ErrGeometryLookup is returned when the screen of a window cannot be
	// determined.
	ErrGeometryLookup = errors.New("geometry lookup failed")

	// ErrNoScreen is returned when a root window does not belong to any
	// screen of the display.
	ErrNoScreen = errors.New("no screen with such root")

	// ErrDisplayClosed is returned by [Display.WaitForEvent] once the
	// connection is closed.
	ErrDisplayClosed = errors.New("display connection closed")
)

// Geometry is the geometry of a window.
type Geometry struct {
	Root   xproto.Window
	X, Y   int16
	Width  uint16
	Height uint16
}

// Display is the connection to the X server as seen by the tray.
type Display interface {
	AtomResolver

	// Roots returns root windows of all screens, ordered by screen number.
	Roots() []xproto.Window

	// Geometry queries geometry of the window.
	Geometry(window xproto.Window) (Geometry, error)

	// CreateTrayWindow creates an unmapped 1x1 window on the screen that
	// can own the tray selection.
	CreateTrayWindow(screen int) (xproto.Window, error)

	// SetSelectionOwner makes owner the owner of selection as of now.
	SetSelectionOwner(owner xproto.Window, selection xproto.Atom) error

	// SendClientMessage sends ev to destination with the given event mask.
	SendClientMessage(destination xproto.Window, eventMask uint32, ev xproto.ClientMessageEvent) error

	// SelectInput replaces the event mask the tray listens to on window.
	SelectInput(window xproto.Window, eventMask uint32) error

	// SetWithdrawn sets WM_STATE of the window to WithdrawnState.
	SetWithdrawn(window xproto.Window) error

	// Map maps the window.
	Map(window xproto.Window) error

	// EmbedInfo reads _XEMBED_INFO of the window.
	EmbedInfo(window xproto.Window) (Info, error)

	// Title reads the name of the window.
	Title(window xproto.Window) (string, error)

	// WaitForEvent blocks until the next event or X error. It returns
	// [ErrDisplayClosed] after Close.
	WaitForEvent() (xgb.Event, error)

	// Close closes the connection.
	Close()
}

// ScreenOf returns index of the screen whose root is root.
func ScreenOf(roots []xproto.Window, root xproto.Window) (int, bool) {
	for idx, r := range roots {
		if r == root {
			return idx, true
		}
	}

	return 0, false
}
