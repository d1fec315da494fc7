package xsystray

import (
	"fmt"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// ICCCM window states.
const (
	withdrawnState = 0
)

// XDisplay implements [Display] on top of an xgb connection.
type XDisplay struct {
	conn  *xgb.Conn
	setup *xproto.SetupInfo
	mu    sync.Mutex
	atoms map[string]xproto.Atom
}

// NewXDisplay returns a new [XDisplay] that uses conn.
func NewXDisplay(conn *xgb.Conn) *XDisplay {
	return &XDisplay{
		conn:  conn,
		setup: xproto.Setup(conn),
		atoms: make(map[string]xproto.Atom),
	}
}

// OpenXDisplay connects to the X server.
//
// Parameter name is a display name such as ":0". If it is empty, the
// DISPLAY environment variable is used.
func OpenXDisplay(name string) (*XDisplay, error) {
	conn, err := xgb.NewConnDisplay(name)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	return NewXDisplay(conn), nil
}

// Conn returns the underlying connection.
func (d *XDisplay) Conn() *xgb.Conn {
	return d.conn
}

// InternAtom sends an InternAtom request unless the atom is already cached.
func (d *XDisplay) InternAtom(name string) *AtomRequest {
	d.mu.Lock()
	atom, cached := d.atoms[name]
	d.mu.Unlock()

	if cached {
		return ResolvedAtom(name, atom)
	}

	cookie := xproto.InternAtom(d.conn, false, uint16(len(name)), name)

	return NewAtomRequest(name, func() (xproto.Atom, error) {
		reply, err := cookie.Reply()
		if err != nil {
			return xproto.AtomNone, fmt.Errorf("intern atom %s: %w", name, err)
		}

		d.mu.Lock()
		d.atoms[name] = reply.Atom
		d.mu.Unlock()

		return reply.Atom, nil
	})
}

func (d *XDisplay) atom(name string) (xproto.Atom, error) {
	return d.InternAtom(name).Await()
}

func (d *XDisplay) Roots() []xproto.Window {
	roots := make([]xproto.Window, len(d.setup.Roots))
	for idx, screen := range d.setup.Roots {
		roots[idx] = screen.Root
	}

	return roots
}

func (d *XDisplay) Geometry(window xproto.Window) (Geometry, error) {
	reply, err := xproto.GetGeometry(d.conn, xproto.Drawable(window)).Reply()
	if err != nil {
		return Geometry{}, fmt.Errorf("get geometry of 0x%x: %w", window, err)
	}

	if reply == nil {
		return Geometry{}, fmt.Errorf("get geometry of 0x%x: no reply", window)
	}

	return Geometry{
		Root:   reply.Root,
		X:      reply.X,
		Y:      reply.Y,
		Width:  reply.Width,
		Height: reply.Height,
	}, nil
}

func (d *XDisplay) CreateTrayWindow(screen int) (xproto.Window, error) {
	if screen < 0 || screen >= len(d.setup.Roots) {
		return xproto.WindowNone, fmt.Errorf("create tray window: %w: %d", ErrNoScreen, screen)
	}

	info := d.setup.Roots[screen]

	window, err := xproto.NewWindowId(d.conn)
	if err != nil {
		return xproto.WindowNone, fmt.Errorf("create tray window: %w", err)
	}

	err = xproto.CreateWindowChecked(
		d.conn,
		info.RootDepth,
		window,
		info.Root,
		-1, -1, 1, 1,
		0,
		xproto.WindowClassInputOutput,
		info.RootVisual,
		xproto.CwOverrideRedirect|xproto.CwEventMask,
		[]uint32{1, xproto.EventMaskStructureNotify | xproto.EventMaskPropertyChange},
	).Check()
	if err != nil {
		return xproto.WindowNone, fmt.Errorf("create tray window: %w", err)
	}

	return window, nil
}

func (d *XDisplay) SetSelectionOwner(owner xproto.Window, selection xproto.Atom) error {
	err := xproto.SetSelectionOwnerChecked(d.conn, owner, selection, xproto.TimeCurrentTime).Check()
	if err != nil {
		return fmt.Errorf("set selection owner: %w", err)
	}

	return nil
}

func (d *XDisplay) SendClientMessage(destination xproto.Window, eventMask uint32, ev xproto.ClientMessageEvent) error {
	err := xproto.SendEventChecked(d.conn, false, destination, eventMask, string(ev.Bytes())).Check()
	if err != nil {
		return fmt.Errorf("send client message to 0x%x: %w", destination, err)
	}

	return nil
}

func (d *XDisplay) SelectInput(window xproto.Window, eventMask uint32) error {
	err := xproto.ChangeWindowAttributesChecked(d.conn, window, xproto.CwEventMask, []uint32{eventMask}).Check()
	if err != nil {
		return fmt.Errorf("select input on 0x%x: %w", window, err)
	}

	return nil
}

func (d *XDisplay) SetWithdrawn(window xproto.Window) error {
	wmState, err := d.atom(AtomWMState)
	if err != nil {
		return fmt.Errorf("set withdrawn state: %w", err)
	}

	// WM_STATE is
	//
	//  [<state>, <icon window>]
	data := make([]byte, 8)
	xgb.Put32(data[0:], withdrawnState)
	xgb.Put32(data[4:], uint32(xproto.WindowNone))

	err = xproto.ChangePropertyChecked(d.conn, xproto.PropModeReplace, window, wmState, wmState, 32, 2, data).Check()
	if err != nil {
		return fmt.Errorf("set withdrawn state of 0x%x: %w", window, err)
	}

	return nil
}

func (d *XDisplay) Map(window xproto.Window) error {
	if err := xproto.MapWindowChecked(d.conn, window).Check(); err != nil {
		return fmt.Errorf("map 0x%x: %w", window, err)
	}

	return nil
}

func (d *XDisplay) EmbedInfo(window xproto.Window) (Info, error) {
	xembedInfo, err := d.atom(AtomXEmbedInfo)
	if err != nil {
		return Info{}, err
	}

	reply, err := xproto.GetProperty(d.conn, false, window, xembedInfo, xproto.GetPropertyTypeAny, 0, 2).Reply()
	if err != nil {
		return Info{}, fmt.Errorf("get %s of 0x%x: %w", AtomXEmbedInfo, window, err)
	}

	info, ok := InfoFromProperty(reply.Format, reply.Value)
	if !ok {
		return Info{}, fmt.Errorf("get %s of 0x%x: property is missing", AtomXEmbedInfo, window)
	}

	return info, nil
}

func (d *XDisplay) Title(window xproto.Window) (string, error) {
	netWMName := d.InternAtom(AtomNetWMName)
	utf8String := d.InternAtom(AtomUTF8String)

	if name, err := netWMName.Await(); err == nil {
		if typ, err := utf8String.Await(); err == nil {
			if title := d.stringProperty(window, name, typ); title != "" {
				return title, nil
			}
		}
	}

	title := d.stringProperty(window, xproto.AtomWmName, xproto.AtomString)
	if title == "" {
		return "", fmt.Errorf("0x%x has no name", window)
	}

	return title, nil
}

func (d *XDisplay) stringProperty(window xproto.Window, property, typ xproto.Atom) string {
	reply, err := xproto.GetProperty(d.conn, false, window, property, typ, 0, 1024).Reply()
	if err != nil || reply == nil || reply.Format != 8 {
		return ""
	}

	return string(reply.Value)
}

func (d *XDisplay) WaitForEvent() (xgb.Event, error) {
	ev, xerr := d.conn.WaitForEvent()
	if xerr != nil {
		return nil, xerr
	}

	if ev == nil {
		return nil, ErrDisplayClosed
	}

	return ev, nil
}

func (d *XDisplay) Close() {
	d.conn.Close()
}
