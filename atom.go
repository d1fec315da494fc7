package xsystray

import (
	"fmt"
	"sync"

	"github.com/jezek/xgb/xproto"
)

// Names of the atoms used by the tray.
const (
	AtomManager     = "MANAGER"
	AtomTrayOpcode  = "_NET_SYSTEM_TRAY_OPCODE"
	AtomXEmbed      = "_XEMBED"
	AtomXEmbedInfo  = "_XEMBED_INFO"
	AtomWMState     = "WM_STATE"
	AtomNetWMName   = "_NET_WM_NAME"
	AtomUTF8String  = "UTF8_STRING"
	traySelectionFn = "_NET_SYSTEM_TRAY_S%d"
)

// TraySelectionName returns name of the tray selection of the screen.
func TraySelectionName(screen int) string {
	return fmt.Sprintf(traySelectionFn, screen)
}

// AtomState describes progress of an [AtomRequest].
type AtomState int

const (
	AtomPending AtomState = iota
	AtomResolved
	AtomFailed
)

func (s AtomState) String() string {
	switch s {
	case AtomPending:
		return "pending"
	case AtomResolved:
		return "resolved"
	case AtomFailed:
		return "failed"
	default:
		return fmt.Sprintf("AtomState(%d)", int(s))
	}
}

// AtomResolver resolves atom names to atoms.
//
// InternAtom must not block: it sends the request and returns immediately,
// so that several requests can be in flight before the first reply is read.
type AtomResolver interface {
	InternAtom(name string) *AtomRequest
}

// AtomRequest is an atom resolution whose reply may not have been read yet.
type AtomRequest struct {
	name  string
	once  sync.Once
	state AtomState
	atom  xproto.Atom
	err   error
	reply func() (xproto.Atom, error)
}

// NewAtomRequest returns a pending [AtomRequest]. Function reply is called at
// most once, by the first [AtomRequest.Await].
func NewAtomRequest(name string, reply func() (xproto.Atom, error)) *AtomRequest {
	return &AtomRequest{
		name:  name,
		state: AtomPending,
		reply: reply,
	}
}

// ResolvedAtom returns an [AtomRequest] that is already resolved.
func ResolvedAtom(name string, atom xproto.Atom) *AtomRequest {
	r := &AtomRequest{name: name, state: AtomResolved, atom: atom}
	r.once.Do(func() {})
	return r
}

// FailedAtom returns an [AtomRequest] that has already failed.
func FailedAtom(name string, err error) *AtomRequest {
	r := &AtomRequest{name: name, state: AtomFailed, atom: xproto.AtomNone, err: err}
	r.once.Do(func() {})
	return r
}

// Name returns name of the requested atom.
func (r *AtomRequest) Name() string {
	return r.name
}

// State returns the current state of the request.
func (r *AtomRequest) State() AtomState {
	return r.state
}

// Await waits for the reply and returns the atom.
//
// On failure it returns [xproto.AtomNone] together with the error. Callers
// that can live without the atom may ignore the error and pass AtomNone
// along.
func (r *AtomRequest) Await() (xproto.Atom, error) {
	r.once.Do(func() {
		atom, err := r.reply()
		if err != nil {
			r.state = AtomFailed
			r.atom = xproto.AtomNone
			r.err = err
			return
		}

		r.state = AtomResolved
		r.atom = atom
	})

	return r.atom, r.err
}
