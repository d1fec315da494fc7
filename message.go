package xsystray

import "github.com/jezek/xgb/xproto"

// Opcodes of _NET_SYSTEM_TRAY_OPCODE messages.
const (
	RequestDock   uint32 = 0
	BeginMessage  uint32 = 1
	CancelMessage uint32 = 2
)

// Message is a decoded client message. It is one of [DockMessage],
// [XEmbedMessage], or [UnrecognizedMessage].
type Message interface {
	message()
}

// DockMessage is a _NET_SYSTEM_TRAY_OPCODE client message.
//
// Payload is
//
//	[<timestamp>, <opcode>, <window>, <reserved>, <reserved>]
type DockMessage struct {
	// Window the message was sent to.
	Sender xproto.Window

	Timestamp xproto.Timestamp
	Opcode    uint32

	// Window that asks to be docked.
	Window xproto.Window
}

// XEmbedMessage is an _XEMBED client message.
//
// Payload is
//
//	[<timestamp>, <code>, <detail>, <data1>, <data2>]
type XEmbedMessage struct {
	Window    xproto.Window
	Timestamp xproto.Timestamp
	Code      XEmbedCode
	Detail    uint32
	Data1     uint32
	Data2     uint32
}

// UnrecognizedMessage is a client message that is not handled by the tray.
type UnrecognizedMessage struct {
	Window xproto.Window
	Type   xproto.Atom
}

func (DockMessage) message()         {}
func (XEmbedMessage) message()       {}
func (UnrecognizedMessage) message() {}

// MessageAtoms holds atoms used to classify client messages.
type MessageAtoms struct {
	TrayOpcode xproto.Atom
	XEmbed     xproto.Atom
}

// DecodeClientMessage classifies a client message event.
//
// Messages of unknown type or not in 32-bit format are returned as
// [UnrecognizedMessage]. An atom that failed to resolve (AtomNone) never
// matches.
func DecodeClientMessage(ev xproto.ClientMessageEvent, atoms MessageAtoms) Message {
	unrecognized := UnrecognizedMessage{Window: ev.Window, Type: ev.Type}

	data := ev.Data.Data32
	if ev.Format != 32 || len(data) < 5 || ev.Type == xproto.AtomNone {
		return unrecognized
	}

	switch ev.Type {
	case atoms.TrayOpcode:
		return DockMessage{
			Sender:    ev.Window,
			Timestamp: xproto.Timestamp(data[0]),
			Opcode:    data[1],
			Window:    xproto.Window(data[2]),
		}
	case atoms.XEmbed:
		return XEmbedMessage{
			Window:    ev.Window,
			Timestamp: xproto.Timestamp(data[0]),
			Code:      XEmbedCode(data[1]),
			Detail:    data[2],
			Data1:     data[3],
			Data2:     data[4],
		}
	default:
		return unrecognized
	}
}
