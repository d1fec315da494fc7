package xsystray

import (
	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// XEmbedVersion is the version of the XEmbed protocol implemented by the
// tray.
const XEmbedVersion uint32 = 0

// XEmbedCode is the message code of an _XEMBED client message.
type XEmbedCode uint32

// XEmbed messages.
const (
	XEmbedEmbeddedNotify        XEmbedCode = 0
	XEmbedWindowActivate        XEmbedCode = 1
	XEmbedWindowDeactivate      XEmbedCode = 2
	XEmbedRequestFocus          XEmbedCode = 3
	XEmbedFocusIn               XEmbedCode = 4
	XEmbedFocusOut              XEmbedCode = 5
	XEmbedFocusNext             XEmbedCode = 6
	XEmbedFocusPrev             XEmbedCode = 7
	XEmbedModalityOn            XEmbedCode = 10
	XEmbedModalityOff           XEmbedCode = 11
	XEmbedRegisterAccelerator   XEmbedCode = 12
	XEmbedUnregisterAccelerator XEmbedCode = 13
	XEmbedActivateAccelerator   XEmbedCode = 14
)

// Details of the XEMBED_FOCUS_IN message.
const (
	// Focus the embedded window without changing which of its widgets has
	// focus.
	XEmbedFocusCurrent uint32 = 0
	XEmbedFocusFirst   uint32 = 1
	XEmbedFocusLast    uint32 = 2
)

// InfoFlags are flags of the _XEMBED_INFO property.
type InfoFlags uint32

// FlagMapped is set when the client wants the embedded window to be mapped.
const FlagMapped InfoFlags = 1 << 0

// Info is the content of the _XEMBED_INFO property of an embedded window.
type Info struct {
	// Version of the protocol supported by the client.
	Version uint32

	// Flags requested by the client.
	Flags InfoFlags
}

// Mapped reports whether the client asked to be mapped.
func (i Info) Mapped() bool {
	return i.Flags&FlagMapped != 0
}

// InfoFromProperty decodes _XEMBED_INFO from a property reply.
//
// Format of the property is two CARD32 values
//
//	[<version>, <flags>]
//
// ok is false if the property is missing or malformed, in which case the
// zero Info is returned.
func InfoFromProperty(format byte, value []byte) (info Info, ok bool) {
	if format != 32 || len(value) < 8 {
		return Info{}, false
	}

	return Info{
		Version: xgb.Get32(value[0:]),
		Flags:   InfoFlags(xgb.Get32(value[4:])),
	}, true
}

// Negotiate returns the protocol version both sides support.
func Negotiate(local, client uint32) uint32 {
	return min(local, client)
}

// XEmbedMessageEvent returns an _XEMBED client message addressed to window.
func XEmbedMessageEvent(xembed xproto.Atom, window xproto.Window, code XEmbedCode, detail, data1, data2 uint32) xproto.ClientMessageEvent {
	return xproto.ClientMessageEvent{
		Format: 32,
		Window: window,
		Type:   xembed,
		Data: xproto.ClientMessageDataUnionData32New([]uint32{
			uint32(xproto.TimeCurrentTime),
			uint32(code),
			detail,
			data1,
			data2,
		}),
	}
}

// ManagerMessageEvent returns the MANAGER client message that announces a
// new owner of the tray selection.
func ManagerMessageEvent(manager xproto.Atom, root xproto.Window, selection xproto.Atom, owner xproto.Window) xproto.ClientMessageEvent {
	return xproto.ClientMessageEvent{
		Format: 32,
		Window: root,
		Type:   manager,
		Data: xproto.ClientMessageDataUnionData32New([]uint32{
			uint32(xproto.TimeCurrentTime),
			uint32(selection),
			uint32(owner),
			0,
			0,
		}),
	}
}
