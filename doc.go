// Package xsystray is a toolkit-agnostic implementation of the host side of
// the [System Tray Protocol] for X11 window managers. It claims the
// per-screen tray selection, accepts dock requests from tray icons and hands
// them over to the [XEmbed] protocol. This package does not draw icons, it
// is intended to be used by window managers and panels that do.
//
// # Usage
//
// System tray consists of [Tray], [Registry], and an implementation of
// [Display]:
//   - [Display] is the X server connection. [XDisplay] implements it on top
//     of github.com/jezek/xgb.
//   - [Tray] owns the _NET_SYSTEM_TRAY_S<n> selections and handles
//     _NET_SYSTEM_TRAY_OPCODE and _XEMBED client messages.
//   - [Registry] stores embedded windows. It can be shared with renderers
//     and with [BusExporter], which publishes the registry on D-Bus.
//
// All handlers are expected to run on a single goroutine, the one that reads
// events from the X connection (see [Tray.Run]).
//
// [System Tray Protocol]: https://specifications.freedesktop.org/systemtray-spec/latest/
// [XEmbed]: https://specifications.freedesktop.org/xembed-spec/latest/
package xsystray
