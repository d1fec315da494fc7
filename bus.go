package xsystray

import (
	"fmt"
	"slices"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
)

const (
	TrayBusName      = "io.github.shelepuginivan.XEmbedTray"
	TrayBusInterface = "io.github.shelepuginivan.XEmbedTray"
	TrayBusPath      = "/XEmbedTray"
)

// BusExporter publishes embedded windows of a [Registry] on D-Bus.
//
// It implements [Invalidator]: pass it to [WithInvalidator] to refresh the
// exported properties and emit EmbeddedInvalidated whenever a window is
// docked.
type BusExporter struct {
	closed   bool
	conn     *dbus.Conn
	mu       sync.Mutex
	registry *Registry
	version  uint32
	props    *prop.Properties
	exported []uint32
}

// NewBusExporter returns a new [BusExporter].
func NewBusExporter(conn *dbus.Conn, registry *Registry, version uint32) *BusExporter {
	return &BusExporter{
		closed:   false,
		conn:     conn,
		registry: registry,
		version:  version,
	}
}

// Listen requests the bus name and exports the tray object.
//
// If Listen is called after [BusExporter.Close], an error is returned.
func (b *BusExporter) Listen() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("listen: exporter is closed")
	}

	reply, err := b.conn.RequestName(TrayBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("listen: failed to request name %s: %w", TrayBusName, err)
	}

	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("listen: name %s already taken", TrayBusName)
	}

	if err := b.conn.Export(b, TrayBusPath, TrayBusInterface); err != nil {
		return fmt.Errorf("listen: failed to export %s: %w", TrayBusInterface, err)
	}

	b.exported = windowHandles(b.registry)

	props, err := prop.Export(b.conn, TrayBusPath, prop.Map{
		TrayBusInterface: map[string]*prop.Prop{
			"EmbeddedWindows": {
				Value:    b.exported,
				Writable: false,
				Emit:     prop.EmitTrue,
			},
			"ProtocolVersion": {
				Value:    b.version,
				Writable: false,
				Emit:     prop.EmitTrue,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("listen: failed to export properties: %w", err)
	}

	b.props = props

	return nil
}

// Close releases the bus name and unexports the tray object.
//
// BusExporter cannot be reused after Close was called.
func (b *BusExporter) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	b.props = nil

	if err := b.conn.Export(nil, TrayBusPath, TrayBusInterface); err != nil {
		return err
	}

	if err := b.conn.Export(nil, TrayBusPath, "org.freedesktop.DBus.Properties"); err != nil {
		return err
	}

	_, err := b.conn.ReleaseName(TrayBusName)
	return err
}

// Windows returns handles of embedded windows. It is exported on D-Bus.
func (b *BusExporter) Windows() ([]uint32, *dbus.Error) {
	return windowHandles(b.registry), nil
}

// Invalidate emits EmbeddedInvalidated for the screen. EmbeddedWindows is
// only updated when the registry changed since the last update, so a dock
// invalidating every screen changes the property once.
func (b *BusExporter) Invalidate(screen int, kind CacheKind) {
	if kind != CacheEmbedded {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || b.props == nil {
		return
	}

	if handles := windowHandles(b.registry); !slices.Equal(handles, b.exported) {
		b.props.SetMust(TrayBusInterface, "EmbeddedWindows", handles)
		b.exported = handles
	}

	b.conn.Emit(TrayBusPath, TrayBusInterface+".EmbeddedInvalidated", int32(screen))
}

// windowHandles returns handles of registered windows in docking order.
func windowHandles(registry *Registry) []uint32 {
	handles := make([]uint32, 0, registry.Count())

	registry.ForEach(func(window EmbeddedWindow) bool {
		handles = append(handles, uint32(window.Handle))
		return true
	})

	return handles
}
