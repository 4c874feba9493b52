package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for bus message spans, following OpenTelemetry semantic
// convention style: dotted, lowercase, namespaced by concern.
const (
	AttrClientAddr = "client.address"

	AttrBusSerial      = "dbus.serial"
	AttrBusReplySerial = "dbus.reply_serial"
	AttrBusType        = "dbus.message_type"
	AttrBusPath        = "dbus.path"
	AttrBusInterface   = "dbus.interface"
	AttrBusMember      = "dbus.member"
	AttrBusDestination = "dbus.destination"
	AttrBusSender      = "dbus.sender"
	AttrBusErrorName   = "dbus.error_name"
	AttrBusUniqueName  = "dbus.unique_name"
)

// Span names for bus operations.
const (
	// SpanBusDispatch is the span recorded around one
	// org.freedesktop.DBus method dispatch (Hello, RequestName,
	// AddMatch, ...).
	SpanBusDispatch = "bus.dispatch"

	// SpanRoute is the name StartRouteSpan gives a span around one pass
	// through the router's critical section for a single message. The
	// broker's router does not start this span.
	SpanRoute = "bus.route"
)

func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

func BusSerial(serial uint32) attribute.KeyValue {
	return attribute.Int64(AttrBusSerial, int64(serial))
}

func BusReplySerial(serial uint32) attribute.KeyValue {
	return attribute.Int64(AttrBusReplySerial, int64(serial))
}

func BusType(t string) attribute.KeyValue {
	return attribute.String(AttrBusType, t)
}

func BusPath(path string) attribute.KeyValue {
	return attribute.String(AttrBusPath, path)
}

func BusInterface(iface string) attribute.KeyValue {
	return attribute.String(AttrBusInterface, iface)
}

func BusMember(member string) attribute.KeyValue {
	return attribute.String(AttrBusMember, member)
}

func BusDestination(dest string) attribute.KeyValue {
	return attribute.String(AttrBusDestination, dest)
}

func BusSender(sender string) attribute.KeyValue {
	return attribute.String(AttrBusSender, sender)
}

func BusErrorName(name string) attribute.KeyValue {
	return attribute.String(AttrBusErrorName, name)
}

func BusUniqueName(name string) attribute.KeyValue {
	return attribute.String(AttrBusUniqueName, name)
}

// StartBusDispatchSpan starts a span named SpanBusDispatch for one
// org.freedesktop.DBus method call, with the dispatched member recorded as
// the dbus.member attribute.
func StartBusDispatchSpan(ctx context.Context, member string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{BusMember(member)}, attrs...)
	return StartSpan(ctx, SpanBusDispatch, trace.WithAttributes(allAttrs...))
}

// StartRouteSpan starts a span for one pass through the router's critical
// section for a single message.
func StartRouteSpan(ctx context.Context, msgType string, serial uint32, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{BusType(msgType), BusSerial(serial)}, attrs...)
	return StartSpan(ctx, SpanRoute, trace.WithAttributes(allAttrs...))
}
