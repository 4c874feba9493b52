package logger

// Standard field keys for structured logging across the broker. Use these
// consistently so log lines stay greppable and aggregatable.
const (
	// Distributed tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Connection / session identity
	KeyConnID     = "conn_id"     // listener-scoped monotonic connection id
	KeyUniqueName = "unique_name" // bus-assigned unique name (":1.0", ...)
	KeyClientAddr = "client_addr" // remote address of the transport
	KeyListenAddr = "listen_addr" // bound listen address

	// Message routing
	KeyMsgType      = "msg_type" // method_call, method_return, error, signal
	KeySerial       = "serial"
	KeyReplySerial  = "reply_serial"
	KeyPath         = "path"
	KeyInterface    = "interface"
	KeyMember       = "member"
	KeyDestination  = "destination"
	KeySender       = "sender"
	KeyErrorName    = "error_name"
	KeyWellKnown    = "well_known_name"
	KeyQueuePos     = "queue_position"
	KeyOwnerOld     = "old_owner"
	KeyOwnerNew     = "new_owner"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)
