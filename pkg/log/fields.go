package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches pkg/middleware/auth.go keys)
	FieldUserID = "user_id"
	FieldRoles  = "roles"

	// Messaging
	FieldConnID        = "conn_id"
	FieldRoom          = "room"
	FieldMessageID     = "message_id"
	FieldCounterpartID = "counterpart_id"
	FieldEvent         = "event"

	// Service
	FieldService = "service"

	// gRPC
	FieldGRPCMethod = "grpc_method"
	FieldGRPCCode   = "grpc_code"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
