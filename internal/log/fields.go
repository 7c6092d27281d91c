package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldStore      = "store"
	FieldOperation  = "operation"
	FieldPhase      = "phase"
	FieldError      = "error"
	FieldErrorType  = "error_type"
	FieldDuration   = "duration_ms"
	FieldCount      = "count"
	FieldUserID     = "user_id"
	FieldKey        = "key"
	FieldExchange   = "exchange"
	FieldRoutingKey = "routing_key"
	FieldAttempt    = "attempt"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentSession   = "session"
	ComponentBudgets   = "budgets"
	ComponentCategory  = "categories"
	ComponentBootstrap = "bootstrap"
	ComponentAPI       = "api"
	ComponentAMQP      = "amqp"
	ComponentCache     = "cache"
	ComponentBackend   = "backend"
	ComponentCLI       = "cli"
)

// Operations defines standard operation names
const (
	OpLogin    = "login"
	OpLogout   = "logout"
	OpRestore  = "restore"
	OpSync     = "sync"
	OpPublish  = "publish"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeStorage       = "storage_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeAuth          = "auth_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithErrorType adds the error category
func (f LogFields) WithErrorType(kind string) LogFields {
	f[FieldErrorType] = kind
	return f
}

// WithTransition adds the fields describing one request phase change
func (f LogFields) WithTransition(store, op, phase string) LogFields {
	f[FieldStore] = store
	f[FieldOperation] = op
	f[FieldPhase] = phase
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
