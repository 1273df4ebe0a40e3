package log

import "github.com/shopspring/decimal"

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldErrorKind     = "error_kind"
	FieldOperation     = "operation"
	FieldOwnerID       = "owner_id"
	FieldTransactionID = "transaction_id"
	FieldAccountID     = "account_id"
	FieldCardID        = "credit_card_id"
	FieldToAccountID   = "to_account_id"
	FieldTxType        = "type"
	FieldAmount        = "amount"
	FieldEventID       = "event_id"
	FieldEventKind     = "event_kind"
	FieldYear          = "year"
	FieldMonth         = "month"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentAccounts  = "accounts"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentBackend   = "backend"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpTransfer = "transfer"
	OpSummary  = "summary"
	OpVerify   = "verify"
	OpExport   = "export"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithOwner(ownerID int64) LogFields {
	f[FieldOwnerID] = ownerID
	return f
}

// WithTransaction adds the identifying fields of a transaction. Nil
// references are left out.
func (f LogFields) WithTransaction(id int64, typ string, amount decimal.Decimal, accountID, cardID, toAccountID *int64) LogFields {
	f[FieldTransactionID] = id
	f[FieldTxType] = typ
	f[FieldAmount] = amount.StringFixed(2)
	if accountID != nil {
		f[FieldAccountID] = *accountID
	}
	if cardID != nil {
		f[FieldCardID] = *cardID
	}
	if toAccountID != nil {
		f[FieldToAccountID] = *toAccountID
	}
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
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
