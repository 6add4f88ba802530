package http

const (
	CodeUnknown              = "UNKNOWN"
	CodeMethodNotAllowed     = "METHOD_NOT_ALLOWED"
	CodeUserIDRequired       = "USER_ID_REQUIRED"
	CodeMissingAuthorization = "MISSING_AUTHORIZATION"
	CodeInvalidToken         = "INVALID_TOKEN"
)
