package apperrors

// ErrorCode categorizes an AppError for API consumers.
type ErrorCode string

const (
	ErrorCodeInternalError   ErrorCode = "INTERNAL_ERROR"
	ErrorCodeValidationError ErrorCode = "VALIDATION_ERROR"
	ErrorCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrorCodeBlocked         ErrorCode = "ACTION_BLOCKED"
)

// AppError is the base error type for MonitorAPI HTTP responses.
type AppError struct {
	Code       ErrorCode
	Message    string
	StatusCode int
}

func (err *AppError) Error() string {
	return err.Message
}

func NewAppError(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: statusCode}
}

func NewValidationError(message string) *AppError {
	return NewAppError(ErrorCodeValidationError, message, 400)
}

func NewNotFoundError(message string) *AppError {
	return NewAppError(ErrorCodeNotFound, message, 404)
}

func NewBlockedError(message string) *AppError {
	return NewAppError(ErrorCodeBlocked, message, 200)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrorCodeInternalError, message, 500)
}

// EnsureAppError converts an arbitrary error into an AppError.
func EnsureAppError(err error) *AppError {
	if err == nil {
		return NewInternalError("Unknown error")
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return NewInternalError(err.Error())
}
