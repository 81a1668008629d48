package errors

import "net/http"

// ErrorCode represents the type of error returned to API clients
type ErrorCode string

const (
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	CodeBadRequest     ErrorCode = "BAD_REQUEST"
	CodeInvalidListing ErrorCode = "INVALID_LISTING"
	CodeInternalError  ErrorCode = "INTERNAL_ERROR"
	CodeRateLimited    ErrorCode = "RATE_LIMITED"
	CodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
	CodeTimeout        ErrorCode = "TIMEOUT"
)

// StatusCodeMap maps ErrorCode to HTTP status code
var StatusCodeMap = map[ErrorCode]int{
	CodeNotFound:       http.StatusNotFound,
	CodeUnauthorized:   http.StatusUnauthorized,
	CodeBadRequest:     http.StatusBadRequest,
	CodeInvalidListing: http.StatusBadRequest,
	CodeInternalError:  http.StatusInternalServerError,
	CodeRateLimited:    http.StatusTooManyRequests,
	CodeServiceUnavail: http.StatusServiceUnavailable,
	CodeTimeout:        http.StatusGatewayTimeout,
}

// StatusCode returns the HTTP status code for this error code
func (e ErrorCode) StatusCode() int {
	if code, ok := StatusCodeMap[e]; ok {
		return code
	}
	return http.StatusInternalServerError
}
