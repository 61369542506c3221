package response

import (
	"errors"
	"net/http"

	"github.com/goclaw/intersection/config"
	"github.com/goclaw/intersection/pkg/controller"
	"github.com/goclaw/intersection/pkg/intersection"
	"github.com/goclaw/intersection/pkg/storage"
)

// ErrorResponse is the error envelope of every failed request.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// Error codes.
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	ErrCodeConflict           = "CONFLICT"
	ErrCodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	ErrCodeUnsupportedMedia   = "UNSUPPORTED_MEDIA_TYPE"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeInternalServer     = "INTERNAL_SERVER_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeGatewayTimeout     = "GATEWAY_TIMEOUT"
)

// Request errors raised by the handlers themselves.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrPayloadTooLarge  = errors.New("payload too large")
)

// HTTPStatusFromError maps domain errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	var (
		notFound     *storage.NotFoundError
		invalidImage *storage.InvalidImageError
		unavailable  *storage.StorageUnavailableError
		validation   config.ValidationErrors
		maxBytes     *http.MaxBytesError
	)

	switch {
	case errors.Is(err, controller.ErrUnknownRoad), errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.Is(err, intersection.ErrInvalidConfiguration),
		errors.As(err, &validation),
		errors.As(err, &invalidImage),
		errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrPayloadTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, controller.ErrClosed), errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCodeFromStatus returns the error code for an HTTP status.
func ErrorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return ErrCodeBadRequest
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusMethodNotAllowed:
		return ErrCodeMethodNotAllowed
	case http.StatusConflict:
		return ErrCodeConflict
	case http.StatusRequestEntityTooLarge:
		return ErrCodePayloadTooLarge
	case http.StatusUnsupportedMediaType:
		return ErrCodeUnsupportedMedia
	case http.StatusServiceUnavailable:
		return ErrCodeServiceUnavailable
	case http.StatusGatewayTimeout:
		return ErrCodeGatewayTimeout
	default:
		return ErrCodeInternalServer
	}
}

// HandleError writes the envelope for err. Configuration validation
// failures carry one detail entry per rejected field.
func HandleError(w http.ResponseWriter, err error, requestID string) {
	status := HTTPStatusFromError(err)

	var validation config.ValidationErrors
	if errors.As(err, &validation) {
		details := make(map[string]any, len(validation))
		for _, fe := range validation {
			details[fe.Field] = fe.Message
		}
		ErrorWithDetails(w, status, ErrCodeValidationFailed, "configuration validation failed", details, requestID)
		return
	}
	Error(w, status, ErrorCodeFromStatus(status), err.Error(), requestID)
}
