package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeInvalidMeasurement is used when a measurement fails validation
	ErrCodeInvalidMeasurement = "ERR_VALIDATION_MEASUREMENT"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeAlreadyExists is used when trying to create a duplicate resource
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
)

// Source and mapping error codes
const (
	// ErrCodeInvalidSource is used when a source id does not name a registered source
	ErrCodeInvalidSource = "ERR_INVALID_SOURCE"
	// ErrCodeAmbiguousMapping is used when a mapping overlaps an existing one
	ErrCodeAmbiguousMapping = "ERR_AMBIGUOUS_MAPPING"
	// ErrCodeNoMappings is used when a source has nothing registered to convert with
	ErrCodeNoMappings = "ERR_NO_MAPPINGS"
	// ErrCodeNoMapping is used when no registered mapping applies to an annotation
	ErrCodeNoMapping = "ERR_NO_MAPPING"
	// ErrCodeConversionFailed is used when a converter rejects an annotation
	ErrCodeConversionFailed = "ERR_CONVERSION_FAILED"
)

// Business rule error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Stream error codes
const (
	// ErrCodeMaxConnections is used when the event stream has no free slots
	ErrCodeMaxConnections = "ERR_MAX_CONNECTIONS"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeInvalidMeasurement: http.StatusBadRequest,

	// Resource errors
	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeAlreadyExists: http.StatusConflict,
	ErrCodeConflict:      http.StatusConflict,

	// Source and mapping errors
	ErrCodeInvalidSource:    http.StatusBadRequest,
	ErrCodeAmbiguousMapping: http.StatusConflict,
	ErrCodeNoMappings:       http.StatusUnprocessableEntity,
	ErrCodeNoMapping:        http.StatusUnprocessableEntity,
	ErrCodeConversionFailed: http.StatusUnprocessableEntity,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState: http.StatusUnprocessableEntity,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	// Stream errors
	ErrCodeMaxConnections: http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":           ErrCodeNotFound,
	"ALREADY_EXISTS":      ErrCodeAlreadyExists,
	"INVALID_INPUT":       ErrCodeInvalidInput,
	"INVALID_STATE":       ErrCodeInvalidState,
	"INVALID_SOURCE":      ErrCodeInvalidSource,
	"AMBIGUOUS_MAPPING":   ErrCodeAmbiguousMapping,
	"NO_MAPPINGS":         ErrCodeNoMappings,
	"CONVERSION_FAILED":   ErrCodeConversionFailed,
	"INVALID_MEASUREMENT": ErrCodeInvalidMeasurement,
}

// NormalizeErrorCode converts a domain error code to the API format
// If the code is already in the API format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
