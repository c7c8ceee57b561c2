package measurement

import "github.com/medview/backend/internal/domain/shared"

// Measurement domain errors. Wrap them with fmt.Errorf("%w: ...") to add
// context; callers match with errors.Is.
var (
	// ErrInvalidSource is returned when a Source handle is nil, forged or stale.
	ErrInvalidSource = shared.NewDomainError("INVALID_SOURCE", "Source is not registered")
	// ErrAmbiguousMapping is returned when a mapping cannot be told apart from
	// one already registered for the same annotation type.
	ErrAmbiguousMapping = shared.NewDomainError("AMBIGUOUS_MAPPING", "Mapping criteria do not discriminate from an existing mapping")
	// ErrNoMappings is returned when a conversion is requested for a source with
	// no registered mappings.
	ErrNoMappings = shared.NewDomainError("NO_MAPPINGS", "Source has no registered mappings")
	// ErrConversionFailed is returned when a converter fails or yields an invalid
	// measurement. The offending payload is kept in the unmapped set.
	ErrConversionFailed = shared.NewDomainError("CONVERSION_FAILED", "Annotation could not be converted to a measurement")
	// ErrInvalidMeasurement is returned when a measurement fails validation.
	ErrInvalidMeasurement = shared.NewDomainError("INVALID_MEASUREMENT", "Measurement failed validation")
)
