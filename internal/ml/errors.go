package ml

import "errors"

// Error taxonomy for the inference path. Handlers map these onto HTTP
// status codes; everything else is treated as an internal error.
var (
	// ErrNotReady means no model bundle is resolvable yet. Recoverable,
	// callers may retry after the model warms up.
	ErrNotReady = errors.New("model not ready")

	// ErrNoFeatures means the request carried an empty feature vector.
	ErrNoFeatures = errors.New("no features provided")

	// ErrFeatureCountMismatch means the supplied names or values do not
	// line up with the expected dimensionality.
	ErrFeatureCountMismatch = errors.New("feature count mismatch")
)

// IsValidation reports whether err is a recoverable input validation
// error rather than a server-side failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrNoFeatures) || errors.Is(err, ErrFeatureCountMismatch)
}
