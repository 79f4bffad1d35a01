package ml

import "fmt"

// Align reconciles a caller-supplied feature vector with the ordering
// the model was trained on.
//
// Without names the vector passes through unchanged; the caller is
// trusted to have ordered it by trainedNames already. With names, every
// trained feature present in the caller's list is copied over and every
// absent one is zero-filled. The zero-fill is deliberate: a missing
// feature is not an error, callers wanting exact parity must supply all
// trained names. Output length always equals len(trainedNames).
func Align(values []float64, names []string, trainedNames []string) ([]float64, error) {
	if len(names) == 0 {
		return values, nil
	}
	if len(names) != len(values) {
		return nil, fmt.Errorf("%w: %d names for %d values", ErrFeatureCountMismatch, len(names), len(values))
	}

	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}

	out := make([]float64, len(trainedNames))
	for i, n := range trainedNames {
		if j, ok := index[n]; ok {
			out[i] = values[j]
		}
	}
	return out, nil
}
