package scoring

import "errors"

// ErrNoCandidates is returned when Score receives an empty candidate list.
// It is always a caller error and never retried.
var ErrNoCandidates = errors.New("no avatar candidates to score")
