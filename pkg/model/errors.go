package model

import "errors"

// Error taxonomy for the analysis core.
//
// ErrElevationUnavailable is absorbed locally with a default elevation of 0
// and a logged warning; it only reaches callers of the oracle itself.
// ErrCancelled is a valid terminal state, not a failure: operations return it
// together with whatever partial result they produced.
var (
	ErrElevationUnavailable = errors.New("elevation unavailable")
	ErrInsufficientPath     = errors.New("path has fewer than 2 usable points")
	ErrInvalidGeometry      = errors.New("invalid geometry")
	ErrCancelled            = errors.New("cancelled")
	ErrUnionFailure         = errors.New("polygon union failed")
)
