package controller

import "errors"

// ErrUnknownRoad is returned for a road that is not part of the configured
// intersection.
var ErrUnknownRoad = errors.New("unknown road")

// ErrClosed is returned by operations on a closed controller.
var ErrClosed = errors.New("controller is closed")
