package robot

import "errors"

// Error classes. Drivers wrap the underlying cause with one of these so
// callers can branch with errors.Is.
var (
	ErrConfiguration    = errors.New("invalid configuration")
	ErrConnection       = errors.New("connection failed")
	ErrCalibration      = errors.New("calibration failed")
	ErrCommunication    = errors.New("communication failed")
	ErrProtocol         = errors.New("malformed request")
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrPassive          = errors.New("arm is passive")
)
