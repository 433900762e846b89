package relay

import "errors"

var (
	// ErrNotConnected is returned when a send is attempted before Connect
	// or after Close.
	ErrNotConnected = errors.New("upstream session is not connected")
)
