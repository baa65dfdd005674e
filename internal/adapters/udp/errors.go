package udp

import "errors"

// Sentinel errors for the datagram receiver.
var (
	ErrBind            = errors.New("udp bind failed")
	ErrNoIPv4          = errors.New("interface has no IPv4 address")
	ErrUnknownEncoding = errors.New("unknown text encoding")
	ErrDecode          = errors.New("datagram is not valid text")
	ErrStopTimeout     = errors.New("receiver stop timed out")
)
