package session

import "errors"

var (
	ErrConnect        = errors.New("connect failed")
	ErrDisconnected   = errors.New("disconnected")
	ErrNotConnected   = errors.New("session not connected")
	ErrClosed         = errors.New("session closed")
	ErrAlreadyStarted = errors.New("session already started")
	ErrUnsupportedQoS = errors.New("unsupported QoS level")
	ErrSubmit         = errors.New("submission failed")
	ErrDelivery       = errors.New("delivery failed")
	ErrAckNotFound    = errors.New("acknowledged message could not be found")
	ErrTimeout        = errors.New("acknowledgement timed out")
	ErrTableFull      = errors.New("no free message id")
)
