package domain

import (
	"errors"
	"fmt"
)

// Call operation errors.
var (
	ErrCallInProgress = errors.New("another call operation is in progress")
	ErrSelfCall       = errors.New("cannot call yourself")
	ErrInvalidTarget  = errors.New("target peer id is empty")
	ErrNotConnected   = errors.New("not connected to signaling server")
	ErrNoPendingCall  = errors.New("no pending incoming call")
	ErrClosed         = errors.New("call service is closed")
)

// Media errors.
var (
	ErrNoMediaDevices = errors.New("no media devices available")
	ErrStreamStopped  = errors.New("local stream already stopped")
)

// Signaling errors.
var (
	ErrSignalingClosed = errors.New("signaling client is closed")
	ErrUnknownCall     = errors.New("unknown media connection")
)

type SignalingErrorType string

const (
	ErrTypePeerUnavailable SignalingErrorType = "peer-unavailable"
	ErrTypeDisconnected    SignalingErrorType = "disconnected"
	ErrTypeNetwork         SignalingErrorType = "network"
	ErrTypeServerError     SignalingErrorType = "server-error"
	ErrTypeWebRTC          SignalingErrorType = "webrtc"
	ErrTypeUnavailableID   SignalingErrorType = "unavailable-id"
	ErrTypeInvalidID       SignalingErrorType = "invalid-id"
	ErrTypeOther           SignalingErrorType = "other"
)

type SignalingError struct {
	Type    SignalingErrorType
	Message string
	// Peer is the remote peer the error is about, when the server names one.
	Peer PeerID
	Err  error
}

func NewSignalingError(t SignalingErrorType, msg string, err error) *SignalingError {
	return &SignalingError{Type: t, Message: msg, Err: err}
}

// About records the peer the error concerns.
func (e *SignalingError) About(peer PeerID) *SignalingError {
	e.Peer = peer
	return e
}

func (e *SignalingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *SignalingError) Unwrap() error {
	return e.Err
}

// ForcesTeardown reports whether an active call must be terminated.
func (e *SignalingError) ForcesTeardown() bool {
	switch e.Type {
	case ErrTypeNetwork, ErrTypeWebRTC, ErrTypeServerError:
		return true
	default:
		return false
	}
}

func (e *SignalingError) UserMessage() string {
	switch e.Type {
	case ErrTypePeerUnavailable:
		return "The peer you are trying to call is not available."
	case ErrTypeDisconnected:
		return "Lost connection to the signaling server. Press reconnect."
	case ErrTypeNetwork:
		return "Network error. Check your connection and reconnect."
	case ErrTypeServerError:
		return "The signaling server reported an error. Try reconnecting later."
	case ErrTypeWebRTC:
		return "The media connection failed."
	case ErrTypeUnavailableID:
		return "That peer id is already taken. Reconnect to get a new one."
	case ErrTypeInvalidID:
		return "The peer id is not valid."
	default:
		if e.Message != "" {
			return e.Message
		}
		return "Unexpected error."
	}
}

// AsSignalingError wraps a plain error as an "other" signaling error.
func AsSignalingError(err error) *SignalingError {
	var se *SignalingError
	if errors.As(err, &se) {
		return se
	}
	return NewSignalingError(ErrTypeOther, "unexpected error", err)
}
