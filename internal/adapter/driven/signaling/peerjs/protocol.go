package peerjs

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

type MessageType string

const (
	TypeOpen       MessageType = "OPEN"
	TypeOffer      MessageType = "OFFER"
	TypeAnswer     MessageType = "ANSWER"
	TypeCandidate  MessageType = "CANDIDATE"
	TypeLeave      MessageType = "LEAVE"
	TypeExpire     MessageType = "EXPIRE"
	TypeError      MessageType = "ERROR"
	TypeIDTaken    MessageType = "ID-TAKEN"
	TypeInvalidKey MessageType = "INVALID-KEY"
	TypeHeartbeat  MessageType = "HEARTBEAT"
)

const connectionTypeMedia = "media"

// Message is the envelope exchanged with the signaling server. Src is set by
// the server on relayed messages, Dst by the sender.
type Message struct {
	Type    MessageType     `json:"type"`
	Src     string          `json:"src,omitempty"`
	Dst     string          `json:"dst,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Payload carries OFFER, ANSWER and CANDIDATE data for one connection.
type Payload struct {
	SDP          *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate    *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Type         string                     `json:"type,omitempty"`
	ConnectionID string                     `json:"connectionId,omitempty"`
	Metadata     json.RawMessage            `json:"metadata,omitempty"`
}

// ServerError is the payload of ERROR and ID-TAKEN.
type ServerError struct {
	Msg string `json:"msg"`
}

func newMessage(t MessageType, dst string, payload any) (Message, error) {
	msg := Message{Type: t, Dst: dst}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Message{}, err
		}
		msg.Payload = raw
	}
	return msg, nil
}
