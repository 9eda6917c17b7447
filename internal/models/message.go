package models

import "encoding/json"

// MessageType is the type tag on a client→server frame.
type MessageType string

const (
	MessageJoinRoom          MessageType = "join-room"
	MessageLeaveRoom         MessageType = "leave-room"
	MessageOffer             MessageType = "offer"
	MessageAnswer            MessageType = "answer"
	MessageIceCandidate      MessageType = "ice-candidate"
	MessageToggleAudio       MessageType = "toggle-audio"
	MessageToggleVideo       MessageType = "toggle-video"
	MessageEndCall           MessageType = "end-call"
	MessageWatchStorefront   MessageType = "watch-storefront"
	MessageUnwatchStorefront MessageType = "unwatch-storefront"
)

// Inbound is a client→server frame. Payload is opaque to the server. From is
// ignored on input and always stamped server-side before any forward.
type Inbound struct {
	Type        MessageType     `json:"type"`
	RoomID      string          `json:"roomId,omitempty"`
	To          string          `json:"to,omitempty"`
	From        string          `json:"from,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	DisplayName string          `json:"displayName,omitempty"`
	CallType    string          `json:"callType,omitempty"`
	Enabled     *bool           `json:"enabled,omitempty"`
	Code        string          `json:"code,omitempty"`
}

// Signal is the data body of a relayed offer/answer/ice-candidate event.
type Signal struct {
	From    string          `json:"from"`
	To      string          `json:"to"`
	RoomID  string          `json:"roomId"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
