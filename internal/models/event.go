package models

import "time"

// Event is the server→client envelope for every pushed frame.
type Event struct {
	Name      string    `json:"event"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notification event names pushed by domain collaborators.
const (
	EventOrderUpdated          = "order_updated"
	EventServiceRequestUpdated = "service_request_updated"
	EventNewOrder              = "new_order"
	EventNewServiceRequest     = "new_service_request"
	EventNotification          = "notification"
	EventStockAlert            = "stock_alert"
	EventInventoryUpdated      = "inventory_updated"
)

// Catalog sync event names emitted by the change sync engine.
const (
	EventProductSync  = "product_sync"
	EventServiceSync  = "service_sync"
	EventLocationSync = "location_sync"
	EventTeamSync     = "team_sync"
	EventInitialData  = "initial_data"
)

// Signaling event names emitted by the peer relay.
const (
	EventJoinedRoom   = "joined-room"
	EventUserJoined   = "user-joined"
	EventUserLeft     = "user-left"
	EventCallEnded    = "call-ended"
	EventAudioToggled = "audio-toggled"
	EventVideoToggled = "video-toggled"
	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventIceCandidate = "ice-candidate"
	EventError        = "error"
)

// SyncType classifies a catalog mutation carried by a *_sync event.
type SyncType string

const (
	SyncInsert SyncType = "insert"
	SyncUpdate SyncType = "update"
	SyncDelete SyncType = "delete"
)
