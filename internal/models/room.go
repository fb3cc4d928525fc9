package models

import "time"

// RoomMetadata stores the REST-facing record of a pre-created room.
type RoomMetadata struct {
	ID         string    `json:"id"`
	Code       string    `json:"code"` // Short, shareable room code (e.g., "ABCD123")
	CreatorID  string    `json:"creatorId"`
	CreatedAt  time.Time `json:"createdAt"`
	MaxViewers int       `json:"maxViewers"`
	Occupancy  int       `json:"occupancy"`
}

// CreateRoomRequest is the request body for creating a room
type CreateRoomRequest struct {
	MaxViewers int `json:"maxViewers" binding:"omitempty,min=2,max=512"`
}

// CreateRoomResponse is the response for creating a room
type CreateRoomResponse struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}
