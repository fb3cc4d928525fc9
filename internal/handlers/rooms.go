package handlers

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/videonode/signaling/internal/logging"
	"github.com/videonode/signaling/internal/models"
	"github.com/videonode/signaling/internal/redis"
)

const (
	roomCodeLength = 6
	roomTTL        = 24 * time.Hour
	codeChars      = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // Removed ambiguous chars
)

// CreateRoom creates a new room record with a shareable code (requires
// authentication). Creation here is optional: the signaling plane also
// accepts room ids it has never seen.
func CreateRoom(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req models.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.MaxViewers == 0 {
		req.MaxViewers = 64
	}

	roomID := uuid.New().String()
	roomCode := generateRoomCode()

	room := models.RoomMetadata{
		ID:         roomID,
		Code:       roomCode,
		CreatorID:  userID.(string),
		CreatedAt:  time.Now(),
		MaxViewers: req.MaxViewers,
	}

	redisClient := redis.GetClient()
	ctx := redis.GetContext()

	roomData, err := json.Marshal(room)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
		return
	}

	log := logging.L()

	if err := redisClient.Set(ctx, "room:"+roomID, roomData, roomTTL).Err(); err != nil {
		log.Error().Err(err).Msg("failed to store room in redis")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
		return
	}

	// Code-to-id mapping for short join links
	if err := redisClient.Set(ctx, "code:"+roomCode, roomID, roomTTL).Err(); err != nil {
		log.Error().Err(err).Msg("failed to store room code in redis")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
		return
	}

	log.Info().
		Str("room_id", roomID).
		Str("room_code", roomCode).
		Str("user_id", userID.(string)).
		Msg("room created")

	c.JSON(http.StatusCreated, models.CreateRoomResponse{
		RoomID: roomID,
		Code:   roomCode,
	})
}

// GetRoom gets room information by code or ID (public)
func GetRoom(c *gin.Context) {
	roomID := ResolveRoomID(c.Param("roomId"))

	redisClient := redis.GetClient()
	ctx := redis.GetContext()

	roomData, err := redisClient.Get(ctx, "room:"+roomID).Result()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	var room models.RoomMetadata
	if err := json.Unmarshal([]byte(roomData), &room); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to parse room data"})
		return
	}

	// Live occupancy comes from the presence mirror
	occupancy, _ := redisClient.SCard(ctx, "room:"+roomID+":peers").Result()
	room.Occupancy = int(occupancy)

	c.JSON(http.StatusOK, room)
}

// DeleteRoom deletes a room record (requires authentication and creator)
func DeleteRoom(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	roomID := c.Param("roomId")

	redisClient := redis.GetClient()
	ctx := redis.GetContext()

	roomData, err := redisClient.Get(ctx, "room:"+roomID).Result()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	var room models.RoomMetadata
	if err := json.Unmarshal([]byte(roomData), &room); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to parse room data"})
		return
	}

	if room.CreatorID != userID.(string) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the room creator can delete the room"})
		return
	}

	redisClient.Del(ctx, "room:"+roomID)
	redisClient.Del(ctx, "code:"+room.Code)
	redisClient.Del(ctx, "room:"+roomID+":peers")

	log := logging.L()
	log.Info().
		Str("room_id", roomID).
		Str("user_id", userID.(string)).
		Msg("room deleted")

	c.JSON(http.StatusOK, gin.H{"message": "Room deleted"})
}

// generateRoomCode generates a random room code
func generateRoomCode() string {
	code := make([]byte, roomCodeLength)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(codeChars))))
		code[i] = codeChars[n.Int64()]
	}
	return string(code)
}

// ResolveRoomID maps a short room code to its room id when one exists.
// Anything that does not resolve is returned unchanged, so rooms that were
// never pre-created still work (they are created lazily on first join).
func ResolveRoomID(identifier string) string {
	if len(identifier) != roomCodeLength {
		return identifier
	}
	id, err := redis.GetClient().Get(redis.GetContext(), "code:"+identifier).Result()
	if err != nil {
		return identifier
	}
	return id
}
