package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openboard/openboard/auth"
	authdb "github.com/openboard/openboard/auth/db"
	"github.com/openboard/openboard/internal/slogging"
)

const snapshotCacheTTL = 5 * time.Minute

// RoomHandlers exposes the REST room endpoints. They are thin pass-throughs
// to the persistence collaborators; the latest snapshot additionally sits in
// a Redis cache because clients poll it on every room open.
type RoomHandlers struct {
	stores    *Stores
	sequencer *OperationSequencer
	users     IdentityResolver
	cache     *authdb.RedisDB // nil disables snapshot caching
}

// NewRoomHandlers creates the room handler set
func NewRoomHandlers(stores *Stores, sequencer *OperationSequencer, users IdentityResolver, cache *authdb.RedisDB) *RoomHandlers {
	return &RoomHandlers{
		stores:    stores,
		sequencer: sequencer,
		users:     users,
		cache:     cache,
	}
}

// RegisterRoutes mounts the room endpoints on the router group
func (h *RoomHandlers) RegisterRoutes(group *gin.RouterGroup, authRequired gin.HandlerFunc) {
	group.POST("/create", authRequired, h.CreateRoom)
	group.GET("/list", h.ListRooms)
	group.GET("/:id", h.GetRoom)
	group.GET("/:id/operations", h.GetOperations)
	group.GET("/:id/messages", h.GetMessages)
	group.POST("/:id/save", authRequired, h.SaveSnapshot)
	group.GET("/:id/snapshot", h.GetLatestSnapshot)
}

type createRoomRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateRoom creates a room owned by the authenticated user
func (h *RoomHandlers) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Error{Error: "invalid_request", Message: "name is required"})
		return
	}

	username, _ := auth.UsernameFromContext(c)
	user, err := h.users.FindByUsername(c.Request.Context(), username)
	if err != nil {
		c.JSON(http.StatusNotFound, Error{Error: "not_found", Message: "User not found"})
		return
	}

	room := &Room{
		RoomID:  uuid.New().String(),
		Name:    req.Name,
		OwnerID: user.ID,
	}
	if err := h.stores.Rooms.Create(c.Request.Context(), room); err != nil {
		slogging.Get().WithContext(c).Error("Failed to create room: %v", err)
		c.JSON(http.StatusInternalServerError, Error{Error: "internal_error", Message: "Failed to create room"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"roomId": room.RoomID, "name": room.Name})
}

// GetRoom returns one room by its public identifier
func (h *RoomHandlers) GetRoom(c *gin.Context) {
	room, ok := h.findRoom(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, roomResponse(room))
}

// ListRooms returns all rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	rooms, err := h.stores.Rooms.List(c.Request.Context())
	if err != nil {
		slogging.Get().WithContext(c).Error("Failed to list rooms: %v", err)
		c.JSON(http.StatusInternalServerError, Error{Error: "internal_error", Message: "Failed to list rooms"})
		return
	}

	out := make([]gin.H, 0, len(rooms))
	for i := range rooms {
		out = append(out, roomResponse(&rooms[i]))
	}
	c.JSON(http.StatusOK, out)
}

// GetOperations returns the room's operation log, optionally only the
// entries after a known sequence number (the reconnect catch-up path).
func (h *RoomHandlers) GetOperations(c *gin.Context) {
	room, ok := h.findRoom(c)
	if !ok {
		return
	}

	var afterSequence int64
	if raw := c.Query("afterSequence"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, Error{Error: "invalid_request", Message: "afterSequence must be an integer"})
			return
		}
		afterSequence = parsed
	}

	ops, err := h.sequencer.ListSince(c.Request.Context(), room, afterSequence)
	if err != nil {
		slogging.Get().WithContext(c).Error("Failed to list operations: %v", err)
		c.JSON(http.StatusInternalServerError, Error{Error: "internal_error", Message: "Failed to list operations"})
		return
	}

	if ops == nil {
		ops = []Operation{}
	}
	c.JSON(http.StatusOK, ops)
}

// GetMessages returns the room's chat history ordered by timestamp
func (h *RoomHandlers) GetMessages(c *gin.Context) {
	room, ok := h.findRoom(c)
	if !ok {
		return
	}

	messages, err := h.stores.Messages.ListByRoom(c.Request.Context(), room.ID)
	if err != nil {
		slogging.Get().WithContext(c).Error("Failed to list messages: %v", err)
		c.JSON(http.StatusInternalServerError, Error{Error: "internal_error", Message: "Failed to list messages"})
		return
	}

	if messages == nil {
		messages = []ChatHistoryEntry{}
	}
	c.JSON(http.StatusOK, messages)
}

type saveSnapshotRequest struct {
	ImageData string `json:"imageData"`
}

// SaveSnapshot stores a rendering of the room's canvas
func (h *RoomHandlers) SaveSnapshot(c *gin.Context) {
	room, ok := h.findRoom(c)
	if !ok {
		return
	}

	var req saveSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ImageData == "" {
		c.JSON(http.StatusBadRequest, Error{Error: "invalid_request", Message: "Image data is required"})
		return
	}

	snapshot := &Snapshot{RoomID: room.ID, ImageData: req.ImageData}
	if err := h.stores.Snapshots.Save(c.Request.Context(), snapshot); err != nil {
		slogging.Get().WithContext(c).Error("Failed to save snapshot: %v", err)
		c.JSON(http.StatusInternalServerError, Error{Error: "internal_error", Message: "Failed to save snapshot"})
		return
	}

	h.invalidateSnapshotCache(c.Request.Context(), room.RoomID)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Snapshot saved successfully"})
}

type snapshotResponse struct {
	ImageData string `json:"imageData"`
	CreatedAt string `json:"createdAt"`
}

// GetLatestSnapshot returns the most recent snapshot, or an empty payload
// when the room has none yet
func (h *RoomHandlers) GetLatestSnapshot(c *gin.Context) {
	room, ok := h.findRoom(c)
	if !ok {
		return
	}

	if cached, ok := h.cachedSnapshot(c.Request.Context(), room.RoomID); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	snapshot, err := h.stores.Snapshots.Latest(c.Request.Context(), room.ID)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusOK, snapshotResponse{})
		return
	}
	if err != nil {
		slogging.Get().WithContext(c).Error("Failed to load snapshot: %v", err)
		c.JSON(http.StatusInternalServerError, Error{Error: "internal_error", Message: "Failed to load snapshot"})
		return
	}

	resp := snapshotResponse{
		ImageData: snapshot.ImageData,
		CreatedAt: snapshot.CreatedAt.UTC().Format(time.RFC3339),
	}
	h.cacheSnapshot(c.Request.Context(), room.RoomID, resp)
	c.JSON(http.StatusOK, resp)
}

// findRoom resolves the :id path parameter, writing the 404 payload itself
func (h *RoomHandlers) findRoom(c *gin.Context) (*Room, bool) {
	room, err := h.stores.Rooms.GetByRoomID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, Error{Error: "not_found", Message: "Room not found"})
		return nil, false
	}
	if err != nil {
		slogging.Get().WithContext(c).Error("Failed to load room: %v", err)
		c.JSON(http.StatusInternalServerError, Error{Error: "internal_error", Message: "Failed to load room"})
		return nil, false
	}
	return room, true
}

func roomResponse(room *Room) gin.H {
	owner := ""
	if room.Owner != nil {
		owner = room.Owner.DisplayName
	}
	return gin.H{"roomId": room.RoomID, "name": room.Name, "owner": owner}
}

func snapshotCacheKey(roomID string) string {
	return "snapshot:" + roomID
}

func (h *RoomHandlers) cachedSnapshot(ctx context.Context, roomID string) (snapshotResponse, bool) {
	if h.cache == nil {
		return snapshotResponse{}, false
	}
	raw, err := h.cache.Get(ctx, snapshotCacheKey(roomID))
	if err != nil {
		return snapshotResponse{}, false
	}
	var resp snapshotResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return snapshotResponse{}, false
	}
	return resp, true
}

func (h *RoomHandlers) cacheSnapshot(ctx context.Context, roomID string, resp snapshotResponse) {
	if h.cache == nil {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := h.cache.Set(ctx, snapshotCacheKey(roomID), string(raw), snapshotCacheTTL); err != nil {
		slogging.Get().Debug("Failed to cache snapshot for room %s: %v", roomID, err)
	}
}

func (h *RoomHandlers) invalidateSnapshotCache(ctx context.Context, roomID string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Del(ctx, snapshotCacheKey(roomID)); err != nil {
		slogging.Get().Debug("Failed to invalidate snapshot cache for room %s: %v", roomID, err)
	}
}
