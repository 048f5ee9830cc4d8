package api

import (
	"time"

	"github.com/openboard/openboard/auth"
)

// Error is the JSON error payload returned by REST handlers
type Error struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Room is an isolated collaboration session. RoomID is the opaque public
// identifier; ID is the database primary key.
type Room struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"-"`
	RoomID      string     `gorm:"column:room_id;uniqueIndex;not null" json:"roomId"`
	Name        string     `gorm:"column:name;not null" json:"name"`
	OwnerID     uint64     `gorm:"column:owner_id;not null" json:"-"`
	Owner       *auth.User `gorm:"foreignKey:OwnerID" json:"-"`
	LastUpdated *time.Time `gorm:"column:last_updated" json:"-"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime" json:"-"`
}

// TableName sets the table name for GORM
func (Room) TableName() string {
	return "rooms"
}

// Operation is one durable, sequenced drawing action within a room.
// Immutable once persisted; SequenceNumber is unique and gapless per room.
type Operation struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	RoomID         uint64    `gorm:"column:room_id;not null;uniqueIndex:idx_room_sequence,priority:1" json:"-"`
	UserID         uint64    `gorm:"column:user_id;not null" json:"-"`
	OperationType  string    `gorm:"column:operation_type;not null" json:"type"`
	OperationData  string    `gorm:"column:operation_data;type:text" json:"data"`
	SequenceNumber int64     `gorm:"column:sequence_number;not null;uniqueIndex:idx_room_sequence,priority:2" json:"sequence"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"-"`
}

// TableName sets the table name for GORM
func (Operation) TableName() string {
	return "operations"
}

// Message is one persisted chat line. Messages carry no sequence number;
// ordering is by timestamp only.
type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	RoomID    uint64    `gorm:"column:room_id;not null" json:"-"`
	UserID    uint64    `gorm:"column:user_id;not null" json:"-"`
	Content   string    `gorm:"column:content;type:text;not null" json:"content"`
	Timestamp time.Time `gorm:"column:timestamp;autoCreateTime" json:"timestamp"`
}

// TableName sets the table name for GORM
func (Message) TableName() string {
	return "messages"
}

// ChatHistoryEntry is a chat message joined with its author's display name
type ChatHistoryEntry struct {
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a periodic rendering of a room's canvas
type Snapshot struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	RoomID    uint64    `gorm:"column:room_id;not null" json:"-"`
	ImageData string    `gorm:"column:image_data;type:text" json:"imageData"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

// TableName sets the table name for GORM
func (Snapshot) TableName() string {
	return "snapshots"
}

// PresenceEntry is one connected member of one room
type PresenceEntry struct {
	Username string `json:"username"`
	UserID   uint64 `json:"userId"`
}
