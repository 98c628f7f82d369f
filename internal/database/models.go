package database

import (
	"database/sql/driver"
	"fmt"
	"time"
)

const (
	RoomTypeGroup   = "group"
	RoomTypePrivate = "private"

	// LobbyRoomId is the distinguished group room every user belongs to.
	LobbyRoomId = "lobby"
)

// RoomActivation is the bot-room visibility state. It is persisted as a
// nullable integer (NULL/1/-1) but surfaced as a tagged enum so that
// transition logic stays exhaustive.
type RoomActivation int8

const (
	ActivationUnset    RoomActivation = 0
	ActivationActive   RoomActivation = 1
	ActivationInactive RoomActivation = -1
)

// Visible reports whether rooms in this state appear in room lists.
func (a RoomActivation) Visible() bool {
	return a != ActivationInactive
}

func (a RoomActivation) Value() (driver.Value, error) {
	if a == ActivationUnset {
		return nil, nil
	}
	return int64(a), nil
}

func (a *RoomActivation) Scan(src any) error {
	if src == nil {
		*a = ActivationUnset
		return nil
	}

	switch v := src.(type) {
	case int64:
		*a = RoomActivation(v)
	case int:
		*a = RoomActivation(v)
	default:
		return fmt.Errorf("cannot scan %T into RoomActivation", src)
	}

	switch *a {
	case ActivationActive, ActivationInactive, ActivationUnset:
		return nil
	default:
		return fmt.Errorf("invalid room activation value %d", *a)
	}
}

type User struct {
	Id           int
	Username     string
	PasswordHash string
	DisplayName  string
	IsBot        bool
	IsAdmin      bool
	IsBanned     bool
	CreatedAt    time.Time
	LastSeen     time.Time
}

type Room struct {
	Id   string
	Name string
	Type string
	// UserA and UserB record the intended participant pair of a private
	// room (UserA < UserB); both are zero for group rooms. Resurrection
	// reads these, never the room id.
	UserA      int
	UserB      int
	Activation RoomActivation
	CreatedBy  int
	CreatedAt  time.Time
}

// Participants returns the intended member pair of a private room.
func (r Room) Participants() (int, int, bool) {
	if r.Type != RoomTypePrivate || r.UserA == 0 || r.UserB == 0 {
		return 0, 0, false
	}
	return r.UserA, r.UserB, true
}

type Membership struct {
	RoomId   string
	UserId   int
	Pinned   bool
	JoinedAt time.Time
}

// RoomListing is one row of a user's room list: the room plus that
// user's membership annotations.
type RoomListing struct {
	Room
	Pinned   bool
	JoinedAt time.Time
}

type Message struct {
	Id             int64
	RoomId         string
	UserId         int
	Username       string
	DisplayName    string
	IsBot          bool
	Text           string
	AttachmentUrl  string
	AttachmentType string
	AttachmentName string
	AttachmentSize int64
	CreatedAt      time.Time
}

type UnreadCount struct {
	UserId        int
	RoomId        string
	Count         int
	LastMessageId int64
	UpdatedAt     time.Time
}

type Session struct {
	Token     string
	UserId    int
	ExpiresAt time.Time
	CreatedAt time.Time
	User      User
}

type CreateAccountParams struct {
	Username     string
	PasswordHash string
	DisplayName  string
	IsBot        bool
	IsAdmin      bool
}

type CreateRoomParams struct {
	Id        string
	Name      string
	Type      string
	UserA     int
	UserB     int
	CreatedBy int
}

type CreateMessageParams struct {
	RoomId         string
	UserId         int
	Text           string
	AttachmentUrl  string
	AttachmentType string
	AttachmentName string
	AttachmentSize int64
}
