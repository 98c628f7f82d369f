package types

import (
	"time"
)

type User struct {
	Id          int       `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	IsBot       bool      `json:"is_bot,omitempty"`
	IsAdmin     bool      `json:"is_admin,omitempty"`
	LastSeen    time.Time `json:"last_seen,omitempty"`
}

// Room is the annotated room entry returned in room lists: the durable
// room joined with the requesting user's membership, last message and
// unread count.
type Room struct {
	Id          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Pinned      bool      `json:"pinned"`
	Members     []User    `json:"members,omitempty"`
	LastMessage *Message  `json:"last_message,omitempty"`
	UnreadCount int       `json:"unread_count"`
	JoinedAt    time.Time `json:"joined_at,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

type Message struct {
	Id          int64       `json:"id"`
	RoomId      string      `json:"room_id"`
	UserId      int         `json:"user_id"`
	Username    string      `json:"username,omitempty"`
	DisplayName string      `json:"display_name,omitempty"`
	IsBot       bool        `json:"is_bot,omitempty"`
	Text        string      `json:"text"`
	Attachment  *Attachment `json:"attachment,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

type Attachment struct {
	Url  string `json:"url"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`
}
