package server

import (
	"time"

	"github.com/lanchat/lanchat/internal/database"
	"github.com/lanchat/lanchat/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientMessage is the envelope for every client-to-server event.
// Exactly one of the event fields is set.
type ClientMessage struct {
	BaseMessage
	Login             *Login             `json:"login,omitempty"`
	Send              *SendMessage       `json:"send,omitempty"`
	LoadMessages      *LoadMessages      `json:"load_messages,omitempty"`
	ClearUnread       *ClearUnreadReq    `json:"clear_unread,omitempty"`
	CreatePrivateChat *CreatePrivateChat `json:"create_private_chat,omitempty"`
	DeleteRoom        *DeleteRoomReq     `json:"delete_room,omitempty"`
	TogglePin         *TogglePinReq      `json:"toggle_pin,omitempty"`
	Heartbeat         *Heartbeat         `json:"heartbeat,omitempty"`
	GetRooms          *GetRooms          `json:"get_rooms,omitempty"`
	GetOnlineUsers    *GetOnlineUsers    `json:"get_online_users,omitempty"`
	SearchMessages    *SearchMessagesReq `json:"search_messages,omitempty"`
	RestoreRooms      *RestoreRooms      `json:"restore_rooms,omitempty"`
	EnsureRooms       *EnsureRooms       `json:"ensure_rooms,omitempty"`
	HideRooms         *HideRooms         `json:"hide_rooms,omitempty"`

	client *Client
}

type Login struct {
	Token string `json:"token"`
}

type SendMessage struct {
	RoomId string `json:"room_id"`
	Text   string `json:"text"`
}

type LoadMessages struct {
	RoomId          string `json:"room_id"`
	Limit           int    `json:"limit,omitempty"`
	Before          int64  `json:"before,omitempty"`
	SkipClearUnread bool   `json:"skip_clear_unread,omitempty"`
}

type ClearUnreadReq struct {
	RoomId string `json:"room_id"`
}

type CreatePrivateChat struct {
	TargetUserId int `json:"target_user_id"`
}

type DeleteRoomReq struct {
	RoomId string `json:"room_id"`
}

type TogglePinReq struct {
	RoomId string `json:"room_id"`
	Pinned bool   `json:"pinned"`
}

type Heartbeat struct{}

type GetRooms struct{}

type GetOnlineUsers struct{}

type SearchMessagesReq struct {
	Query  string `json:"query"`
	RoomId string `json:"room_id,omitempty"`
}

type RestoreRooms struct{}

type EnsureRooms struct{}

type HideRooms struct{}

// ServerMessage is the envelope for every server-to-client event.
type ServerMessage struct {
	BaseMessage
	LoginSuccess    *LoginSuccess      `json:"login_success,omitempty"`
	LoginError      *LoginError        `json:"login_error,omitempty"`
	RoomList        []types.Room       `json:"room_list,omitempty"`
	NewRoom         *types.Room        `json:"new_room,omitempty"`
	RoomCreated     *types.Room        `json:"room_created,omitempty"`
	RoomDeleted     *RoomDeleted       `json:"room_deleted,omitempty"`
	Message         *types.Message     `json:"message,omitempty"`
	Messages        *MessageHistory    `json:"messages,omitempty"`
	UnreadCount     *UnreadCountUpdate `json:"unread_count_update,omitempty"`
	TotalUnread     *TotalUnreadCount  `json:"total_unread_count,omitempty"`
	UserOnline      *types.User        `json:"user_online,omitempty"`
	UserOffline     *types.User        `json:"user_offline,omitempty"`
	UserStatus      *types.User        `json:"user_status,omitempty"`
	OnlineUsers     []types.User       `json:"online_users,omitempty"`
	SearchResults   []types.Message    `json:"search_results,omitempty"`
	RoomListChanged bool               `json:"room_list_changed,omitempty"`
	ForcedLogout    *ForcedLogout      `json:"forced_logout,omitempty"`
	Error           *ErrorEvent        `json:"error,omitempty"`

	// SkipClient excludes one connection from a broadcast.
	SkipClient *Client `json:"-"`
}

type LoginSuccess struct {
	User types.User `json:"user"`
}

type LoginError struct {
	Message string `json:"message"`
}

type RoomDeleted struct {
	RoomId string `json:"room_id"`
}

type MessageHistory struct {
	RoomId   string          `json:"room_id"`
	Messages []types.Message `json:"messages"`
}

type UnreadCountUpdate struct {
	RoomId string `json:"room_id"`
	Count  int    `json:"count"`
}

type TotalUnreadCount struct {
	Total int `json:"total"`
}

type ForcedLogout struct {
	Reason string `json:"reason"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

func NewErrorEvent(id int, message string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Error: &ErrorEvent{Message: message},
	}
}

func NewLoginError(message string) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		LoginError:  &LoginError{Message: message},
	}
}

func NewUnreadCountUpdate(roomId string, count int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		UnreadCount: &UnreadCountUpdate{RoomId: roomId, Count: count},
	}
}

func NewTotalUnreadCount(total int) *ServerMessage {
	return &ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		TotalUnread: &TotalUnreadCount{Total: total},
	}
}

func NewRoomListChanged() *ServerMessage {
	return &ServerMessage{
		BaseMessage:     BaseMessage{Timestamp: Now()},
		RoomListChanged: true,
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

func toUser(u database.User) types.User {
	return types.User{
		Id:          u.Id,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		IsBot:       u.IsBot,
		IsAdmin:     u.IsAdmin,
		LastSeen:    u.LastSeen,
	}
}

func toUsers(users []database.User) []types.User {
	out := make([]types.User, len(users))
	for i, u := range users {
		out[i] = toUser(u)
	}
	return out
}

func toMessage(m database.Message) types.Message {
	msg := types.Message{
		Id:          m.Id,
		RoomId:      m.RoomId,
		UserId:      m.UserId,
		Username:    m.Username,
		DisplayName: m.DisplayName,
		IsBot:       m.IsBot,
		Text:        m.Text,
		CreatedAt:   m.CreatedAt,
	}
	if m.AttachmentUrl != "" {
		msg.Attachment = &types.Attachment{
			Url:  m.AttachmentUrl,
			Type: m.AttachmentType,
			Name: m.AttachmentName,
			Size: m.AttachmentSize,
		}
	}
	return msg
}

func toMessages(msgs []database.Message) []types.Message {
	out := make([]types.Message, len(msgs))
	for i, m := range msgs {
		out[i] = toMessage(m)
	}
	return out
}
