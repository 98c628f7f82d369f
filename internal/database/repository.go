package database

import "time"

// Repository is the Directory Store: the single durable source of truth
// for users, rooms, memberships, messages, unread counters and sessions.
type Repository interface {
	Ping() error

	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(userId int) (User, error)
	GetAccountByUsername(username string) (User, error)
	UpdatePassword(userId int, passwordHash string) error
	UpdateLastSeen(userId int) error
	SetBanned(userId int, banned bool) error
	ListAccounts() ([]User, error)
	ListOnlineAccounts(cutoff time.Time) ([]User, error)
	CountHumanAccounts() (int, error)

	CreateSession(token string, userId int, expiresAt time.Time) error
	GetSession(token string) (Session, error)
	DeleteSession(token string) error
	DeleteSessionsForAccount(userId int) error
	DeleteExpiredSessions() (int64, error)

	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoom(roomId string) (Room, error)
	DeleteRoom(roomId string) error
	SetRoomActivation(roomId string, activation RoomActivation) error
	ListPrivateRoomsWithUser(userId int) ([]Room, error)

	AddMember(roomId string, userId int) error
	RemoveMember(roomId string, userId int) error
	IsMember(roomId string, userId int) (bool, error)
	GetMembers(roomId string) ([]User, error)
	CountMembers(roomId string) (int, error)
	SetPinned(roomId string, userId int, pinned bool) error
	ListRooms(userId int) ([]RoomListing, error)
	GetRoomListing(userId int, roomId string) (RoomListing, error)

	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessages(roomId string, before int64, limit int) ([]Message, error)
	GetLastMessage(roomId string) (*Message, error)
	SearchMessages(userId int, query, roomId string, limit int) ([]Message, error)

	IncrementUnread(userId int, roomId string, messageId int64) error
	ClearUnread(userId int, roomId string) error
	GetUnread(userId int, roomId string) (UnreadCount, error)
	ListUnread(userId int) ([]UnreadCount, error)
	TotalUnread(userId int) (int, error)
}
