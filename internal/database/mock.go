package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetAccountById(userId int) (User, error) {
	args := m.Called(userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetAccountByUsername(username string) (User, error) {
	args := m.Called(username)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) UpdatePassword(userId int, passwordHash string) error {
	args := m.Called(userId, passwordHash)
	return args.Error(0)
}
func (m *MockRepository) UpdateLastSeen(userId int) error {
	args := m.Called(userId)
	return args.Error(0)
}
func (m *MockRepository) SetBanned(userId int, banned bool) error {
	args := m.Called(userId, banned)
	return args.Error(0)
}
func (m *MockRepository) ListAccounts() ([]User, error) {
	args := m.Called()
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockRepository) ListOnlineAccounts(cutoff time.Time) ([]User, error) {
	args := m.Called(cutoff)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockRepository) CountHumanAccounts() (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}
func (m *MockRepository) CreateSession(token string, userId int, expiresAt time.Time) error {
	args := m.Called(token, userId, expiresAt)
	return args.Error(0)
}
func (m *MockRepository) GetSession(token string) (Session, error) {
	args := m.Called(token)
	return args.Get(0).(Session), args.Error(1)
}
func (m *MockRepository) DeleteSession(token string) error {
	args := m.Called(token)
	return args.Error(0)
}
func (m *MockRepository) DeleteSessionsForAccount(userId int) error {
	args := m.Called(userId)
	return args.Error(0)
}
func (m *MockRepository) DeleteExpiredSessions() (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) GetRoom(roomId string) (Room, error) {
	args := m.Called(roomId)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) DeleteRoom(roomId string) error {
	args := m.Called(roomId)
	return args.Error(0)
}
func (m *MockRepository) SetRoomActivation(roomId string, activation RoomActivation) error {
	args := m.Called(roomId, activation)
	return args.Error(0)
}
func (m *MockRepository) ListPrivateRoomsWithUser(userId int) ([]Room, error) {
	args := m.Called(userId)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockRepository) AddMember(roomId string, userId int) error {
	args := m.Called(roomId, userId)
	return args.Error(0)
}
func (m *MockRepository) RemoveMember(roomId string, userId int) error {
	args := m.Called(roomId, userId)
	return args.Error(0)
}
func (m *MockRepository) IsMember(roomId string, userId int) (bool, error) {
	args := m.Called(roomId, userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockRepository) GetMembers(roomId string) ([]User, error) {
	args := m.Called(roomId)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockRepository) CountMembers(roomId string) (int, error) {
	args := m.Called(roomId)
	return args.Int(0), args.Error(1)
}
func (m *MockRepository) SetPinned(roomId string, userId int, pinned bool) error {
	args := m.Called(roomId, userId, pinned)
	return args.Error(0)
}
func (m *MockRepository) ListRooms(userId int) ([]RoomListing, error) {
	args := m.Called(userId)
	return args.Get(0).([]RoomListing), args.Error(1)
}
func (m *MockRepository) GetRoomListing(userId int, roomId string) (RoomListing, error) {
	args := m.Called(userId, roomId)
	return args.Get(0).(RoomListing), args.Error(1)
}
func (m *MockRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) GetMessages(roomId string, before int64, limit int) ([]Message, error) {
	args := m.Called(roomId, before, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockRepository) GetLastMessage(roomId string) (*Message, error) {
	args := m.Called(roomId)
	if msg, ok := args.Get(0).(*Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRepository) SearchMessages(userId int, query, roomId string, limit int) ([]Message, error) {
	args := m.Called(userId, query, roomId, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockRepository) IncrementUnread(userId int, roomId string, messageId int64) error {
	args := m.Called(userId, roomId, messageId)
	return args.Error(0)
}
func (m *MockRepository) ClearUnread(userId int, roomId string) error {
	args := m.Called(userId, roomId)
	return args.Error(0)
}
func (m *MockRepository) GetUnread(userId int, roomId string) (UnreadCount, error) {
	args := m.Called(userId, roomId)
	return args.Get(0).(UnreadCount), args.Error(1)
}
func (m *MockRepository) ListUnread(userId int) ([]UnreadCount, error) {
	args := m.Called(userId)
	return args.Get(0).([]UnreadCount), args.Error(1)
}
func (m *MockRepository) TotalUnread(userId int) (int, error) {
	args := m.Called(userId)
	return args.Int(0), args.Error(1)
}
