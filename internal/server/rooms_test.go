package server

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanchat/lanchat/internal/database"
	"github.com/lanchat/lanchat/internal/stats"
	"github.com/lanchat/lanchat/internal/types"
)

func TestPrivateRoomId(t *testing.T) {
	assert.Equal(t, "private_1_2", PrivateRoomId(1, 2))
	assert.Equal(t, "private_1_2", PrivateRoomId(2, 1), "expected the same id regardless of argument order")
	assert.Equal(t, "private_7_31", PrivateRoomId(31, 7))
}

func TestVisibleRooms(t *testing.T) {
	lobby := database.RoomListing{
		Room: database.Room{Id: "lobby", Name: "Lobby", Type: database.RoomTypeGroup},
	}
	private := database.RoomListing{
		Room:   database.Room{Id: "private_1_2", Name: "alice & bob", Type: database.RoomTypePrivate, UserA: 1, UserB: 2},
		Pinned: true,
	}
	lastMsg := dbMessage(5, "private_1_2", 2, "hey")

	db := &database.MockRepository{}
	defer db.AssertExpectations(t)
	db.On("ListRooms", 1).Return([]database.RoomListing{lobby, private}, nil).Once()
	db.On("ListUnread", 1).
		Return([]database.UnreadCount{{UserId: 1, RoomId: "private_1_2", Count: 3}}, nil).Once()
	db.On("GetMembers", "lobby").
		Return([]database.User{{Id: 1, Username: "alice"}, {Id: 2, Username: "bob"}}, nil).Once()
	db.On("GetLastMessage", "lobby").Return((*database.Message)(nil), nil).Once()
	db.On("GetMembers", "private_1_2").
		Return([]database.User{{Id: 1, Username: "alice"}, {Id: 2, Username: "bob"}}, nil).Once()
	db.On("GetLastMessage", "private_1_2").Return(&lastMsg, nil).Once()

	cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})

	rooms, err := cs.VisibleRooms(1)
	require.NoError(t, err)
	require.Len(t, rooms, 2)

	assert.Equal(t, "lobby", rooms[0].Id)
	assert.Nil(t, rooms[0].LastMessage)
	assert.Zero(t, rooms[0].UnreadCount)

	assert.Equal(t, "private_1_2", rooms[1].Id)
	assert.True(t, rooms[1].Pinned)
	assert.Equal(t, 3, rooms[1].UnreadCount)
	require.NotNil(t, rooms[1].LastMessage)
	assert.Equal(t, "hey", rooms[1].LastMessage.Text)
}

func TestTogglePin(t *testing.T) {
	t.Run("lobby cannot be unpinned", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		err := cs.TogglePin(1, database.LobbyRoomId, false)
		assert.ErrorIs(t, err, ErrLobbyPinned)
	})

	t.Run("requires membership", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("IsMember", "private_2_3", 1).Return(false, nil).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		err := cs.TogglePin(1, "private_2_3", true)
		assert.ErrorIs(t, err, ErrNotAMember)
	})

	t.Run("sets the pin flag", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("IsMember", "private_1_2", 1).Return(true, nil).Once()
		db.On("SetPinned", "private_1_2", 1, true).Return(nil).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		assert.NoError(t, cs.TogglePin(1, "private_1_2", true))
	})
}

func TestLeaveRoom(t *testing.T) {
	user := types.User{Id: 1, Username: "alice"}

	t.Run("lobby cannot be left", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		err := cs.LeaveRoom(user, database.LobbyRoomId)
		assert.ErrorIs(t, err, ErrCannotDeleteLobby)
	})

	t.Run("unknown room", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("GetRoom", "nope").Return(database.Room{}, sql.ErrNoRows).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		err := cs.LeaveRoom(user, "nope")
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})

	t.Run("empty group room is deleted", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("GetRoom", "g1").Return(database.Room{Id: "g1", Type: database.RoomTypeGroup}, nil).Once()
		db.On("IsMember", "g1", 1).Return(true, nil).Once()
		db.On("ClearUnread", 1, "g1").Return(nil).Once()
		db.On("RemoveMember", "g1", 1).Return(nil).Once()
		db.On("CountMembers", "g1").Return(0, nil).Once()
		db.On("DeleteRoom", "g1").Return(nil).Once()
		db.On("TotalUnread", 1).Return(0, nil).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		assert.NoError(t, cs.LeaveRoom(user, "g1"))
	})

	t.Run("private room survives for later resurrection", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("GetRoom", "private_1_2").
			Return(database.Room{Id: "private_1_2", Type: database.RoomTypePrivate, UserA: 1, UserB: 2}, nil).Once()
		db.On("IsMember", "private_1_2", 1).Return(true, nil).Once()
		db.On("ClearUnread", 1, "private_1_2").Return(nil).Once()
		db.On("RemoveMember", "private_1_2", 1).Return(nil).Once()
		db.On("TotalUnread", 1).Return(0, nil).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		assert.NoError(t, cs.LeaveRoom(user, "private_1_2"))
		db.AssertNotCalled(t, "DeleteRoom", "private_1_2")
	})
}

func TestStartPrivateChat(t *testing.T) {
	user := types.User{Id: 1, Username: "alice"}

	t.Run("rejects chatting with yourself", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		_, err := cs.StartPrivateChat(user, 1)
		assert.ErrorIs(t, err, ErrSelfChat)
	})

	t.Run("rejects unknown target", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("GetAccountById", 9).Return(database.User{}, sql.ErrNoRows).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		_, err := cs.StartPrivateChat(user, 9)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("creates the room and notifies the target", func(t *testing.T) {
		room := database.Room{Id: "private_1_2", Name: "alice & bob", Type: database.RoomTypePrivate, UserA: 1, UserB: 2}

		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("GetAccountById", 2).Return(database.User{Id: 2, Username: "bob"}, nil).Twice()
		db.On("IsMember", "private_1_2", 2).Return(false, nil).Once()
		db.On("GetRoom", "private_1_2").Return(database.Room{}, sql.ErrNoRows).Once()
		db.On("GetAccountById", 1).Return(database.User{Id: 1, Username: "alice"}, nil).Once()
		db.On("CreateRoom", database.CreateRoomParams{
			Id:        "private_1_2",
			Name:      "alice & bob",
			Type:      database.RoomTypePrivate,
			UserA:     1,
			UserB:     2,
			CreatedBy: 1,
		}).Return(room, nil).Once()
		db.On("AddMember", "private_1_2", 1).Return(nil).Once()
		db.On("AddMember", "private_1_2", 2).Return(nil).Once()

		// caller's annotated view
		db.On("GetRoomListing", 1, "private_1_2").Return(database.RoomListing{Room: room}, nil).Once()
		db.On("GetMembers", "private_1_2").
			Return([]database.User{{Id: 1, Username: "alice"}, {Id: 2, Username: "bob"}}, nil).Twice()
		db.On("GetLastMessage", "private_1_2").Return((*database.Message)(nil), nil).Twice()
		db.On("GetUnread", 1, "private_1_2").Return(database.UnreadCount{}, sql.ErrNoRows).Once()

		// target's annotated view for the push
		db.On("GetRoomListing", 2, "private_1_2").Return(database.RoomListing{Room: room}, nil).Once()
		db.On("GetUnread", 2, "private_1_2").Return(database.UnreadCount{}, sql.ErrNoRows).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		bob := newTestClient(t, cs, types.User{Id: 2, Username: "bob"})

		info, err := cs.StartPrivateChat(user, 2)
		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal(t, "private_1_2", info.Id)
		assert.Equal(t, "alice & bob", info.Name)

		msgs := drain(bob)
		require.Len(t, msgs, 1, "expected the target to learn about the new room")
		require.NotNil(t, msgs[0].NewRoom)
		assert.Equal(t, "private_1_2", msgs[0].NewRoom.Id)
	})
}

func TestGetOrCreatePrivateRoom_reassertsMembership(t *testing.T) {
	room := database.Room{Id: "private_1_2", Type: database.RoomTypePrivate, UserA: 1, UserB: 2}

	db := &database.MockRepository{}
	defer db.AssertExpectations(t)
	db.On("GetRoom", "private_1_2").Return(room, nil).Once()
	db.On("AddMember", "private_1_2", 1).Return(nil).Once()
	db.On("AddMember", "private_1_2", 2).Return(nil).Once()

	cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})

	got, created, err := cs.GetOrCreatePrivateRoom(1, 2)
	require.NoError(t, err)
	assert.False(t, created, "expected existing room to be reused")
	assert.Equal(t, room, got)
	db.AssertNotCalled(t, "CreateRoom")
}

func TestLoadMessages(t *testing.T) {
	t.Run("requires membership", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("IsMember", "lobby", 1).Return(false, nil).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		_, err := cs.LoadMessages(1, "lobby", 0, 0)
		assert.ErrorIs(t, err, ErrNotAMember)
	})

	t.Run("applies the default page size", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("IsMember", "lobby", 1).Return(true, nil).Once()
		db.On("GetMessages", "lobby", int64(0), defaultHistoryLimit).
			Return([]database.Message{dbMessage(1, "lobby", 2, "hi")}, nil).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		msgs, err := cs.LoadMessages(1, "lobby", 0, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "hi", msgs[0].Text)
	})
}
