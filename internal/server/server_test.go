package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/lanchat/lanchat/internal/database"
	"github.com/lanchat/lanchat/internal/stats"
	"github.com/lanchat/lanchat/internal/testutil"
	"github.com/lanchat/lanchat/internal/types"
)

type verifierFunc func(token string) (types.User, error)

func (f verifierFunc) Verify(token string) (types.User, error) { return f(token) }

// newTestChatServer creates a ChatServer wired to mocks for testing.
func newTestChatServer(t *testing.T, db database.Repository, su *stats.MockStatsUpdater) *ChatServer {
	su.On("RegisterMetric", mock.Anything).Times(4)

	cs, err := NewChatServer(testutil.TestLogger(t), db, su, NewConnTracker(), verifierFunc(func(string) (types.User, error) {
		return types.User{}, nil
	}))
	if err != nil {
		t.Fatalf("failed to create test ChatServer: %v", err)
	}
	return cs
}

// newTestClient returns an authenticated client that is registered
// with the tracker so pushes to its user land on its send channel.
func newTestClient(t *testing.T, cs *ChatServer, user types.User) *Client {
	c := &Client{
		id:         user.Username,
		chatServer: cs,
		log:        testutil.TestLogger(t),
		user:       user,
		send:       make(chan *ServerMessage, 16),
		stop:       make(chan struct{}),
	}
	c.authed.Store(true)
	cs.addClient(c)
	cs.tracker.Register(user.Id, c)
	return c
}

func dbMessage(id int64, roomId string, userId int, text string) database.Message {
	return database.Message{
		Id:        id,
		RoomId:    roomId,
		UserId:    userId,
		Username:  "testuser",
		Text:      text,
		CreatedAt: Now(),
	}
}

func drain(c *Client) []*ServerMessage {
	var msgs []*ServerMessage
	for {
		select {
		case msg := <-c.send:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func TestNewChatServer(t *testing.T) {
	db := &database.MockRepository{}
	defer db.AssertExpectations(t)

	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("RegisterMetric", mock.Anything).Times(4)

	logger := testutil.TestLogger(t)
	tracker := NewConnTracker()
	cs, err := NewChatServer(logger, db, su, tracker, nil)
	assert.NoError(t, err, "expected no error creating ChatServer")
	assert.NotNil(t, cs, "expected ChatServer to be non-nil")
	assert.Equal(t, logger, cs.log, "expected logger to be set")
	assert.Equal(t, db, cs.db, "expected database repository to be set")
	assert.Equal(t, Tracker(tracker), cs.tracker, "expected tracker to be set")
	assert.NotNil(t, cs.RegisterChan, "expected RegisterChan to be initialized")
	assert.NotNil(t, cs.deRegisterChan, "expected deRegisterChan to be initialized")
	assert.NotNil(t, cs.broadcastChan, "expected broadcastChan to be initialized")
	assert.NotNil(t, cs.stop, "expected stop channel to be initialized")
	assert.NotNil(t, cs.clients, "expected clients map to be initialized")
}

func TestChatServerShutdown(t *testing.T) {
	t.Run("successful shutdown", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockRepository{}, &stats.MockStatsUpdater{})

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		go func() {
			select {
			case req := <-cs.stop:
				assert.NotNil(t, req.done, "expected done channel in stop request")
				close(req.done)
			case <-time.After(100 * time.Millisecond):
				t.Error("expected signal on stop chan")
			}
		}()

		err := cs.Shutdown(ctx)
		assert.NoError(t, err, "expected successful shutdown without error")
	})

	t.Run("fails with context deadline exceeded", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockRepository{}, &stats.MockStatsUpdater{})

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		go func() {
			<-cs.stop
			// never close req.done to simulate a hang
		}()

		err := cs.Shutdown(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded, "expected context deadline exceeded error, got %v", err)
	})

	t.Run("shutdown through run loop", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockRepository{}, &stats.MockStatsUpdater{})
		go cs.Run()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err := cs.Shutdown(ctx)
		assert.NoError(t, err, "expected successful shutdown without error")
	})
}

func TestChatServer_addClient_removeClient(t *testing.T) {
	cs := newTestChatServer(t, &database.MockRepository{}, &stats.MockStatsUpdater{})

	client := &Client{user: types.User{Id: 1, Username: "testuser"}}
	cs.addClient(client)
	assert.Len(t, cs.clients, 1, "expected 1 client after adding")
	assert.Contains(t, cs.clients, client, "expected client to be added to clients map")

	cs.removeClient(client)
	assert.Len(t, cs.clients, 0, "expected 0 clients after removing")
}

func Test_deliver(t *testing.T) {
	cs := newTestChatServer(t, &database.MockRepository{}, &stats.MockStatsUpdater{})
	alice := newTestClient(t, cs, types.User{Id: 1, Username: "alice"})
	bob := newTestClient(t, cs, types.User{Id: 2, Username: "bob"})

	anon := &Client{send: make(chan *ServerMessage, 1), log: testutil.TestLogger(t)}
	cs.addClient(anon)

	msg := NewRoomListChanged()
	msg.SkipClient = alice
	cs.deliver(msg)

	assert.Empty(t, drain(alice), "expected skipped client to receive nothing")
	assert.Len(t, drain(bob), 1, "expected bob to receive the broadcast")
	assert.Empty(t, drain(anon), "expected unauthenticated client to receive nothing")
}

func Test_pushToUser(t *testing.T) {
	cs := newTestChatServer(t, &database.MockRepository{}, &stats.MockStatsUpdater{})
	alice := newTestClient(t, cs, types.User{Id: 1, Username: "alice"})

	assert.True(t, cs.pushToUser(1, NewTotalUnreadCount(1)), "expected push to online user to succeed")
	assert.Len(t, drain(alice), 1)

	assert.False(t, cs.pushToUser(99, NewTotalUnreadCount(1)), "expected push to offline user to fail")
}

func Test_ForceLogout(t *testing.T) {
	cs := newTestChatServer(t, &database.MockRepository{}, &stats.MockStatsUpdater{})
	alice := newTestClient(t, cs, types.User{Id: 1, Username: "alice"})

	cs.ForceLogout(99, "banned")
	assert.Empty(t, drain(alice), "expected no notification when the user is offline")
}

func Test_OnlineUsers(t *testing.T) {
	db := &database.MockRepository{}
	defer db.AssertExpectations(t)
	db.On("ListOnlineAccounts", mock.AnythingOfType("time.Time")).
		Return([]database.User{{Id: 1, Username: "alice"}}, nil).Once()

	cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})

	users, err := cs.OnlineUsers()
	assert.NoError(t, err)
	assert.Equal(t, []types.User{{Id: 1, Username: "alice"}}, users)
}
