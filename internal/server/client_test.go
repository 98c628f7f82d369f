package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanchat/lanchat/internal/database"
	"github.com/lanchat/lanchat/internal/stats"
	"github.com/lanchat/lanchat/internal/testutil"
	"github.com/lanchat/lanchat/internal/types"
)

// newWsPair dials a real websocket through a test server and returns
// both ends of the connection.
func newWsPair(t *testing.T) (serverConn, clientConn *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("failed to upgrade connection: %v", err)
			return
		}
		connCh <- conn
	}))
	t.Cleanup(srv.Close)

	clientConn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err, "failed to dial test server")
	t.Cleanup(func() { clientConn.Close() })

	serverConn = <-connCh
	t.Cleanup(func() { serverConn.Close() })

	return serverConn, clientConn
}

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.queueMessage(&ServerMessage{})
		assert.True(t, res, "expected queueMessage to return true when channel is not full")

		select {
		case msg := <-c.send:
			assert.NotNil(t, msg, "expected a message to be sent to the client")
		default:
			t.Error("expected a message to be sent to the client, but none was sent")
		}
	})
	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerMessage{}
		res := c.queueMessage(&ServerMessage{})
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})
}

func Test_dispatch_requiresLogin(t *testing.T) {
	cs := newTestChatServer(t, &database.MockRepository{}, &stats.MockStatsUpdater{})
	c := &Client{
		chatServer: cs,
		log:        testutil.TestLogger(t),
		send:       make(chan *ServerMessage, 1),
		stop:       make(chan struct{}),
	}

	c.dispatch(&ClientMessage{Send: &SendMessage{RoomId: "lobby", Text: "hi"}})

	msgs := drain(c)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].LoginError, "expected a login error for an unauthenticated send")
}

func Test_handleLogin(t *testing.T) {
	user := types.User{Id: 1, Username: "alice"}

	t.Run("bad token", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		cs.verifier = verifierFunc(func(string) (types.User, error) {
			return types.User{}, errors.New("invalid token")
		})

		c := &Client{
			chatServer: cs,
			log:        testutil.TestLogger(t),
			send:       make(chan *ServerMessage, 4),
			stop:       make(chan struct{}),
		}

		c.handleLogin(&ClientMessage{Login: &Login{Token: "bad"}})

		assert.False(t, c.authed.Load(), "expected connection to remain unauthenticated")
		msgs := drain(c)
		require.Len(t, msgs, 1)
		require.NotNil(t, msgs[0].LoginError)
		assert.Equal(t, "invalid token", msgs[0].LoginError.Message)
	})

	t.Run("successful login", func(t *testing.T) {
		db := &database.MockRepository{}
		defer db.AssertExpectations(t)
		db.On("UpdateLastSeen", 1).Return(nil).Once()
		db.On("ListRooms", 1).Return([]database.RoomListing{}, nil).Once()
		db.On("ListUnread", 1).Return([]database.UnreadCount{}, nil).Once()
		db.On("TotalUnread", 1).Return(0, nil).Once()

		cs := newTestChatServer(t, db, &stats.MockStatsUpdater{})
		cs.verifier = verifierFunc(func(token string) (types.User, error) {
			assert.Equal(t, "good", token)
			return user, nil
		})

		c := NewClient(nil, cs, testutil.TestLogger(t))
		c.handleLogin(&ClientMessage{BaseMessage: BaseMessage{Id: 3}, Login: &Login{Token: "good"}})

		assert.True(t, c.authed.Load(), "expected connection to be authenticated")

		registered, ok := cs.tracker.Lookup(1)
		assert.True(t, ok, "expected connection to be registered for the user")
		assert.Same(t, c, registered)

		msgs := drain(c)
		require.Len(t, msgs, 3)
		require.NotNil(t, msgs[0].LoginSuccess)
		assert.Equal(t, 3, msgs[0].Id, "expected the reply to carry the request id")
		assert.Equal(t, user, msgs[0].LoginSuccess.User)
		assert.NotNil(t, msgs[1].RoomList)
		require.NotNil(t, msgs[2].TotalUnread)
	})
}

func Test_dropIfUnauthenticated(t *testing.T) {
	t.Run("unauthenticated connection is closed", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockRepository{}, &stats.MockStatsUpdater{})
		serverConn, clientConn := newWsPair(t)

		c := NewClient(serverConn, cs, testutil.TestLogger(t))
		c.authTimer.Stop()

		c.dropIfUnauthenticated()

		clientConn.SetReadDeadline(time.Now().Add(time.Second))
		_, _, err := clientConn.ReadMessage()
		assert.Error(t, err, "expected the connection to be closed")
	})

	t.Run("authenticated connection survives", func(t *testing.T) {
		cs := newTestChatServer(t, &database.MockRepository{}, &stats.MockStatsUpdater{})
		serverConn, clientConn := newWsPair(t)

		c := NewClient(serverConn, cs, testutil.TestLogger(t))
		c.authTimer.Stop()
		c.authed.Store(true)

		c.dropIfUnauthenticated()

		require.NoError(t, serverConn.WriteMessage(websocket.TextMessage, []byte("still here")))
		clientConn.SetReadDeadline(time.Now().Add(time.Second))
		_, raw, err := clientConn.ReadMessage()
		require.NoError(t, err, "expected the connection to stay open")
		assert.Equal(t, "still here", string(raw))
	})
}

func Test_replyErr(t *testing.T) {
	t.Run("user error is echoed", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.replyErr(1, ErrNotAMember)
		msgs := drain(c)
		require.Len(t, msgs, 1)
		assert.Equal(t, ErrNotAMember.Error(), msgs[0].Error.Message)
	})

	t.Run("internal error is masked", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.replyErr(2, errors.New("pq: connection reset"))
		msgs := drain(c)
		require.Len(t, msgs, 1)
		assert.Equal(t, "internal server error", msgs[0].Error.Message)
	})
}
