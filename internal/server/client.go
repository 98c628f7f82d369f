package server

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lanchat/lanchat/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	// A connection that has not authenticated within this window is
	// dropped.
	authWait = 10 * time.Second
)

type Client struct {
	id         string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	user       types.User
	authed     atomic.Bool
	authTimer  *time.Timer
	send       chan *ServerMessage
	stop       chan struct{}
	closeOnce  sync.Once
}

func NewClient(conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	c := &Client{
		id:         uuid.NewString(),
		conn:       conn,
		chatServer: cs,
		log:        l,
		send:       make(chan *ServerMessage, 256),
		stop:       make(chan struct{}),
	}

	c.authTimer = time.AfterFunc(authWait, c.dropIfUnauthenticated)

	return c
}

// dropIfUnauthenticated closes the connection unless a login completed
// first. Runs when the auth window elapses.
func (c *Client) dropIfUnauthenticated() {
	if c.authed.Load() {
		return
	}

	c.log.Printf("connection %q did not authenticate in time", c.id)
	c.conn.Close()
}

func (c *Client) Write() {
	ticker := time.NewTicker(time.Duration(pingInterval))
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(NewErrorEvent(-1, "invalid message"))
			continue
		}

		msg.client = c
		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *ClientMessage) {
	if msg.Login != nil {
		c.handleLogin(msg)
		return
	}

	if !c.authed.Load() {
		c.queueMessage(NewLoginError("login required"))
		return
	}

	switch {
	case msg.Send != nil:
		c.handleSend(msg)
	case msg.LoadMessages != nil:
		c.handleLoadMessages(msg)
	case msg.ClearUnread != nil:
		c.handleClearUnread(msg)
	case msg.CreatePrivateChat != nil:
		c.handleCreatePrivateChat(msg)
	case msg.DeleteRoom != nil:
		c.handleDeleteRoom(msg)
	case msg.TogglePin != nil:
		c.handleTogglePin(msg)
	case msg.Heartbeat != nil:
		c.handleHeartbeat(msg)
	case msg.GetRooms != nil:
		c.sendRoomList(msg.Id)
	case msg.GetOnlineUsers != nil:
		c.handleGetOnlineUsers(msg)
	case msg.SearchMessages != nil:
		c.handleSearchMessages(msg)
	case msg.RestoreRooms != nil:
		c.handleBotAction(msg, c.chatServer.RestoreBotRooms)
	case msg.EnsureRooms != nil:
		c.handleBotAction(msg, c.chatServer.EnsureBotRooms)
	case msg.HideRooms != nil:
		c.handleBotAction(msg, c.chatServer.HideBotRooms)
	default:
		c.queueMessage(NewErrorEvent(msg.Id, "unknown event"))
	}
}

func (c *Client) handleLogin(msg *ClientMessage) {
	user, err := c.chatServer.verifier.Verify(msg.Login.Token)
	if err != nil {
		c.log.Printf("login failed on connection %q: %s", c.id, err)
		c.queueMessage(NewLoginError(err.Error()))
		return
	}

	c.user = user
	c.authed.Store(true)
	c.authTimer.Stop()
	c.chatServer.tracker.Register(user.Id, c)

	if err := c.chatServer.db.UpdateLastSeen(user.Id); err != nil {
		c.log.Printf("failed to update last seen for user %d: %s", user.Id, err)
	}

	c.queueMessage(&ServerMessage{
		BaseMessage:  BaseMessage{Id: msg.Id, Timestamp: Now()},
		LoginSuccess: &LoginSuccess{User: user},
	})

	c.sendRoomList(0)
	c.chatServer.pushTotalUnread(user.Id)

	online := user
	online.LastSeen = Now()
	c.chatServer.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		UserOnline:  &online,
		SkipClient:  c,
	})
}

func (c *Client) handleSend(msg *ClientMessage) {
	if err := c.chatServer.Publish(c.user, msg.Send.RoomId, msg.Send.Text); err != nil {
		c.replyErr(msg.Id, err)
	}
}

func (c *Client) handleLoadMessages(msg *ClientMessage) {
	req := msg.LoadMessages
	history, err := c.chatServer.LoadMessages(c.user.Id, req.RoomId, req.Before, req.Limit)
	if err != nil {
		c.replyErr(msg.Id, err)
		return
	}

	c.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{Id: msg.Id, Timestamp: Now()},
		Messages:    &MessageHistory{RoomId: req.RoomId, Messages: history},
	})

	if !req.SkipClearUnread {
		if err := c.chatServer.ClearUnread(c.user.Id, req.RoomId); err != nil {
			c.log.Printf("failed to clear unread for user %d in room %q: %s", c.user.Id, req.RoomId, err)
		}
	}
}

func (c *Client) handleClearUnread(msg *ClientMessage) {
	if err := c.chatServer.ClearUnread(c.user.Id, msg.ClearUnread.RoomId); err != nil {
		c.replyErr(msg.Id, err)
	}
}

func (c *Client) handleCreatePrivateChat(msg *ClientMessage) {
	room, err := c.chatServer.StartPrivateChat(c.user, msg.CreatePrivateChat.TargetUserId)
	if err != nil {
		c.replyErr(msg.Id, err)
		return
	}

	c.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{Id: msg.Id, Timestamp: Now()},
		RoomCreated: room,
	})
}

func (c *Client) handleDeleteRoom(msg *ClientMessage) {
	roomId := msg.DeleteRoom.RoomId
	if err := c.chatServer.LeaveRoom(c.user, roomId); err != nil {
		c.replyErr(msg.Id, err)
		return
	}

	c.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{Id: msg.Id, Timestamp: Now()},
		RoomDeleted: &RoomDeleted{RoomId: roomId},
	})
}

func (c *Client) handleTogglePin(msg *ClientMessage) {
	req := msg.TogglePin
	if err := c.chatServer.TogglePin(c.user.Id, req.RoomId, req.Pinned); err != nil {
		c.replyErr(msg.Id, err)
		return
	}

	c.sendRoomList(msg.Id)
}

func (c *Client) handleHeartbeat(msg *ClientMessage) {
	c.chatServer.touchUser(c.user)
}

func (c *Client) handleGetOnlineUsers(msg *ClientMessage) {
	users, err := c.chatServer.OnlineUsers()
	if err != nil {
		c.replyErr(msg.Id, err)
		return
	}

	c.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{Id: msg.Id, Timestamp: Now()},
		OnlineUsers: users,
	})
}

func (c *Client) handleSearchMessages(msg *ClientMessage) {
	req := msg.SearchMessages
	results, err := c.chatServer.SearchMessages(c.user.Id, req.Query, req.RoomId)
	if err != nil {
		c.replyErr(msg.Id, err)
		return
	}

	c.queueMessage(&ServerMessage{
		BaseMessage:   BaseMessage{Id: msg.Id, Timestamp: Now()},
		SearchResults: results,
	})
}

func (c *Client) handleBotAction(msg *ClientMessage, action func(types.User) error) {
	if err := action(c.user); err != nil {
		c.replyErr(msg.Id, err)
	}
}

func (c *Client) sendRoomList(id int) {
	rooms, err := c.chatServer.VisibleRooms(c.user.Id)
	if err != nil {
		c.log.Printf("failed to list rooms for user %d: %s", c.user.Id, err)
		c.queueMessage(NewErrorEvent(id, "internal server error"))
		return
	}

	c.queueMessage(&ServerMessage{
		BaseMessage: BaseMessage{Id: id, Timestamp: Now()},
		RoomList:    rooms,
	})
}

func (c *Client) replyErr(id int, err error) {
	if isUserError(err) {
		c.queueMessage(NewErrorEvent(id, err.Error()))
		return
	}

	c.log.Printf("internal error on connection %q: %s", c.id, err)
	c.queueMessage(NewErrorEvent(id, "internal server error"))
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to send message to client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) closeConn() {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.conn.Close()
	})
}

func (c *Client) cleanup() {
	c.authTimer.Stop()

	if c.authed.Load() {
		if c.user.IsBot {
			if err := c.chatServer.HandleBotDisconnect(c.user); err != nil &&
				!errors.Is(err, ErrBotOnly) {
				c.log.Printf("failed to hide rooms for bot %d: %s", c.user.Id, err)
			}
		}

		c.chatServer.tracker.Unregister(c.user.Id, c)

		offline := c.user
		c.chatServer.broadcast(&ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			UserOffline: &offline,
			SkipClient:  c,
		})
	}

	c.chatServer.deRegisterChan <- c
	c.closeConn()
}
