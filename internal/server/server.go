package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lanchat/lanchat/internal/database"
	"github.com/lanchat/lanchat/internal/stats"
	"github.com/lanchat/lanchat/internal/types"
)

const (
	// A user counts as online if seen within this window.
	onlineWindow = 5 * time.Minute

	StatActiveConnections = "ActiveConnections"
	StatMessagesPublished = "MessagesPublished"
	StatUnreadIncrements  = "UnreadIncrements"
	StatRoomsResurrected  = "RoomsResurrected"
)

// TokenVerifier resolves a presented credential to the account it
// belongs to, rejecting expired, revoked and banned credentials.
type TokenVerifier interface {
	Verify(token string) (types.User, error)
}

type stopReq struct {
	done chan struct{}
}

type ChatServer struct {
	log         *log.Logger
	db          database.Repository
	stats       stats.StatsProvider
	tracker     Tracker
	verifier    TokenVerifier
	clients     map[*Client]struct{}
	clientsLock sync.Mutex

	RegisterChan   chan *Client
	deRegisterChan chan *Client
	broadcastChan  chan *ServerMessage
	stop           chan stopReq
}

func NewChatServer(logger *log.Logger, db database.Repository, statsProvider stats.StatsProvider, tracker Tracker, verifier TokenVerifier) (*ChatServer, error) {
	cs := &ChatServer{
		log:            logger,
		db:             db,
		stats:          statsProvider,
		tracker:        tracker,
		verifier:       verifier,
		clients:        make(map[*Client]struct{}),
		RegisterChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		broadcastChan:  make(chan *ServerMessage, 256),
		stop:           make(chan stopReq),
	}

	cs.stats.RegisterMetric(StatActiveConnections)
	cs.stats.RegisterMetric(StatMessagesPublished)
	cs.stats.RegisterMetric(StatUnreadIncrements)
	cs.stats.RegisterMetric(StatRoomsResurrected)

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case client := <-cs.RegisterChan:
			cs.log.Printf("adding connection %q", client.id)
			cs.addClient(client)
			cs.stats.Incr(StatActiveConnections)
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection %q", client.id)
			cs.removeClient(client)
			cs.stats.Decr(StatActiveConnections)
		case msg := <-cs.broadcastChan:
			cs.deliver(msg)
		case req := <-cs.stop:
			cs.clientsLock.Lock()
			for c := range cs.clients {
				c.closeConn()
			}
			cs.clientsLock.Unlock()
			close(req.done)
			return
		}
	}
}

func (cs *ChatServer) deliver(msg *ServerMessage) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	for c := range cs.clients {
		if c == msg.SkipClient || !c.authed.Load() {
			continue
		}
		c.queueMessage(msg)
	}
}

// broadcast queues msg for every authenticated connection. Delivery is
// best effort; the event is dropped if the broadcast channel is full.
func (cs *ChatServer) broadcast(msg *ServerMessage) {
	select {
	case cs.broadcastChan <- msg:
	default:
		cs.log.Println("broadcast channel full, dropping event")
	}
}

// pushToUser delivers msg to the user's live connection, if any.
// Returns false when the user is offline or their send queue is full.
func (cs *ChatServer) pushToUser(userId int, msg *ServerMessage) bool {
	c, ok := cs.tracker.Lookup(userId)
	if !ok {
		return false
	}
	return c.queueMessage(msg)
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	delete(cs.clients, c)
}

// touchUser refreshes the sender's durable last seen timestamp and
// announces the updated status to everyone else.
func (cs *ChatServer) touchUser(user types.User) {
	if err := cs.db.UpdateLastSeen(user.Id); err != nil {
		cs.log.Printf("failed to update last seen for user %d: %s", user.Id, err)
		return
	}

	user.LastSeen = Now()
	cs.broadcast(&ServerMessage{
		BaseMessage: BaseMessage{Timestamp: Now()},
		UserStatus:  &user,
	})
}

// OnlineUsers lists accounts seen within the online window.
func (cs *ChatServer) OnlineUsers() ([]types.User, error) {
	users, err := cs.db.ListOnlineAccounts(time.Now().UTC().Add(-onlineWindow))
	if err != nil {
		return nil, err
	}
	return toUsers(users), nil
}

// ForceLogout notifies the user's live connection and closes it. Used
// when an administrator bans an account mid-session.
func (cs *ChatServer) ForceLogout(userId int, reason string) {
	c, ok := cs.tracker.Lookup(userId)
	if !ok {
		return
	}

	c.queueMessage(&ServerMessage{
		BaseMessage:  BaseMessage{Timestamp: Now()},
		ForcedLogout: &ForcedLogout{Reason: reason},
	})
	c.closeConn()
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	req := stopReq{done: make(chan struct{})}

	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
