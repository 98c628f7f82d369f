package server

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lanchat/lanchat/internal/database"
	"github.com/lanchat/lanchat/internal/types"
)

const defaultHistoryLimit = 50

// PrivateRoomId derives the canonical id of the private room between
// two users. The lower id always comes first, so both orderings of the
// pair map to the same room.
func PrivateRoomId(a, b int) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("private_%d_%d", a, b)
}

// VisibleRooms assembles the user's room list: every membership whose
// room is not hidden, annotated with members, last message and unread
// count. The lobby sorts first, then pinned rooms, then most recently
// joined.
func (cs *ChatServer) VisibleRooms(userId int) ([]types.Room, error) {
	listings, err := cs.db.ListRooms(userId)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	unread := make(map[string]int)
	counts, err := cs.db.ListUnread(userId)
	if err != nil {
		return nil, fmt.Errorf("list unread: %w", err)
	}
	for _, uc := range counts {
		unread[uc.RoomId] = uc.Count
	}

	rooms := make([]types.Room, 0, len(listings))
	for _, listing := range listings {
		room, err := cs.annotateRoom(listing)
		if err != nil {
			return nil, err
		}
		room.UnreadCount = unread[listing.Id]
		rooms = append(rooms, room)
	}

	return rooms, nil
}

func (cs *ChatServer) annotateRoom(listing database.RoomListing) (types.Room, error) {
	members, err := cs.db.GetMembers(listing.Id)
	if err != nil {
		return types.Room{}, fmt.Errorf("get members of room %q: %w", listing.Id, err)
	}

	last, err := cs.db.GetLastMessage(listing.Id)
	if err != nil {
		return types.Room{}, fmt.Errorf("get last message of room %q: %w", listing.Id, err)
	}

	room := types.Room{
		Id:        listing.Id,
		Name:      listing.Name,
		Type:      listing.Type,
		Pinned:    listing.Pinned,
		Members:   toUsers(members),
		JoinedAt:  listing.JoinedAt,
		CreatedAt: listing.CreatedAt,
	}
	if last != nil {
		m := toMessage(*last)
		room.LastMessage = &m
	}

	return room, nil
}

// roomInfoForUser builds a single annotated room list entry.
func (cs *ChatServer) roomInfoForUser(userId int, roomId string) (types.Room, error) {
	listing, err := cs.db.GetRoomListing(userId, roomId)
	if err != nil {
		return types.Room{}, fmt.Errorf("get room listing: %w", err)
	}

	room, err := cs.annotateRoom(listing)
	if err != nil {
		return types.Room{}, err
	}

	uc, err := cs.db.GetUnread(userId, roomId)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return types.Room{}, fmt.Errorf("get unread: %w", err)
	}
	room.UnreadCount = uc.Count

	return room, nil
}

// GetOrCreatePrivateRoom resolves the private room between two users,
// creating it on first use. Membership of both participants is
// re-asserted unconditionally so a previously departed participant is
// restored.
func (cs *ChatServer) GetOrCreatePrivateRoom(userId, targetId int) (database.Room, bool, error) {
	roomId := PrivateRoomId(userId, targetId)

	var created bool
	room, err := cs.db.GetRoom(roomId)
	if errors.Is(err, sql.ErrNoRows) {
		room, err = cs.createPrivateRoom(userId, targetId)
		if err != nil {
			return database.Room{}, false, err
		}
		created = true
	} else if err != nil {
		return database.Room{}, false, fmt.Errorf("get room %q: %w", roomId, err)
	}

	if err := cs.db.AddMember(roomId, userId); err != nil {
		return database.Room{}, false, fmt.Errorf("add member %d: %w", userId, err)
	}
	if err := cs.db.AddMember(roomId, targetId); err != nil {
		return database.Room{}, false, fmt.Errorf("add member %d: %w", targetId, err)
	}

	return room, created, nil
}

func (cs *ChatServer) createPrivateRoom(userId, targetId int) (database.Room, error) {
	a, b := userId, targetId
	if a > b {
		a, b = b, a
	}

	userA, err := cs.db.GetAccountById(a)
	if err != nil {
		return database.Room{}, fmt.Errorf("get account %d: %w", a, err)
	}
	userB, err := cs.db.GetAccountById(b)
	if err != nil {
		return database.Room{}, fmt.Errorf("get account %d: %w", b, err)
	}

	room, err := cs.db.CreateRoom(database.CreateRoomParams{
		Id:        PrivateRoomId(a, b),
		Name:      displayName(userA) + " & " + displayName(userB),
		Type:      database.RoomTypePrivate,
		UserA:     a,
		UserB:     b,
		CreatedBy: userId,
	})
	if err != nil {
		return database.Room{}, fmt.Errorf("create room: %w", err)
	}

	return room, nil
}

func displayName(u database.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// StartPrivateChat opens (or reopens) the private room between the
// caller and the target and returns the caller's annotated view of it.
// If the target was not already a member, their live connection is
// notified of the new room.
func (cs *ChatServer) StartPrivateChat(user types.User, targetId int) (*types.Room, error) {
	if targetId == user.Id {
		return nil, ErrSelfChat
	}

	if _, err := cs.db.GetAccountById(targetId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get account %d: %w", targetId, err)
	}

	roomId := PrivateRoomId(user.Id, targetId)
	targetWasMember, err := cs.db.IsMember(roomId, targetId)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}

	room, _, err := cs.GetOrCreatePrivateRoom(user.Id, targetId)
	if err != nil {
		return nil, err
	}

	info, err := cs.roomInfoForUser(user.Id, room.Id)
	if err != nil {
		return nil, err
	}

	if !targetWasMember {
		if targetInfo, err := cs.roomInfoForUser(targetId, room.Id); err == nil {
			cs.pushToUser(targetId, &ServerMessage{
				BaseMessage: BaseMessage{Timestamp: Now()},
				NewRoom:     &targetInfo,
			})
		} else {
			cs.log.Printf("failed to build room info for user %d: %s", targetId, err)
		}
	}

	return &info, nil
}

// TogglePin sets the pinned flag on the caller's membership. The lobby
// is always pinned and cannot be unpinned.
func (cs *ChatServer) TogglePin(userId int, roomId string, pinned bool) error {
	if roomId == database.LobbyRoomId && !pinned {
		return ErrLobbyPinned
	}

	member, err := cs.db.IsMember(roomId, userId)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return ErrNotAMember
	}

	return cs.db.SetPinned(roomId, userId, pinned)
}

// LeaveRoom removes the caller from the room. Leaving the lobby is
// rejected. A group room with no members left is deleted outright;
// private rooms are kept so the conversation can be reopened.
func (cs *ChatServer) LeaveRoom(user types.User, roomId string) error {
	if roomId == database.LobbyRoomId {
		return ErrCannotDeleteLobby
	}

	room, err := cs.db.GetRoom(roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("get room %q: %w", roomId, err)
	}

	member, err := cs.db.IsMember(roomId, user.Id)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return ErrNotAMember
	}

	if err := cs.db.ClearUnread(user.Id, roomId); err != nil {
		cs.log.Printf("failed to clear unread for user %d in room %q: %s", user.Id, roomId, err)
	}

	if err := cs.db.RemoveMember(roomId, user.Id); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}

	if room.Type == database.RoomTypeGroup {
		count, err := cs.db.CountMembers(roomId)
		if err != nil {
			return fmt.Errorf("count members: %w", err)
		}
		if count == 0 {
			if err := cs.db.DeleteRoom(roomId); err != nil {
				return fmt.Errorf("delete room %q: %w", roomId, err)
			}
		}
	}

	cs.pushTotalUnread(user.Id)
	return nil
}

// LoadMessages returns up to limit messages of the room in reverse
// chronological order, older than before when set.
func (cs *ChatServer) LoadMessages(userId int, roomId string, before int64, limit int) ([]types.Message, error) {
	member, err := cs.db.IsMember(roomId, userId)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return nil, ErrNotAMember
	}

	if limit <= 0 || limit > 200 {
		limit = defaultHistoryLimit
	}

	messages, err := cs.db.GetMessages(roomId, before, limit)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}

	return toMessages(messages), nil
}

// SearchMessages searches message text, scoped to a single room when
// roomId is set. Searching a room requires membership.
func (cs *ChatServer) SearchMessages(userId int, query, roomId string) ([]types.Message, error) {
	if roomId != "" {
		member, err := cs.db.IsMember(roomId, userId)
		if err != nil {
			return nil, fmt.Errorf("check membership: %w", err)
		}
		if !member {
			return nil, ErrNotAMember
		}
	}

	messages, err := cs.db.SearchMessages(userId, query, roomId, defaultHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}

	return toMessages(messages), nil
}
