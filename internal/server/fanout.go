package server

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/lanchat/lanchat/internal/database"
	"github.com/lanchat/lanchat/internal/types"
)

// Publish validates, persists and fans out one message. The message is
// durable before any delivery happens; a persistence failure aborts the
// whole operation. For private rooms, a participant who previously left
// is re-added and told about the room before the message reaches
// anyone.
func (cs *ChatServer) Publish(sender types.User, roomId, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return ErrMessageTooLong
	}

	room, err := cs.db.GetRoom(roomId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("get room %q: %w", roomId, err)
	}

	member, err := cs.db.IsMember(roomId, sender.Id)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return ErrNotAMember
	}

	cs.touchUser(sender)

	msg, err := cs.db.CreateMessage(database.CreateMessageParams{
		RoomId: roomId,
		UserId: sender.Id,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	cs.stats.Incr(StatMessagesPublished)

	members, err := cs.db.GetMembers(roomId)
	if err != nil {
		return fmt.Errorf("get members: %w", err)
	}

	if room.Type == database.RoomTypePrivate {
		members = cs.repairPrivateRoom(room, members, msg)
	}

	event := toMessage(msg)
	for _, m := range members {
		cs.pushToUser(m.Id, &ServerMessage{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Message:     &event,
		})

		if m.Id != sender.Id {
			cs.incrementUnread(m.Id, roomId, msg.Id)
		}
	}

	return nil
}

// repairPrivateRoom re-adds any intended participant who is missing
// from the membership. The restored user gets a new room notification
// carrying the incoming message as its preview before any counter
// update reaches them, so they never see a count for a room they do
// not know about.
func (cs *ChatServer) repairPrivateRoom(room database.Room, members []database.User, msg database.Message) []database.User {
	userA, userB, ok := room.Participants()
	if !ok {
		return members
	}

	present := make(map[int]bool, len(members))
	for _, m := range members {
		present[m.Id] = true
	}

	for _, userId := range []int{userA, userB} {
		if present[userId] {
			continue
		}

		if err := cs.db.AddMember(room.Id, userId); err != nil {
			cs.log.Printf("failed to restore user %d to room %q: %s", userId, room.Id, err)
			continue
		}
		cs.stats.Incr(StatRoomsResurrected)
		cs.log.Printf("restored user %d to room %q", userId, room.Id)

		seeded := false
		if userId != msg.UserId {
			seeded = cs.bumpUnread(userId, room.Id, msg.Id)
		}

		if _, online := cs.tracker.Lookup(userId); online {
			if info, err := cs.roomInfoForUser(userId, room.Id); err == nil {
				cs.pushToUser(userId, &ServerMessage{
					BaseMessage: BaseMessage{Timestamp: Now()},
					NewRoom:     &info,
				})
			} else {
				cs.log.Printf("failed to build room info for user %d: %s", userId, err)
			}

			if seeded {
				cs.pushUnread(userId, room.Id)
			}
		}
	}

	return members
}
