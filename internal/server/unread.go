package server

import "fmt"

// ClearUnread zeroes the caller's counter for the room and pushes the
// updated per-room and total counts to their live connection.
func (cs *ChatServer) ClearUnread(userId int, roomId string) error {
	if err := cs.db.ClearUnread(userId, roomId); err != nil {
		return fmt.Errorf("clear unread: %w", err)
	}

	cs.pushToUser(userId, NewUnreadCountUpdate(roomId, 0))
	cs.pushTotalUnread(userId)
	return nil
}

// incrementUnread bumps the user's counter for the room and pushes the
// new counts to their live connection, if any.
func (cs *ChatServer) incrementUnread(userId int, roomId string, messageId int64) {
	if !cs.bumpUnread(userId, roomId, messageId) {
		return
	}

	if _, online := cs.tracker.Lookup(userId); !online {
		return
	}
	cs.pushUnread(userId, roomId)
}

// bumpUnread applies the durable increment without notifying anyone.
func (cs *ChatServer) bumpUnread(userId int, roomId string, messageId int64) bool {
	if err := cs.db.IncrementUnread(userId, roomId, messageId); err != nil {
		cs.log.Printf("failed to increment unread for user %d in room %q: %s", userId, roomId, err)
		return false
	}
	cs.stats.Incr(StatUnreadIncrements)
	return true
}

// pushUnread sends the user's current per-room and total counts to
// their live connection.
func (cs *ChatServer) pushUnread(userId int, roomId string) {
	uc, err := cs.db.GetUnread(userId, roomId)
	if err != nil {
		cs.log.Printf("failed to read unread count for user %d in room %q: %s", userId, roomId, err)
		return
	}

	cs.pushToUser(userId, NewUnreadCountUpdate(roomId, uc.Count))
	cs.pushTotalUnread(userId)
}

func (cs *ChatServer) pushTotalUnread(userId int) {
	total, err := cs.db.TotalUnread(userId)
	if err != nil {
		cs.log.Printf("failed to total unread for user %d: %s", userId, err)
		return
	}

	cs.pushToUser(userId, NewTotalUnreadCount(total))
}
