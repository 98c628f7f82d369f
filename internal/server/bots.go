package server

import (
	"fmt"

	"github.com/lanchat/lanchat/internal/database"
	"github.com/lanchat/lanchat/internal/types"
)

// Bot visibility: private rooms with a bot participant are hidden from
// room lists while the bot is inactive, without destroying history.
// Bots flip the state of their own rooms; humans never see the flag.

// RestoreBotRooms makes the bot's previously hidden private rooms
// visible again. Rooms the bot never hid are left alone.
func (cs *ChatServer) RestoreBotRooms(bot types.User) error {
	return cs.setBotRooms(bot, func(a database.RoomActivation) (database.RoomActivation, bool) {
		return database.ActivationActive, a == database.ActivationInactive
	})
}

// EnsureBotRooms creates a private room between the bot and every human
// account so the bot shows up in everyone's room list, activating newly
// created rooms.
func (cs *ChatServer) EnsureBotRooms(bot types.User) error {
	if !bot.IsBot {
		return ErrBotOnly
	}

	users, err := cs.db.ListAccounts()
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	for _, user := range users {
		if user.IsBot || user.Id == bot.Id {
			continue
		}

		room, _, err := cs.GetOrCreatePrivateRoom(bot.Id, user.Id)
		if err != nil {
			return fmt.Errorf("ensure room with user %d: %w", user.Id, err)
		}

		if room.Activation == database.ActivationUnset {
			if err := cs.db.SetRoomActivation(room.Id, database.ActivationActive); err != nil {
				return fmt.Errorf("activate room %q: %w", room.Id, err)
			}
		}
	}

	cs.broadcast(NewRoomListChanged())
	return nil
}

// HideBotRooms marks every private room of the bot inactive, removing
// it from members' room lists until restored.
func (cs *ChatServer) HideBotRooms(bot types.User) error {
	return cs.setBotRooms(bot, func(a database.RoomActivation) (database.RoomActivation, bool) {
		return database.ActivationInactive, a != database.ActivationInactive
	})
}

// HandleBotDisconnect hides the bot's rooms when its connection drops,
// so a crashed bot does not linger in room lists.
func (cs *ChatServer) HandleBotDisconnect(bot types.User) error {
	return cs.HideBotRooms(bot)
}

func (cs *ChatServer) setBotRooms(bot types.User, next func(database.RoomActivation) (database.RoomActivation, bool)) error {
	if !bot.IsBot {
		return ErrBotOnly
	}

	rooms, err := cs.db.ListPrivateRoomsWithUser(bot.Id)
	if err != nil {
		return fmt.Errorf("list private rooms: %w", err)
	}

	var changed bool
	for _, room := range rooms {
		activation, apply := next(room.Activation)
		if !apply {
			continue
		}

		if err := cs.db.SetRoomActivation(room.Id, activation); err != nil {
			return fmt.Errorf("set activation on room %q: %w", room.Id, err)
		}
		changed = true
	}

	if changed {
		cs.broadcast(NewRoomListChanged())
	}

	return nil
}
