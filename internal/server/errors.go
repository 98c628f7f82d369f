package server

import (
	"errors"
	"fmt"
)

const maxMessageLength = 5000

var (
	ErrEmptyMessage      = errors.New("message cannot be empty")
	ErrMessageTooLong    = fmt.Errorf("message exceeds %d characters", maxMessageLength)
	ErrRoomNotFound      = errors.New("room does not exist")
	ErrNotAMember        = errors.New("not a member of this room")
	ErrUserNotFound      = errors.New("user not found")
	ErrSelfChat          = errors.New("cannot start a chat with yourself")
	ErrCannotDeleteLobby = errors.New("the lobby cannot be deleted")
	ErrLobbyPinned       = errors.New("the lobby cannot be unpinned")
	ErrBotOnly           = errors.New("only bot accounts can perform this action")
)

// isUserError reports whether err is safe to echo back to the client
// verbatim. Anything else is logged and masked.
func isUserError(err error) bool {
	for _, known := range []error{
		ErrEmptyMessage,
		ErrMessageTooLong,
		ErrRoomNotFound,
		ErrNotAMember,
		ErrUserNotFound,
		ErrSelfChat,
		ErrCannotDeleteLobby,
		ErrLobbyPinned,
		ErrBotOnly,
	} {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}
