package database

import (
	"database/sql"
	"time"
)

func now() time.Time {
	return time.Now().UTC()
}

func (db *SQLRepository) CreateAccount(params CreateAccountParams) (User, error) {
	ts := now()
	row := db.conn.QueryRow(
		db.rebind("INSERT INTO users (username, password_hash, display_name, is_bot, is_admin, created_at, last_seen) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id"),
		params.Username,
		params.PasswordHash,
		params.DisplayName,
		params.IsBot,
		params.IsAdmin,
		ts,
		ts,
	)

	u := User{
		Username:     params.Username,
		PasswordHash: params.PasswordHash,
		DisplayName:  params.DisplayName,
		IsBot:        params.IsBot,
		IsAdmin:      params.IsAdmin,
		CreatedAt:    ts,
		LastSeen:     ts,
	}
	err := row.Scan(&u.Id)

	return u, err
}

func (db *SQLRepository) GetAccountById(userId int) (User, error) {
	row := db.conn.QueryRow(
		db.rebind("SELECT id, username, password_hash, display_name, is_bot, is_admin, is_banned, created_at, last_seen "+
			"FROM users WHERE id = ? LIMIT 1"),
		userId,
	)

	return scanUser(row)
}

func (db *SQLRepository) GetAccountByUsername(username string) (User, error) {
	row := db.conn.QueryRow(
		db.rebind("SELECT id, username, password_hash, display_name, is_bot, is_admin, is_banned, created_at, last_seen "+
			"FROM users WHERE username = ? LIMIT 1"),
		username,
	)

	return scanUser(row)
}

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.Id,
		&u.Username,
		&u.PasswordHash,
		&u.DisplayName,
		&u.IsBot,
		&u.IsAdmin,
		&u.IsBanned,
		&u.CreatedAt,
		&u.LastSeen,
	)

	return u, err
}

func (db *SQLRepository) UpdatePassword(userId int, passwordHash string) error {
	_, err := db.conn.Exec(
		db.rebind("UPDATE users SET password_hash = ? WHERE id = ?"),
		passwordHash, userId,
	)
	return err
}

func (db *SQLRepository) UpdateLastSeen(userId int) error {
	_, err := db.conn.Exec(
		db.rebind("UPDATE users SET last_seen = ? WHERE id = ?"),
		now(), userId,
	)
	return err
}

func (db *SQLRepository) SetBanned(userId int, banned bool) error {
	_, err := db.conn.Exec(
		db.rebind("UPDATE users SET is_banned = ? WHERE id = ?"),
		banned, userId,
	)
	return err
}

const selectAccounts = "SELECT id, username, display_name, is_bot, is_admin, is_banned, last_seen FROM users"

func (db *SQLRepository) ListAccounts() ([]User, error) {
	rows, err := db.conn.Query(selectAccounts + " ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAccounts(rows)
}

func (db *SQLRepository) ListOnlineAccounts(cutoff time.Time) ([]User, error) {
	rows, err := db.conn.Query(
		db.rebind(selectAccounts+" WHERE last_seen > ? ORDER BY id"),
		cutoff.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAccounts(rows)
}

func collectAccounts(rows *sql.Rows) ([]User, error) {
	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Id, &u.Username, &u.DisplayName, &u.IsBot, &u.IsAdmin, &u.IsBanned, &u.LastSeen); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (db *SQLRepository) CountHumanAccounts() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM users WHERE NOT is_bot").Scan(&count)
	return count, err
}

func (db *SQLRepository) CreateSession(token string, userId int, expiresAt time.Time) error {
	_, err := db.conn.Exec(
		db.rebind("INSERT INTO sessions (token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)"),
		token, userId, expiresAt.UTC(), now(),
	)
	return err
}

func (db *SQLRepository) GetSession(token string) (Session, error) {
	row := db.conn.QueryRow(
		db.rebind("SELECT s.token, s.user_id, s.expires_at, s.created_at, "+
			"u.id, u.username, u.display_name, u.is_bot, u.is_admin, u.is_banned, u.last_seen "+
			"FROM sessions s JOIN users u ON s.user_id = u.id "+
			"WHERE s.token = ? LIMIT 1"),
		token,
	)

	var s Session
	err := row.Scan(
		&s.Token,
		&s.UserId,
		&s.ExpiresAt,
		&s.CreatedAt,
		&s.User.Id,
		&s.User.Username,
		&s.User.DisplayName,
		&s.User.IsBot,
		&s.User.IsAdmin,
		&s.User.IsBanned,
		&s.User.LastSeen,
	)

	return s, err
}

func (db *SQLRepository) DeleteSession(token string) error {
	_, err := db.conn.Exec(db.rebind("DELETE FROM sessions WHERE token = ?"), token)
	return err
}

func (db *SQLRepository) DeleteSessionsForAccount(userId int) error {
	_, err := db.conn.Exec(db.rebind("DELETE FROM sessions WHERE user_id = ?"), userId)
	return err
}

func (db *SQLRepository) DeleteExpiredSessions() (int64, error) {
	res, err := db.conn.Exec(db.rebind("DELETE FROM sessions WHERE expires_at < ?"), now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (db *SQLRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	ts := now()
	room := Room{
		Id:        params.Id,
		Name:      params.Name,
		Type:      params.Type,
		UserA:     params.UserA,
		UserB:     params.UserB,
		CreatedBy: params.CreatedBy,
		CreatedAt: ts,
	}

	_, err := db.conn.Exec(
		db.rebind("INSERT INTO rooms (id, name, type, user_a, user_b, created_by, created_at) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?)"),
		params.Id,
		params.Name,
		params.Type,
		nullInt(params.UserA),
		nullInt(params.UserB),
		nullInt(params.CreatedBy),
		ts,
	)

	return room, err
}

func (db *SQLRepository) GetRoom(roomId string) (Room, error) {
	row := db.conn.QueryRow(
		db.rebind("SELECT id, name, type, user_a, user_b, is_active, created_by, created_at "+
			"FROM rooms WHERE id = ? LIMIT 1"),
		roomId,
	)

	var (
		room         Room
		userA, userB sql.NullInt64
		createdBy    sql.NullInt64
	)
	err := row.Scan(&room.Id, &room.Name, &room.Type, &userA, &userB, &room.Activation, &createdBy, &room.CreatedAt)
	if err != nil {
		return Room{}, err
	}

	room.UserA = int(userA.Int64)
	room.UserB = int(userB.Int64)
	room.CreatedBy = int(createdBy.Int64)

	return room, nil
}

// DeleteRoom removes a room and everything referencing it.
func (db *SQLRepository) DeleteRoom(roomId string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		"DELETE FROM unread_counts WHERE room_id = ?",
		"DELETE FROM messages WHERE room_id = ?",
		"DELETE FROM room_members WHERE room_id = ?",
		"DELETE FROM rooms WHERE id = ?",
	} {
		if _, err := tx.Exec(db.rebind(q), roomId); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (db *SQLRepository) SetRoomActivation(roomId string, activation RoomActivation) error {
	_, err := db.conn.Exec(
		db.rebind("UPDATE rooms SET is_active = ? WHERE id = ?"),
		activation, roomId,
	)
	return err
}

func (db *SQLRepository) ListPrivateRoomsWithUser(userId int) ([]Room, error) {
	rows, err := db.conn.Query(
		db.rebind("SELECT id, name, type, user_a, user_b, is_active, created_by, created_at "+
			"FROM rooms WHERE type = 'private' AND (user_a = ? OR user_b = ?)"),
		userId, userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var (
			room         Room
			userA, userB sql.NullInt64
			createdBy    sql.NullInt64
		)
		if err := rows.Scan(&room.Id, &room.Name, &room.Type, &userA, &userB, &room.Activation, &createdBy, &room.CreatedAt); err != nil {
			return nil, err
		}
		room.UserA = int(userA.Int64)
		room.UserB = int(userB.Int64)
		room.CreatedBy = int(createdBy.Int64)
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

// AddMember is idempotent: re-adding an existing membership keeps the
// original pinned flag and join time.
func (db *SQLRepository) AddMember(roomId string, userId int) error {
	_, err := db.conn.Exec(
		db.rebind("INSERT INTO room_members (room_id, user_id, pinned, joined_at) VALUES (?, ?, ?, ?) "+
			"ON CONFLICT (room_id, user_id) DO NOTHING"),
		roomId, userId, false, now(),
	)
	return err
}

func (db *SQLRepository) RemoveMember(roomId string, userId int) error {
	_, err := db.conn.Exec(
		db.rebind("DELETE FROM room_members WHERE room_id = ? AND user_id = ?"),
		roomId, userId,
	)
	return err
}

func (db *SQLRepository) IsMember(roomId string, userId int) (bool, error) {
	var one int
	err := db.conn.QueryRow(
		db.rebind("SELECT 1 FROM room_members WHERE room_id = ? AND user_id = ? LIMIT 1"),
		roomId, userId,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}

	return err == nil, err
}

func (db *SQLRepository) GetMembers(roomId string) ([]User, error) {
	rows, err := db.conn.Query(
		db.rebind("SELECT u.id, u.username, u.display_name, u.is_bot, u.is_admin, u.is_banned, u.last_seen "+
			"FROM users u JOIN room_members rm ON u.id = rm.user_id "+
			"WHERE rm.room_id = ? ORDER BY u.id"),
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAccounts(rows)
}

func (db *SQLRepository) CountMembers(roomId string) (int, error) {
	var count int
	err := db.conn.QueryRow(
		db.rebind("SELECT COUNT(*) FROM room_members WHERE room_id = ?"),
		roomId,
	).Scan(&count)
	return count, err
}

func (db *SQLRepository) SetPinned(roomId string, userId int, pinned bool) error {
	_, err := db.conn.Exec(
		db.rebind("UPDATE room_members SET pinned = ? WHERE room_id = ? AND user_id = ?"),
		pinned, roomId, userId,
	)
	return err
}

// roomListQuery orders a user's rooms: lobby first, then pinned, then
// most recently joined. Rooms hidden by their bot are excluded.
const roomListQuery = "SELECT r.id, r.name, r.type, r.user_a, r.user_b, r.is_active, r.created_at, rm.pinned, rm.joined_at " +
	"FROM rooms r JOIN room_members rm ON r.id = rm.room_id " +
	"WHERE rm.user_id = ? AND (r.is_active IS NULL OR r.is_active <> -1)"

const roomListOrder = " ORDER BY CASE WHEN r.id = 'lobby' THEN 0 ELSE 1 END, rm.pinned DESC, rm.joined_at DESC"

func (db *SQLRepository) ListRooms(userId int) ([]RoomListing, error) {
	rows, err := db.conn.Query(db.rebind(roomListQuery+roomListOrder), userId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []RoomListing
	for rows.Next() {
		listing, err := scanRoomListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, listing)
	}

	return listings, rows.Err()
}

func (db *SQLRepository) GetRoomListing(userId int, roomId string) (RoomListing, error) {
	rows, err := db.conn.Query(db.rebind(roomListQuery+" AND r.id = ? LIMIT 1"), userId, roomId)
	if err != nil {
		return RoomListing{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return RoomListing{}, err
		}
		return RoomListing{}, sql.ErrNoRows
	}

	return scanRoomListing(rows)
}

func scanRoomListing(rows *sql.Rows) (RoomListing, error) {
	var (
		listing      RoomListing
		userA, userB sql.NullInt64
	)
	err := rows.Scan(
		&listing.Id,
		&listing.Name,
		&listing.Type,
		&userA,
		&userB,
		&listing.Activation,
		&listing.CreatedAt,
		&listing.Pinned,
		&listing.JoinedAt,
	)
	listing.UserA = int(userA.Int64)
	listing.UserB = int(userB.Int64)

	return listing, err
}

func (db *SQLRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	ts := now()
	row := db.conn.QueryRow(
		db.rebind("INSERT INTO messages (room_id, user_id, text, attachment_url, attachment_type, attachment_name, attachment_size, created_at) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id"),
		params.RoomId,
		params.UserId,
		params.Text,
		nullString(params.AttachmentUrl),
		nullString(params.AttachmentType),
		nullString(params.AttachmentName),
		nullInt64(params.AttachmentSize),
		ts,
	)

	msg := Message{
		RoomId:         params.RoomId,
		UserId:         params.UserId,
		Text:           params.Text,
		AttachmentUrl:  params.AttachmentUrl,
		AttachmentType: params.AttachmentType,
		AttachmentName: params.AttachmentName,
		AttachmentSize: params.AttachmentSize,
		CreatedAt:      ts,
	}
	err := row.Scan(&msg.Id)

	return msg, err
}

const selectMessages = "SELECT m.id, m.room_id, m.user_id, u.username, u.display_name, u.is_bot, m.text, " +
	"m.attachment_url, m.attachment_type, m.attachment_name, m.attachment_size, m.created_at " +
	"FROM messages m JOIN users u ON m.user_id = u.id"

// GetMessages returns the latest messages in a room, newest first. A
// positive before restricts results to messages with a smaller id.
func (db *SQLRepository) GetMessages(roomId string, before int64, limit int) ([]Message, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if before > 0 {
		rows, err = db.conn.Query(
			db.rebind(selectMessages+" WHERE m.room_id = ? AND m.id < ? ORDER BY m.id DESC LIMIT ?"),
			roomId, before, limit,
		)
	} else {
		rows, err = db.conn.Query(
			db.rebind(selectMessages+" WHERE m.room_id = ? ORDER BY m.id DESC LIMIT ?"),
			roomId, limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func (db *SQLRepository) GetLastMessage(roomId string) (*Message, error) {
	rows, err := db.conn.Query(
		db.rebind(selectMessages+" WHERE m.room_id = ? ORDER BY m.id DESC LIMIT 1"),
		roomId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs, err := collectMessages(rows)
	if err != nil || len(msgs) == 0 {
		return nil, err
	}

	return &msgs[0], nil
}

// SearchMessages matches message text against a substring pattern,
// restricted to rooms the user is a member of.
func (db *SQLRepository) SearchMessages(userId int, query, roomId string, limit int) ([]Message, error) {
	var (
		rows *sql.Rows
		err  error
	)
	pattern := "%" + query + "%"
	if roomId != "" {
		rows, err = db.conn.Query(
			db.rebind(selectMessages+` WHERE m.text LIKE ? AND m.room_id = ?
				AND m.room_id IN (SELECT room_id FROM room_members WHERE user_id = ?)
				ORDER BY m.id DESC LIMIT ?`),
			pattern, roomId, userId, limit,
		)
	} else {
		rows, err = db.conn.Query(
			db.rebind(selectMessages+` WHERE m.text LIKE ?
				AND m.room_id IN (SELECT room_id FROM room_members WHERE user_id = ?)
				ORDER BY m.id DESC LIMIT ?`),
			pattern, userId, limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectMessages(rows)
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	var msgs []Message
	for rows.Next() {
		var (
			m                  Message
			aUrl, aType, aName sql.NullString
			aSize              sql.NullInt64
		)
		err := rows.Scan(
			&m.Id,
			&m.RoomId,
			&m.UserId,
			&m.Username,
			&m.DisplayName,
			&m.IsBot,
			&m.Text,
			&aUrl,
			&aType,
			&aName,
			&aSize,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		m.AttachmentUrl = aUrl.String
		m.AttachmentType = aType.String
		m.AttachmentName = aName.String
		m.AttachmentSize = aSize.Int64
		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

// IncrementUnread applies a single atomic upsert so that concurrent
// senders to the same room cannot lose increments. last_message_id only
// moves forward, keeping it consistent under out-of-order application.
func (db *SQLRepository) IncrementUnread(userId int, roomId string, messageId int64) error {
	_, err := db.conn.Exec(
		db.rebind("INSERT INTO unread_counts (user_id, room_id, count, last_message_id, updated_at) "+
			"VALUES (?, ?, 1, ?, ?) "+
			"ON CONFLICT (user_id, room_id) DO UPDATE SET "+
			"count = unread_counts.count + 1, "+
			"last_message_id = CASE WHEN excluded.last_message_id > unread_counts.last_message_id "+
			"THEN excluded.last_message_id ELSE unread_counts.last_message_id END, "+
			"updated_at = excluded.updated_at"),
		userId, roomId, messageId, now(),
	)
	return err
}

func (db *SQLRepository) ClearUnread(userId int, roomId string) error {
	_, err := db.conn.Exec(
		db.rebind("DELETE FROM unread_counts WHERE user_id = ? AND room_id = ?"),
		userId, roomId,
	)
	return err
}

func (db *SQLRepository) GetUnread(userId int, roomId string) (UnreadCount, error) {
	row := db.conn.QueryRow(
		db.rebind("SELECT user_id, room_id, count, last_message_id, updated_at "+
			"FROM unread_counts WHERE user_id = ? AND room_id = ? LIMIT 1"),
		userId, roomId,
	)

	var uc UnreadCount
	err := row.Scan(&uc.UserId, &uc.RoomId, &uc.Count, &uc.LastMessageId, &uc.UpdatedAt)

	return uc, err
}

func (db *SQLRepository) ListUnread(userId int) ([]UnreadCount, error) {
	rows, err := db.conn.Query(
		db.rebind("SELECT user_id, room_id, count, last_message_id, updated_at "+
			"FROM unread_counts WHERE user_id = ? AND count > 0"),
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []UnreadCount
	for rows.Next() {
		var uc UnreadCount
		if err := rows.Scan(&uc.UserId, &uc.RoomId, &uc.Count, &uc.LastMessageId, &uc.UpdatedAt); err != nil {
			return nil, err
		}
		counts = append(counts, uc)
	}

	return counts, rows.Err()
}

// TotalUnread is computed on demand rather than cached so the total can
// never drift from the per-room rows.
func (db *SQLRepository) TotalUnread(userId int) (int, error) {
	var total int
	err := db.conn.QueryRow(
		db.rebind("SELECT COALESCE(SUM(count), 0) FROM unread_counts WHERE user_id = ?"),
		userId,
	).Scan(&total)
	return total, err
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
