package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"

	"github.com/lanchat/lanchat/internal/database"
	"github.com/lanchat/lanchat/internal/server"
	"github.com/lanchat/lanchat/internal/types"
)

type LoginRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
	IsBot       bool   `json:"is_bot,omitempty"`
}

type LoginResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type BanRequest struct {
	UserId int  `json:"user_id"`
	Banned bool `json:"banned"`
}

// UnreadEntry is one row of the unread digest used by external pagers:
// enough to render "3 unread from alice" without a WebSocket session.
type UnreadEntry struct {
	RoomId   string `json:"room_id"`
	RoomName string `json:"room_name"`
	Count    int    `json:"count"`
}

type UnreadDigest struct {
	Total int           `json:"total"`
	Rooms []UnreadEntry `json:"rooms"`
}

func (s *LanChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

// login authenticates a user, registering the account on first use. The
// first human account becomes the administrator and every new account
// joins the lobby.
func (s *LanChatApp) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Username == "" || req.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetAccountByUsername(req.Username)
	if errors.Is(err, sql.ErrNoRows) {
		user, err = s.registerAccount(req)
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	} else if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	} else if !verifyPassword(user.PasswordHash, req.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if user.IsBanned {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	token, err := s.createSession(user)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, LoginResponse{
		Token: token,
		User:  toApiUser(user),
	})
}

func (s *LanChatApp) registerAccount(req LoginRequest) (database.User, error) {
	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		return database.User{}, err
	}

	isAdmin := false
	if !req.IsBot {
		count, err := s.db.CountHumanAccounts()
		if err != nil {
			return database.User{}, err
		}
		isAdmin = count == 0
	}

	user, err := s.db.CreateAccount(database.CreateAccountParams{
		Username:     req.Username,
		PasswordHash: pwdHash,
		DisplayName:  req.DisplayName,
		IsBot:        req.IsBot,
		IsAdmin:      isAdmin,
	})
	if err != nil {
		return database.User{}, err
	}

	if err := s.db.AddMember(database.LobbyRoomId, user.Id); err != nil {
		return database.User{}, err
	}

	s.log.Printf("registered account %q (admin=%t, bot=%t)", user.Username, user.IsAdmin, user.IsBot)
	return user, nil
}

func (s *LanChatApp) me(w http.ResponseWriter, r *http.Request) {
	user, ok := RequestUser(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, toApiUser(user))
}

func (s *LanChatApp) changePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := RequestUser(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewPassword == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !verifyPassword(user.PasswordHash, req.OldPassword) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.NewPassword)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.UpdatePassword(user.Id, pwdHash); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *LanChatApp) logout(w http.ResponseWriter, r *http.Request) {
	token, _ := bearerToken(r)
	if err := s.db.DeleteSession(token); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *LanChatApp) getRooms(w http.ResponseWriter, r *http.Request) {
	user, ok := RequestUser(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rooms, err := s.cs.VisibleRooms(user.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *LanChatApp) createGroupRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := RequestUser(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	id, err := shortid.Generate()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.CreateRoom(database.CreateRoomParams{
		Id:        id,
		Name:      req.Name,
		Type:      database.RoomTypeGroup,
		CreatedBy: user.Id,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.AddMember(room.Id, user.Id); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, types.Room{
		Id:        room.Id,
		Name:      room.Name,
		Type:      room.Type,
		CreatedAt: room.CreatedAt,
	})
}

func (s *LanChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := RequestUser(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roomId := r.URL.Query().Get("room_id")
	if roomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	before, _ := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	messages, err := s.cs.LoadMessages(user.Id, roomId, before, limit)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, server.ErrNotAMember) {
			errResp = NewForbiddenError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *LanChatApp) getUnread(w http.ResponseWriter, r *http.Request) {
	user, ok := RequestUser(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	counts, err := s.db.ListUnread(user.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	digest := UnreadDigest{Rooms: []UnreadEntry{}}
	for _, uc := range counts {
		if uc.Count == 0 {
			continue
		}

		entry := UnreadEntry{RoomId: uc.RoomId, Count: uc.Count}
		if room, err := s.db.GetRoom(uc.RoomId); err == nil {
			entry.RoomName = room.Name
		}

		digest.Total += uc.Count
		digest.Rooms = append(digest.Rooms, entry)
	}

	s.writeJson(w, http.StatusOK, digest)
}

func (s *LanChatApp) getOnlineUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.cs.OnlineUsers()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, users)
}

func (s *LanChatApp) banAccount(w http.ResponseWriter, r *http.Request) {
	admin, ok := RequestUser(r.Context())
	if !ok || !admin.IsAdmin {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req BanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserId == 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.UserId == admin.Id {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.db.GetAccountById(req.UserId); err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.SetBanned(req.UserId, req.Banned); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Banned {
		if err := s.db.DeleteSessionsForAccount(req.UserId); err != nil {
			s.log.Printf("failed to revoke sessions for user %d: %v", req.UserId, err)
		}
		s.cs.ForceLogout(req.UserId, "account banned")
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *LanChatApp) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.writeJson(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

// serveWs upgrades the connection and hands it to the chat server.
// Authentication happens in-band via the login event, inside the
// connection's auth window.
func (s *LanChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(conn, s.cs, s.log)
	s.cs.RegisterChan <- client

	go client.Write()
	go client.Read()
}

func toApiUser(u database.User) types.User {
	return types.User{
		Id:          u.Id,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		IsBot:       u.IsBot,
		IsAdmin:     u.IsAdmin,
		LastSeen:    u.LastSeen,
	}
}
