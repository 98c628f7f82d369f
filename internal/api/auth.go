package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"

	"github.com/lanchat/lanchat/internal/database"
	"github.com/lanchat/lanchat/internal/types"
)

const (
	userIdClaim   = "user-id"
	usernameClaim = "username"
	expClaim      = "exp"

	// Sessions last this long; the JWT and the session row expire
	// together.
	sessionTTL = 30 * 24 * time.Hour
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrSessionExpired = errors.New("session expired")
	ErrAccountBanned  = errors.New("account is banned")
)

type contextKey string

const userKey contextKey = "user"

func WithUser(ctx context.Context, user database.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func RequestUser(ctx context.Context) (database.User, bool) {
	user, ok := ctx.Value(userKey).(database.User)
	return user, ok
}

func hashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func verifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}

// createSession mints a signed token for the user and records the
// matching session row so the token can be revoked.
func (s *LanChatApp) createSession(user database.User) (string, error) {
	expiresAt := time.Now().Add(sessionTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim:   user.Id,
		usernameClaim: user.Username,
		expClaim:      expiresAt.Unix(),
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	if err := s.db.CreateSession(signed, user.Id, expiresAt); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	return signed, nil
}

// SessionVerifier resolves presented tokens against both the token
// signature and the session table, so revoking the session invalidates
// an otherwise valid token.
type SessionVerifier struct {
	db         database.Repository
	signingKey []byte
}

func NewSessionVerifier(db database.Repository, signingKey []byte) *SessionVerifier {
	return &SessionVerifier{db: db, signingKey: signingKey}
}

func (v *SessionVerifier) Verify(tokenString string) (types.User, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil || !token.Valid {
		return types.User{}, ErrInvalidToken
	}

	sess, err := v.db.GetSession(tokenString)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrInvalidToken
		}
		return types.User{}, fmt.Errorf("get session: %w", err)
	}

	if time.Now().After(sess.ExpiresAt) {
		if err := v.db.DeleteSession(tokenString); err != nil {
			return types.User{}, fmt.Errorf("delete expired session: %w", err)
		}
		return types.User{}, ErrSessionExpired
	}

	if sess.User.IsBanned {
		return types.User{}, ErrAccountBanned
	}

	return types.User{
		Id:          sess.User.Id,
		Username:    sess.User.Username,
		DisplayName: sess.User.DisplayName,
		IsBot:       sess.User.IsBot,
		IsAdmin:     sess.User.IsAdmin,
		LastSeen:    sess.User.LastSeen,
	}, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

func (s *LanChatApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		user, err := s.verifier.Verify(token)
		if err != nil {
			s.log.Printf("token verification failed: %v", err)
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		dbUser, err := s.db.GetAccountById(user.Id)
		if err != nil {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		ctx := WithUser(r.Context(), dbUser)
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}
