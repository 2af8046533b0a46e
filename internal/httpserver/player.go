// internal/httpserver/player.go
//
// Anonymous player identity.
// Every session route runs as a player. The identity is an HS256 JWT whose
// subject is a uuid; it arrives as "Authorization: Bearer <token>" or as the
// storytopia_player cookie. A request without a valid token gets a fresh
// identity: the cookie is set and the token is echoed in X-Player-Token for
// clients that cannot use cookies.

package httpserver

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

const (
	playerCookieName  = "storytopia_player"
	playerTokenHeader = "X-Player-Token"
	playerIssuer      = "storytopia"
)

// ctxPlayerKey is the context key type for the player id.
type ctxPlayerKey struct{}

// playerFrom returns the player id placed in ctx by withPlayer.
func playerFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxPlayerKey{}).(string)
	return id
}

func (s *Server) secret() []byte {
	if s.cfg.JWTSecret != "" {
		return []byte(s.cfg.JWTSecret)
	}
	return []byte("dev_secret_change_me")
}

func (s *Server) tokenTTL() time.Duration {
	days := s.cfg.PlayerTokenDays
	if days <= 0 {
		days = 14
	}
	return time.Duration(days) * 24 * time.Hour
}

// signPlayer issues a token for playerID.
func (s *Server) signPlayer(playerID string) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.tokenTTL())
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   playerID,
		Issuer:    playerIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	ss, err := t.SignedString(s.secret())
	return ss, exp, err
}

// parsePlayer validates a token and returns its subject.
func (s *Server) parsePlayer(tok string) (string, bool) {
	claims := &jwt.RegisteredClaims{}
	t, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(playerIssuer))
	if err != nil || !t.Valid {
		return "", false
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", false
	}
	return claims.Subject, true
}

// withPlayer resolves or issues the player identity. It never rejects.
func (s *Server) withPlayer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := "", false
		if tok := bearerOrCookie(r); tok != "" {
			id, ok = s.parsePlayer(tok)
		}
		if !ok {
			id = uuid.NewString()
			tok, exp, err := s.signPlayer(id)
			if err != nil {
				hlog.FromRequest(r).Error().Err(err).Msg("sign player token")
				writeErr(w, http.StatusInternalServerError, "sign_failed", "")
				return
			}
			setPlayerCookie(w, tok, exp)
			w.Header().Set(playerTokenHeader, tok)
		}
		hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("player", id)
		})
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxPlayerKey{}, id)))
	})
}

// setPlayerCookie writes the player token cookie with appropriate security attributes.
func setPlayerCookie(w http.ResponseWriter, token string, exp time.Time) {
	secure := os.Getenv("NODE_ENV") == "production"
	sameSite := http.SameSiteLaxMode
	if secure {
		sameSite = http.SameSiteNoneMode // required for third-party contexts when Secure
	}
	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
		Expires:  exp,
	})
}

// bearerOrCookie extracts a bearer token from Authorization header or player cookie.
func bearerOrCookie(r *http.Request) string {
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(playerCookieName); err == nil {
		return c.Value
	}
	return ""
}
