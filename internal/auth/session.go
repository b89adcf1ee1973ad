package auth

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"classattend/internal/model"
)

// SessionName is the dashboard cookie.
const SessionName = "classattend_session"

const (
	sessionUserID = "user_id"
	sessionRole   = "role"
)

// Sessions returns the cookie-backed session middleware.
func Sessions(secret string, maxAge time.Duration, secure bool) gin.HandlerFunc {
	st := cookie.NewStore([]byte(secret))
	st.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sessions.Sessions(SessionName, st)
}

// StartSession records the signed-in user in the cookie.
func StartSession(c *gin.Context, userID string, role model.Role) error {
	s := sessions.Default(c)
	s.Set(sessionUserID, userID)
	s.Set(sessionRole, string(role))
	return s.Save()
}

// EndSession clears the cookie.
func EndSession(c *gin.Context) error {
	s := sessions.Default(c)
	s.Clear()
	s.Options(sessions.Options{Path: "/", MaxAge: -1})
	return s.Save()
}

// SessionPrincipal reads the signed-in user from the cookie.
func SessionPrincipal(c *gin.Context) (Principal, bool) {
	s := sessions.Default(c)
	id, _ := s.Get(sessionUserID).(string)
	raw, _ := s.Get(sessionRole).(string)
	role, ok := model.ParseRole(raw)
	if id == "" || !ok {
		return Principal{}, false
	}
	return Principal{UserID: id, Role: role}, true
}
