package middleware

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderActorID carries the authenticated caller's user id. It is set by the
// upstream auth proxy; this service trusts it and resolves the identity
// through the user directory.
const HeaderActorID = "X-Actor-ID"

const ctxKeyActorID = "actorID"

var actorPattern = regexp.MustCompile(`^[A-Za-z0-9._@:\-]{1,64}$`)

// ActorID validates X-Actor-ID and stores it in the Gin context. A missing
// header is passed through: write handlers reject anonymous callers,
// and read endpoints stay open. A malformed header is a 400.
func ActorID() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderActorID))
		if raw == "" {
			c.Next()
			return
		}
		if !actorPattern.MatchString(raw) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_request",
				"message":    "invalid " + HeaderActorID + " header",
			})
			return
		}
		c.Set(ctxKeyActorID, raw)
		c.Next()
	}
}

// ActorFrom returns the actor id stored by ActorID, or "".
func ActorFrom(c *gin.Context) string {
	v, ok := c.Get(ctxKeyActorID)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
