package server

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const (
	headerOrgID     = "X-Org-ID"
	headerClientID  = "X-Client-ID"
	headerActorRole = "X-Actor-Role"

	roleAdmin = "admin"

	ctxOrgID    = "identity.org_id"
	ctxClientID = "identity.client_id"
	ctxRole     = "identity.role"
)

// IdentityRequired pulls the caller identity the edge proxy injected after
// authenticating the request. Requests without an organization are rejected
// before any handler runs.
func (s *Server) IdentityRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, err := snowflake.ParseString(c.GetHeader(headerOrgID))
		if err != nil || orgID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(ctxOrgID, orgID)
		c.Set(ctxRole, c.GetHeader(headerActorRole))

		if raw := c.GetHeader(headerClientID); raw != "" {
			clientID, err := snowflake.ParseString(raw)
			if err != nil {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			c.Set(ctxClientID, clientID)
		}

		c.Next()
	}
}

func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isAdmin(c) {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

func orgID(c *gin.Context) snowflake.ID {
	if v, ok := c.Get(ctxOrgID); ok {
		if id, ok := v.(snowflake.ID); ok {
			return id
		}
	}
	return 0
}

func clientID(c *gin.Context) (snowflake.ID, bool) {
	if v, ok := c.Get(ctxClientID); ok {
		if id, ok := v.(snowflake.ID); ok {
			return id, true
		}
	}
	return 0, false
}

func isAdmin(c *gin.Context) bool {
	if v, ok := c.Get(ctxRole); ok {
		if role, ok := v.(string); ok {
			return role == roleAdmin
		}
	}
	return false
}
