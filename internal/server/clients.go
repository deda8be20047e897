package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	clientdomain "github.com/stafflane/stafflane/internal/client/domain"
)

type createClientRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *Server) CreateClient(c *gin.Context) {
	var req createClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	created, err := s.clientSvc.Create(c.Request.Context(), clientdomain.CreateClientRequest{
		OrgID: orgID(c),
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.audit(c, "client.create", "client", created.ID.String())

	c.JSON(http.StatusCreated, created)
}

func (s *Server) GetClient(c *gin.Context) {
	found, err := s.clientSvc.GetByID(c.Request.Context(), clientdomain.GetClientRequest{
		OrgID: orgID(c),
		ID:    c.Param("client_id"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if !isAdmin(c) {
		if id, ok := clientID(c); !ok || id != found.ID {
			AbortWithError(c, ErrForbidden)
			return
		}
	}

	c.JSON(http.StatusOK, found)
}
