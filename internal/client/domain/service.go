package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateClientRequest struct {
	OrgID snowflake.ID
	Name  string
	Email string
}

type GetClientRequest struct {
	OrgID snowflake.ID
	ID    string
}

type Service interface {
	Create(context.Context, CreateClientRequest) (Client, error)
	GetByID(context.Context, GetClientRequest) (Client, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_client_id")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrClientNotFound      = errors.New("client_not_found")
	ErrVersionConflict     = errors.New("client_version_conflict")
	ErrTrialAlreadyUsed    = errors.New("trial_already_used")
)
