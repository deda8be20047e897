package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stafflane/stafflane/internal/client/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("client.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateClientRequest) (domain.Client, error) {
	if req.OrgID == 0 {
		return domain.Client{}, domain.ErrInvalidOrganization
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Client{}, domain.ErrInvalidName
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.Client{}, domain.ErrInvalidEmail
	}

	now := time.Now().UTC()
	item := domain.Client{
		ID:            s.genID.Generate(),
		OrgID:         req.OrgID,
		Name:          name,
		Email:         email,
		TrialEligible: true,
		Metadata:      datatypes.JSONMap{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, s.db, &item); err != nil {
		return domain.Client{}, err
	}
	return item, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetClientRequest) (domain.Client, error) {
	if req.OrgID == 0 {
		return domain.Client{}, domain.ErrInvalidOrganization
	}
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil {
		return domain.Client{}, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, req.OrgID, id)
	if err != nil {
		return domain.Client{}, err
	}
	if item == nil {
		return domain.Client{}, domain.ErrClientNotFound
	}
	return *item, nil
}
