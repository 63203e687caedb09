package service

import (
	"context"
	"fmt"
	"time"

	"docchat-be/internal/dto"
	"docchat-be/internal/entity"
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/repository/specification"
	"docchat-be/internal/repository/unitofwork"
	"docchat-be/pkg/events"
	"docchat-be/pkg/rag"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const accessTokenExpiry = 24 * time.Hour

var errInvalidCredentials = fmt.Errorf("%w: invalid credentials", rag.ErrInvalidInput)

type IAuthService interface {
	Register(ctx context.Context, req *dto.RegisterRequest) (*dto.RegisterResponse, error)
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.LoginResponse, error)
}

type authService struct {
	uowFactory     unitofwork.RepositoryFactory
	jwtSecret      []byte
	eventPublisher events.Publisher
	logger         logger.ILogger
}

func NewAuthService(uowFactory unitofwork.RepositoryFactory, jwtSecret string, eventPublisher events.Publisher, log logger.ILogger) IAuthService {
	if eventPublisher == nil {
		eventPublisher = events.NopPublisher{}
	}
	return &authService{
		uowFactory:     uowFactory,
		jwtSecret:      []byte(jwtSecret),
		eventPublisher: eventPublisher,
		logger:         log,
	}
}

func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.RegisterResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	existing, err := uow.UserRepository().FindOne(ctx, specification.ByUsername{Username: req.Username})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: username taken", rag.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &entity.User{
		Id:           uuid.New(),
		Username:     req.Username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := uow.UserRepository().Create(ctx, user); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeUserRegistered, user)

	return &dto.RegisterResponse{
		Status:   "User created",
		UserId:   user.Id,
		Username: user.Username,
	}, nil
}

func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.LoginResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	user, err := uow.UserRepository().FindOne(ctx, specification.ByUsername{Username: req.Username})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errInvalidCredentials
	}

	claims := jwt.MapClaims{
		"user_id":  user.Id.String(),
		"username": user.Username,
		"exp":      time.Now().Add(accessTokenExpiry).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeUserLoggedIn, user)

	return &dto.LoginResponse{
		UserId:   user.Id,
		Username: user.Username,
		Token:    signedToken,
	}, nil
}

// publish is best effort; auth never fails because the bus is down.
func (s *authService) publish(ctx context.Context, eventType string, user *entity.User) {
	event := events.BaseEvent{
		Type: eventType,
		Data: map[string]interface{}{
			"user_id":  user.Id.String(),
			"username": user.Username,
		},
		OccurredAt: time.Now(),
	}
	if err := s.eventPublisher.Publish(ctx, event); err != nil {
		s.logger.Warn("AUTH", "Failed to publish event", map[string]interface{}{
			"event": eventType,
			"error": err.Error(),
		})
	}
}
