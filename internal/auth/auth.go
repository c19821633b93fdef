package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/vaultex/exchange-api/internal/types"
	"github.com/vaultex/exchange-api/pkg/response"
	"gorm.io/gorm"
)

var (
	ErrUnknownAddress  = errors.New("address not registered")
	ErrTokenGeneration = errors.New("failed to generate token")
)

// Claims represents the JWT claims structure. The wallet address doubles as
// the user identity across the whole API.
type Claims struct {
	jwt.RegisteredClaims
	Address string `json:"address"`
}

// TokenResponse represents the JWT token response
type TokenResponse struct {
	Token      string    `json:"jwt_token"`
	Expiration time.Time `json:"expiration"`
}

// Service handles user registration and token issuance. Ownership of the
// wallet address is not proven here; this is a demo platform and the address
// is taken at face value at registration time.
type Service struct {
	jwtSecret []byte
	db        *gorm.DB
}

func NewService(jwtSecret string, db *gorm.DB) *Service {
	return &Service{
		jwtSecret: []byte(jwtSecret),
		db:        db,
	}
}

// Register stores a new user keyed by wallet address.
func (s *Service) Register(address, name string) (*types.User, error) {
	if address == "" {
		return nil, fmt.Errorf("%w: address is required", types.ErrValidation)
	}

	user := &types.User{
		Address:   address,
		Name:      name,
		CreatedAt: time.Now(),
	}
	if err := s.db.Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("address already registered: %w", gorm.ErrDuplicatedKey)
		}
		return nil, fmt.Errorf("%w: register user: %v", types.ErrPersistence, err)
	}
	return user, nil
}

// GenerateToken issues a 24-hour JWT for a registered wallet address.
func (s *Service) GenerateToken(address string) (*TokenResponse, error) {
	var user types.User
	if err := s.db.Where("address = ?", address).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownAddress
		}
		return nil, fmt.Errorf("%w: lookup user: %v", types.ErrPersistence, err)
	}

	expiration := time.Now().Add(24 * time.Hour)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiration),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
		Address: user.Address,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, ErrTokenGeneration
	}

	return &TokenResponse{
		Token:      tokenString,
		Expiration: expiration,
	}, nil
}

// ValidateToken verifies signature and expiration and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// GinHandlers contains HTTP handlers for auth endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

type registerRequest struct {
	Address string `json:"address" binding:"required"`
	Name    string `json:"name"`
}

// RegisterHandler handles POST /auth/register.
func (h *GinHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		user, err := h.service.Register(req.Address, req.Name)
		response.Handle(c, user, err)
	}
}

type tokenRequest struct {
	Address string `json:"address" binding:"required"`
}

// GenerateTokenHandler handles POST /auth/token.
func (h *GinHandlers) GenerateTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		token, err := h.service.GenerateToken(req.Address)
		if err != nil {
			if errors.Is(err, ErrUnknownAddress) {
				response.Unauthorized(c, err.Error())
				return
			}
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, token)
	}
}
