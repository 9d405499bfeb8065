package auth

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"backend-pilanitrails/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour

	roleUser  = "user"
	roleAdmin = "admin"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrRefreshInvalid     = errors.New("refresh token invalid")
)

var (
	signTokenFn       = (*Service).signToken
	hashPasswordFn    = bcrypt.GenerateFromPassword
	parseWithClaimsFn = jwt.ParseWithClaims
)

type Service struct {
	secret []byte
	store  store.Store
}

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

func NewService(secret string, s store.Store) *Service {
	return &Service{
		secret: []byte(secret),
		store:  s,
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (Account, TokenResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return Account{}, TokenResponse{}, errors.New("email and password required")
	}
	if _, err := s.findByEmail(ctx, req.Email); err == nil {
		return Account{}, TokenResponse{}, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return Account{}, TokenResponse{}, err
	}

	account, err := s.createAccount(ctx, req.Email, req.DisplayName, req.Password, roleUser)
	if err != nil {
		return Account{}, TokenResponse{}, err
	}

	tokens, err := s.GenerateTokens(ctx, account.ID)
	if err != nil {
		return Account{}, TokenResponse{}, err
	}
	return account, tokens, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (Account, TokenResponse, error) {
	account, err := s.findByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Account{}, TokenResponse{}, ErrInvalidCredentials
		}
		return Account{}, TokenResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		return Account{}, TokenResponse{}, ErrInvalidCredentials
	}

	tokens, err := s.GenerateTokens(ctx, account.ID)
	if err != nil {
		return Account{}, TokenResponse{}, err
	}
	return account, tokens, nil
}

// SeedAdmin makes sure an admin account exists for email. An existing
// account is promoted; its password is left alone.
func (s *Service) SeedAdmin(ctx context.Context, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		log.Println("skip seeding admin: missing ADMIN_EMAIL/ADMIN_PASSWORD")
		return nil
	}

	existing, err := s.findByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role == roleAdmin {
			log.Println("admin already exists:", email)
			return nil
		}
		log.Println("promoting existing account to admin:", email)
		return s.store.Update(ctx, store.Users, existing.ID, map[string]any{"role": roleAdmin})
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	_, err = s.createAccount(ctx, email, "Admin", password, roleAdmin)
	return err
}

func (s *Service) GenerateTokens(ctx context.Context, userID string) (TokenResponse, error) {
	access, err := signTokenFn(s, userID, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	refresh, err := signTokenFn(s, userID, refreshTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}

	if err := s.saveRefreshToken(ctx, refresh, userID, refreshTokenTTL); err != nil {
		return TokenResponse{}, err
	}

	return TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
	}, nil
}

// ValidateRefreshToken checks the token and revokes it so each refresh
// token is spent once.
func (s *Service) ValidateRefreshToken(ctx context.Context, token string) (string, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return "", err
	}

	docs, err := s.store.Query(ctx, store.RefreshTokens, store.Query{
		Where: []store.Filter{store.Where("token", token), store.Where("revoked", false)},
		Limit: 1,
	})
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "", ErrRefreshInvalid
	}
	doc := docs[0]
	userID, _ := doc.Fields["userId"].(string)
	expiresAt, _ := time.Parse(time.RFC3339Nano, stringField(doc.Fields, "expiresAt"))
	if userID != claims.UserID || time.Now().After(expiresAt) {
		return "", ErrRefreshInvalid
	}

	err = s.store.UpdateIf(ctx, store.RefreshTokens, doc.ID,
		store.Condition{Path: "revoked", Equals: false},
		map[string]any{"revoked": true, "revokedAt": store.ServerTimestamp})
	if err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return "", ErrRefreshInvalid
		}
		return "", err
	}
	return claims.UserID, nil
}

func (s *Service) ValidateAccessToken(token string) (string, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

func (s *Service) signToken(userID string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *Service) parseToken(token string) (*Claims, error) {
	parsed, err := parseWithClaimsFn(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

func (s *Service) createAccount(ctx context.Context, email, displayName, password, role string) (Account, error) {
	hash, err := hashPasswordFn([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, err
	}
	id, err := s.store.Create(ctx, store.Users, map[string]any{
		"email":        email,
		"displayName":  displayName,
		"passwordHash": string(hash),
		"role":         role,
		"createdAt":    store.ServerTimestamp,
	})
	if err != nil {
		return Account{}, err
	}
	doc, err := s.store.Get(ctx, store.Users, id)
	if err != nil {
		return Account{}, err
	}
	return accountFromDocument(doc), nil
}

func (s *Service) findByEmail(ctx context.Context, email string) (Account, error) {
	docs, err := s.store.Query(ctx, store.Users, store.Query{
		Where: []store.Filter{store.Where("email", email)},
		Limit: 1,
	})
	if err != nil {
		return Account{}, err
	}
	if len(docs) == 0 {
		return Account{}, store.ErrNotFound
	}
	return accountFromDocument(docs[0]), nil
}

func (s *Service) saveRefreshToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	_, err := s.store.Create(ctx, store.RefreshTokens, map[string]any{
		"userId":    userID,
		"token":     token,
		"revoked":   false,
		"expiresAt": time.Now().UTC().Add(ttl),
		"createdAt": store.ServerTimestamp,
	})
	return err
}

func accountFromDocument(doc store.Document) Account {
	return Account{
		ID:           doc.ID,
		Email:        stringField(doc.Fields, "email"),
		DisplayName:  stringField(doc.Fields, "displayName"),
		Role:         stringField(doc.Fields, "role"),
		PasswordHash: stringField(doc.Fields, "passwordHash"),
		CreatedAt:    doc.CreatedAt,
	}
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}
