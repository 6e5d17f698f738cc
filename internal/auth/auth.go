package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const RoleAdmin = "admin"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDisabled           = errors.New("auth disabled")
)

type Claims struct {
	Email string
	Role  string
}

type jwtClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	Kind  string `json:"kind"`
	jwt.RegisteredClaims
}

// Service issues and checks bearer tokens for the single admin account. A
// Service built with an empty secret is disabled and lets every request
// through.
type Service struct {
	secret    []byte
	email     string
	passHash  []byte
	accessTTL time.Duration
	now       func() time.Time
}

func NewService(secret, adminEmail, adminPassword string) (*Service, error) {
	s := &Service{
		secret:    []byte(secret),
		email:     strings.ToLower(strings.TrimSpace(adminEmail)),
		accessTTL: 15 * time.Minute,
		now:       time.Now,
	}
	if secret == "" {
		return s, nil
	}
	if s.email == "" || adminPassword == "" {
		return nil, errors.New("admin email and password are required when a secret is set")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	s.passHash = hash
	return s, nil
}

func (s *Service) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

// Login checks the admin credentials and returns an access and a refresh token.
func (s *Service) Login(email, password string) (string, string, error) {
	if !s.Enabled() {
		return "", "", ErrDisabled
	}
	if strings.ToLower(strings.TrimSpace(email)) != s.email {
		return "", "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.passHash, []byte(password)); err != nil {
		return "", "", ErrInvalidCredentials
	}
	return s.GenerateTokens(s.email, RoleAdmin)
}

func (s *Service) GenerateTokens(email, role string) (string, string, error) {
	now := s.now()
	access, err := s.sign(jwtClaims{
		Email: email,
		Role:  role,
		Kind:  "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	if err != nil {
		return "", "", err
	}
	refresh, err := s.sign(jwtClaims{
		Email: email,
		Role:  role,
		Kind:  "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(7 * 24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (s *Service) sign(c jwtClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

func (s *Service) parseToken(tokenStr, kind string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &jwtClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	c, ok := token.Claims.(*jwtClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	if c.Kind != kind {
		return nil, errors.New("wrong token kind")
	}
	return &Claims{Email: c.Email, Role: c.Role}, nil
}

func (s *Service) ParseToken(tokenStr string) (*Claims, error) {
	return s.parseToken(tokenStr, "access")
}

func (s *Service) Refresh(refreshToken string) (string, string, error) {
	if !s.Enabled() {
		return "", "", ErrDisabled
	}
	claims, err := s.parseToken(refreshToken, "refresh")
	if err != nil {
		return "", "", err
	}
	return s.GenerateTokens(claims.Email, claims.Role)
}

type ctxKey string

const claimsKey ctxKey = "claims"

func ClaimsFromContext(ctx context.Context) *Claims {
	val, ok := ctx.Value(claimsKey).(*Claims)
	if !ok {
		return nil
	}
	return val
}

func (s *Service) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		authz := r.Header.Get("Authorization")
		if authz == "" {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}
		parts := strings.SplitN(authz, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			writeError(w, http.StatusUnauthorized, "invalid auth header")
			return
		}
		claims, err := s.ParseToken(parts[1])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
