package services

import (
	"testing"
	"time"

	"github.com/Reshigan/Heirloom-sub004/internal/config"
	"github.com/Reshigan/Heirloom-sub004/internal/dto"
	"github.com/Reshigan/Heirloom-sub004/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func TestVerifyPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	svc := &AuthService{}
	if !svc.VerifyPassword("hunter2hunter2", string(hash)) {
		t.Error("correct password rejected")
	}
	if svc.VerifyPassword("wrong", string(hash)) {
		t.Error("wrong password accepted")
	}
	if svc.VerifyPassword("", string(hash)) {
		t.Error("empty password accepted")
	}
}

func TestRegisterRejectsWeakInput(t *testing.T) {
	svc := NewAuthService(nil, &config.Config{})

	if _, err := svc.Register(&dto.RegisterRequest{Email: "", Password: "longenough"}); err == nil {
		t.Error("empty email accepted")
	}
	if _, err := svc.Register(&dto.RegisterRequest{Email: "a@b.c", Password: "short"}); err == nil {
		t.Error("short password accepted")
	}
}

func TestAccessTokenClaims(t *testing.T) {
	cfg := &config.Config{
		JWTSecret:       "test-secret",
		JWTAccessExpiry: 15 * time.Minute,
	}
	svc := NewAuthService(nil, cfg)

	user := &models.User{ID: uuid.New(), Email: "owner@example.com"}
	signed, err := svc.generateAccessToken(user)
	if err != nil {
		t.Fatalf("generateAccessToken: %v", err)
	}

	parsed, err := jwt.Parse(signed, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("token did not validate: %v", err)
	}

	claims := parsed.Claims.(jwt.MapClaims)
	if claims["sub"] != user.ID.String() {
		t.Errorf("sub = %v, want %s", claims["sub"], user.ID)
	}
	if claims["email"] != user.Email {
		t.Errorf("email = %v, want %s", claims["email"], user.Email)
	}
	exp, ok := claims["exp"].(float64)
	if !ok || time.Unix(int64(exp), 0).Before(time.Now()) {
		t.Errorf("exp = %v, want a future timestamp", claims["exp"])
	}
}

func TestHashTokenIsStable(t *testing.T) {
	a := hashToken("some-refresh-token")
	b := hashToken("some-refresh-token")
	if a != b {
		t.Error("hashing the same token twice must agree")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
	if a == hashToken("another-token") {
		t.Error("distinct tokens must not collide")
	}
}
