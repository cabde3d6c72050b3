// internal/auth/auth.go
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TokenConfig holds the configuration for token generation
type TokenConfig struct {
	Secret     []byte
	Expiration time.Duration
}

// Token represents an authentication token
type Token struct {
	UserID    string `json:"user_id"`
	ExpiresAt int64  `json:"expires_at"`
	IssuedAt  int64  `json:"issued_at"`
}

// GenerateToken creates a new authentication token
func GenerateToken(userID string, config *TokenConfig) (string, error) {
	if len(config.Secret) == 0 {
		return "", fmt.Errorf("secret key is required")
	}

	token := &Token{
		UserID:    userID,
		ExpiresAt: time.Now().Add(config.Expiration).Unix(),
		IssuedAt:  time.Now().Unix(),
	}

	payload := fmt.Sprintf("%s|%d|%d", token.UserID, token.ExpiresAt, token.IssuedAt)

	h := hmac.New(sha256.New, config.Secret)
	h.Write([]byte(payload))
	signature := h.Sum(nil)

	encodedPayload := base64.URLEncoding.EncodeToString([]byte(payload))
	encodedSignature := base64.URLEncoding.EncodeToString(signature)

	return fmt.Sprintf("%s.%s", encodedPayload, encodedSignature), nil
}

// ParseToken parses and validates a token
func ParseToken(tokenString string, config *TokenConfig) (*Token, error) {
	if len(config.Secret) == 0 {
		return nil, fmt.Errorf("secret key is required")
	}

	parts := strings.Split(tokenString, ".")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid token format")
	}

	payloadBytes, err := base64.URLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid token payload: %w", err)
	}

	signatureBytes, err := base64.URLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid token signature: %w", err)
	}

	expectedSignature := hmac.New(sha256.New, config.Secret)
	expectedSignature.Write(payloadBytes)

	if !hmac.Equal(signatureBytes, expectedSignature.Sum(nil)) {
		return nil, fmt.Errorf("invalid token signature")
	}

	payloadParts := strings.Split(string(payloadBytes), "|")
	if len(payloadParts) != 3 {
		return nil, fmt.Errorf("invalid payload format")
	}

	expiresAt := parseTimestamp(payloadParts[1])
	issuedAt := parseTimestamp(payloadParts[2])

	if time.Now().Unix() > expiresAt {
		return nil, fmt.Errorf("token has expired")
	}

	return &Token{
		UserID:    payloadParts[0],
		ExpiresAt: expiresAt,
		IssuedAt:  issuedAt,
	}, nil
}

// parseTimestamp converts string timestamp to int64
func parseTimestamp(timestampStr string) int64 {
	timestamp, _ := strconv.ParseInt(timestampStr, 10, 64)
	return timestamp
}

// GenerateSecureKey generates a secure random key for token signing
func GenerateSecureKey(length int) ([]byte, error) {
	if length <= 0 {
		length = 32 // Default to 256 bits
	}

	key := make([]byte, length)
	_, err := rand.Read(key)
	if err != nil {
		return nil, err
	}

	return key, nil
}

// HashPassword 口令的 SHA256 摘要（单用户场景够用）
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Authenticator 单用户认证器
type Authenticator struct {
	Username     string
	PasswordHash string
	TokenConfig  *TokenConfig
}

// NewAuthenticator 创建单用户认证器。password 为空表示禁用登录。
func NewAuthenticator(username, password string, config *TokenConfig) *Authenticator {
	a := &Authenticator{
		Username:    username,
		TokenConfig: config,
	}
	if password != "" {
		a.PasswordHash = HashPassword(password)
	}
	return a
}

// Enabled 返回认证是否启用
func (a *Authenticator) Enabled() bool {
	return a.PasswordHash != ""
}

// Login 校验用户名口令并签发 token
func (a *Authenticator) Login(username, password string) (string, error) {
	if !a.Enabled() {
		return "", fmt.Errorf("login is not configured")
	}
	if username != a.Username || !hmac.Equal([]byte(HashPassword(password)), []byte(a.PasswordHash)) {
		return "", fmt.Errorf("invalid username or password")
	}
	return GenerateToken(username, a.TokenConfig)
}

// Verify 校验 Bearer token，返回用户名
func (a *Authenticator) Verify(tokenString string) (string, error) {
	token, err := ParseToken(tokenString, a.TokenConfig)
	if err != nil {
		return "", err
	}
	if token.UserID != a.Username {
		return "", fmt.Errorf("unknown user")
	}
	return token.UserID, nil
}
