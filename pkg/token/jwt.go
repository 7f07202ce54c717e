// Package token 提供了用于生成和验证会话令牌 (JWT) 的功能。
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTManager 负责管理会话令牌的生成和验证。
type JWTManager struct {
	secretKey []byte        // secretKey 用于签名和验证 token 的密钥
	tokenDur  time.Duration // tokenDur 定义了会话令牌的有效期
}

// SessionClaims 在 JWT 中携带会话 ID，会话 ID 存放在标准的 sub 声明中。
type SessionClaims struct {
	jwt.RegisteredClaims
}

// NewJWTManager 创建一个新的 JWTManager 实例。
// secret: 用于签名的密钥字符串。
// expireHours: 会话令牌的过期时间（小时）。
func NewJWTManager(secret string, expireHours int) *JWTManager {
	return &JWTManager{
		secretKey: []byte(secret),
		tokenDur:  time.Hour * time.Duration(expireHours),
	}
}

// GenerateToken 为给定的会话 ID 签发一个新的会话令牌。
func (m *JWTManager) GenerateToken(sessionID string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDur)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	// 使用 HS256 签名方法创建新的 token 对象
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secretKey)
}

// VerifyToken 验证给定的 token 字符串，并返回其中的会话 ID。
// 如果 token 无效（例如，签名不匹配或已过期），则返回错误。
func (m *JWTManager) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 检查签名方法是否为 HMAC
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secretKey, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("token has no session id")
	}
	return claims.Subject, nil
}

// GenerateRandomString generates a random hex string of a given length.
func GenerateRandomString(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a less random string on error
		return fmt.Sprintf("fallback%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
