package service

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// TokenCookie 是携带 JWT 的 cookie 名。
const TokenCookie = "accessToken"

// Claims 是登录服务签发的 token 内容；userNo 可能是数字或字符串。
type Claims struct {
	UserNo any `json:"userNo"`
	jwt.RegisteredClaims
}

// TokenParser 校验 HS256 token 并取出用户编号。
type TokenParser struct {
	secret []byte
}

// NewTokenParser 创建解析器；secret 为空时所有请求都视为未登录。
func NewTokenParser(secret string) *TokenParser {
	return &TokenParser{secret: []byte(secret)}
}

// ErrNoToken 表示请求没有携带 token。
var ErrNoToken = errors.New("no access token")

// Parse 解析 token 字符串，返回用户编号。
func (p *TokenParser) Parse(tokenString string) (int64, error) {
	if len(p.secret) == 0 {
		return 0, errors.New("jwt secret not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return 0, errors.New("invalid token claims")
	}
	return userNo(claims.UserNo)
}

// UserID 从请求 cookie 中取出用户编号；没有 cookie 时返回 ErrNoToken。
func (p *TokenParser) UserID(r *http.Request) (int64, error) {
	c, err := r.Cookie(TokenCookie)
	if err != nil || c.Value == "" {
		return 0, ErrNoToken
	}
	return p.Parse(c.Value)
}

func userNo(v any) (int64, error) {
	switch x := v.(type) {
	case float64:
		if x <= 0 || x != float64(int64(x)) {
			return 0, fmt.Errorf("invalid userNo %v", x)
		}
		return int64(x), nil
	case string:
		id, err := strconv.ParseInt(x, 10, 64)
		if err != nil || id <= 0 {
			return 0, fmt.Errorf("invalid userNo %q", x)
		}
		return id, nil
	case nil:
		return 0, errors.New("userNo claim missing")
	default:
		return 0, fmt.Errorf("invalid userNo type %T", v)
	}
}
