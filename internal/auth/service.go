// Package auth は外部IdPが発行したアクセストークンを検証し、利用者の識別情報を取り出す。
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmswl6310/volunteer-work/internal/model"
)

// ErrInvalidToken はトークンの署名・期限・発行者のいずれかが不正であることを表す。
var ErrInvalidToken = errors.New("invalid access token")

// VerifierConfig はトークン検証の設定。
type VerifierConfig struct {
	Secret   string // HS256の共有鍵
	Issuer   string // 空の場合は検証しない
	Audience string // 空の場合は検証しない
	Leeway   time.Duration
}

// Verifier はIdPが発行したHS256のJWTを検証する。
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier はVerifierを生成する。
func NewVerifier(cfg VerifierConfig) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	return &Verifier{
		secret: []byte(cfg.Secret),
		parser: jwt.NewParser(opts...),
	}
}

// Verify はトークンを検証し、subをアカウントIDとしたIdentityを返す。
// 表示名はuser_metadata.name、なければuser_metadata.full_nameから取る。
func (v *Verifier) Verify(token string) (*model.Identity, error) {
	claims := jwt.MapClaims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}

	identity := &model.Identity{
		AccountID: sub,
		Email:     strings.TrimSpace(stringClaim(claims, "email")),
	}
	if meta, ok := claims["user_metadata"].(map[string]any); ok {
		identity.Name = stringValue(meta["name"])
		if identity.Name == "" {
			identity.Name = stringValue(meta["full_name"])
		}
	}
	return identity, nil
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func stringClaim(claims jwt.MapClaims, key string) string {
	return stringValue(claims[key])
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
