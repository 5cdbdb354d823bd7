// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmswl6310/volunteer-work/internal/auth"
	"github.com/dmswl6310/volunteer-work/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var identityContextKey = contextKey("identity")

// ErrNoIdentity はコンテキストに検証済みの利用者情報がないことを表す。
var ErrNoIdentity = errors.New("identity not found in context")

// TokenVerifier はアクセストークンの検証に必要なインターフェース。
// auth.Verifierが実装する。
type TokenVerifier interface {
	Verify(token string) (*model.Identity, error)
}

// NewIdentityMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// 利用者情報をリクエストコンテキストに注入するミドルウェアを返す。
// トークンがない、または検証できない場合は401を返す。
func NewIdentityMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil || identity == nil || identity.AccountID == "" {
				if err != nil {
					slog.Debug("access token rejected",
						slog.String("error", err.Error()),
					)
				}
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			noteAccountID(r.Context(), identity.AccountID)
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// IdentityFromContext はリクエストコンテキストから利用者情報を取得する。
// NewIdentityMiddlewareを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (*model.Identity, error) {
	identity, ok := ctx.Value(identityContextKey).(*model.Identity)
	if !ok || identity == nil || identity.AccountID == "" {
		return nil, ErrNoIdentity
	}
	return identity, nil
}

// AccountIDFromContext はリクエストコンテキストからアカウントIDを取得する。
func AccountIDFromContext(ctx context.Context) (string, error) {
	identity, err := IdentityFromContext(ctx)
	if err != nil {
		return "", err
	}
	return identity.AccountID, nil
}

// ContextWithIdentity はコンテキストに利用者情報を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
