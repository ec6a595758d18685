package middleware

import (
	"context"

	"github.com/studymate/backend/internal/common"
	"github.com/studymate/backend/pkg/errorx"
	"github.com/studymate/backend/pkg/router"
	"github.com/studymate/backend/pkg/token"
	"github.com/studymate/backend/pkg/xcontext"
	"golang.org/x/exp/slices"
)

// AuthVerifier accepts access and admin tokens from the Authorization header
// or the access token cookie.
type AuthVerifier struct {
	codec *token.Codec
	kinds []token.Kind
}

func NewAuthVerifier(codec *token.Codec) *AuthVerifier {
	return &AuthVerifier{
		codec: codec,
		kinds: []token.Kind{token.KindAccess, token.KindAdmin},
	}
}

// WithServiceToken returns a verifier that also accepts service tokens. Such
// requests have no request user id. The receiver is left unchanged.
func (a *AuthVerifier) WithServiceToken() *AuthVerifier {
	kinds := make([]token.Kind, 0, len(a.kinds)+1)
	kinds = append(kinds, a.kinds...)
	return &AuthVerifier{codec: a.codec, kinds: append(kinds, token.KindService)}
}

func (a *AuthVerifier) Middleware() router.MiddlewareFunc {
	return func(ctx context.Context) (context.Context, error) {
		tkn := getAccessToken(ctx)
		if tkn == "" {
			return nil, errorx.New(errorx.Unauthenticated, "You need to authenticate before")
		}

		claims, err := a.codec.Validate(tkn)
		if err != nil {
			return nil, err
		}

		if !slices.Contains(a.kinds, claims.Kind) {
			return nil, errorx.New(errorx.Unauthenticated, "Token type %s is not accepted", claims.Kind)
		}

		ctx = xcontext.WithRequestClaims(ctx, claims)
		if claims.AccountID != "" {
			ctx = xcontext.WithRequestUserID(ctx, claims.AccountID)
		}

		return ctx, nil
	}
}

func getAccessToken(ctx context.Context) string {
	req := xcontext.HTTPRequest(ctx)
	if tkn, ok := token.ExtractBearer(common.BearerHeader(req)); ok {
		return tkn
	}

	if req == nil {
		return ""
	}

	cookie, err := req.Cookie(xcontext.Configs(ctx).Auth.AccessToken.Name)
	if err != nil {
		return ""
	}

	return cookie.Value
}

func RequestClaims(ctx context.Context) (token.Claims, bool) {
	claims, ok := xcontext.RequestClaims(ctx).(token.Claims)
	return claims, ok
}
