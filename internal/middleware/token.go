package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/studymate/backend/pkg/router"
	"github.com/studymate/backend/pkg/xcontext"
)

type TokenResponse interface {
	TokenInfo() (accessToken, sessionToken string)
}

// HandleSetTokenCookies mirrors issued tokens into cookies for browser
// clients. The session token cookie is never readable by scripts.
func HandleSetTokenCookies() router.MiddlewareFunc {
	return func(ctx context.Context) (context.Context, error) {
		tokenResp, ok := xcontext.Response(ctx).(TokenResponse)
		if !ok {
			return nil, nil
		}

		cfg := xcontext.Configs(ctx).Auth
		w := xcontext.HTTPWriter(ctx)
		accessToken, sessionToken := tokenResp.TokenInfo()
		now := time.Now()

		http.SetCookie(w, &http.Cookie{
			Name:     cfg.AccessToken.Name,
			Value:    accessToken,
			Path:     "/",
			Expires:  now.Add(cfg.AccessToken.Expiration),
			Secure:   true,
			HttpOnly: false,
			SameSite: http.SameSiteLaxMode,
		})

		http.SetCookie(w, &http.Cookie{
			Name:     cfg.SessionToken.Name,
			Value:    sessionToken,
			Path:     "/",
			Expires:  now.Add(cfg.SessionToken.Expiration),
			Secure:   true,
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})

		return nil, nil
	}
}
