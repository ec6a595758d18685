package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/studymate/backend/internal/model"
	"github.com/studymate/backend/internal/repository"
	"github.com/studymate/backend/pkg/errorx"
	"github.com/studymate/backend/pkg/testutil"
	"github.com/studymate/backend/pkg/token"
	"github.com/studymate/backend/pkg/xcontext"
)

func requestContext(ctx context.Context, req *http.Request) (context.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	ctx = xcontext.WithHTTPRequest(ctx, req)
	ctx = xcontext.WithHTTPWriter(ctx, w)
	return ctx, w
}

func newCodec(t *testing.T, ctx context.Context) *token.Codec {
	codec, err := token.NewCodec(xcontext.Configs(ctx).Auth)
	require.NoError(t, err)
	return codec
}

func TestAuthVerifier(t *testing.T) {
	ctx := testutil.MockContext()
	codec := newCodec(t, ctx)
	verifier := NewAuthVerifier(codec).Middleware()

	accessToken, err := codec.IssueAccessToken("account1", "account1@studymate.com")
	require.NoError(t, err)
	serviceToken, err := codec.IssueServiceToken("notifier")
	require.NoError(t, err)

	// Header.
	req := httptest.NewRequest(http.MethodGet, "/getMe", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	reqCtx, _ := requestContext(ctx, req)
	newCtx, err := verifier(reqCtx)
	require.NoError(t, err)
	require.Equal(t, "account1", xcontext.RequestUserID(newCtx))
	claims, ok := RequestClaims(newCtx)
	require.True(t, ok)
	require.Equal(t, token.KindAccess, claims.Kind)

	// Cookie.
	req = httptest.NewRequest(http.MethodGet, "/getMe", nil)
	req.AddCookie(&http.Cookie{Name: xcontext.Configs(ctx).Auth.AccessToken.Name, Value: accessToken})
	reqCtx, _ = requestContext(ctx, req)
	newCtx, err = verifier(reqCtx)
	require.NoError(t, err)
	require.Equal(t, "account1", xcontext.RequestUserID(newCtx))

	// Missing.
	reqCtx, _ = requestContext(ctx, httptest.NewRequest(http.MethodGet, "/getMe", nil))
	_, err = verifier(reqCtx)
	require.ErrorIs(t, err, errorx.Error{Code: errorx.Unauthenticated})

	// Tampered.
	req = httptest.NewRequest(http.MethodGet, "/getMe", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken+"x")
	reqCtx, _ = requestContext(ctx, req)
	_, err = verifier(reqCtx)
	require.Error(t, err)

	// Service tokens only pass verifiers that accept them.
	req = httptest.NewRequest(http.MethodGet, "/getMe", nil)
	req.Header.Set("Authorization", "Bearer "+serviceToken)
	reqCtx, _ = requestContext(ctx, req)
	_, err = verifier(reqCtx)
	require.ErrorIs(t, err, errorx.Error{Code: errorx.Unauthenticated})

	base := NewAuthVerifier(codec)
	newCtx, err = base.WithServiceToken().Middleware()(reqCtx)
	require.NoError(t, err)
	require.Empty(t, xcontext.RequestUserID(newCtx))
	_, err = OnlyService()(newCtx)
	require.NoError(t, err)

	// Deriving a service verifier does not widen the one it came from.
	_, err = base.Middleware()(reqCtx)
	require.ErrorIs(t, err, errorx.Error{Code: errorx.Unauthenticated})
}

func TestOnlyAdmin(t *testing.T) {
	ctx := testutil.MockContext()
	testutil.CreateFixtureDb(ctx)
	onlyAdmin := NewOnlyAdmin(repository.NewAccountRepository()).Middleware()

	admin := token.NewAdminClaims(testutil.AdminAccount.ID, testutil.AdminAccount.Email, "ADMIN")
	_, err := onlyAdmin(xcontext.WithRequestClaims(ctx, admin))
	require.NoError(t, err)

	_, err = onlyAdmin(xcontext.WithRequestClaims(ctx, token.NewAccessClaims(testutil.AdminAccount.ID, "")))
	require.ErrorIs(t, err, errorx.Error{Code: errorx.PermissionDenied})

	// Admin claims of an account that is no longer admin.
	demoted := token.NewAdminClaims(testutil.Account1.ID, testutil.Account1.Email, "ADMIN")
	_, err = onlyAdmin(xcontext.WithRequestClaims(ctx, demoted))
	require.ErrorIs(t, err, errorx.Error{Code: errorx.PermissionDenied})

	_, err = onlyAdmin(ctx)
	require.ErrorIs(t, err, errorx.Error{Code: errorx.PermissionDenied})

	_, err = OnlyService()(xcontext.WithRequestClaims(ctx, admin))
	require.ErrorIs(t, err, errorx.Error{Code: errorx.PermissionDenied})
}

func TestHandleSetTokenCookies(t *testing.T) {
	ctx := testutil.MockContext()
	cfg := xcontext.Configs(ctx).Auth

	reqCtx, w := requestContext(ctx, httptest.NewRequest(http.MethodPost, "/login", nil))
	reqCtx = xcontext.WithResponse(reqCtx, &model.LoginResponse{AccessToken: "access", SessionToken: "session"})
	_, err := HandleSetTokenCookies()(reqCtx)
	require.NoError(t, err)

	cookies := map[string]*http.Cookie{}
	for _, c := range w.Result().Cookies() {
		cookies[c.Name] = c
	}

	require.Equal(t, "access", cookies[cfg.AccessToken.Name].Value)
	require.False(t, cookies[cfg.AccessToken.Name].HttpOnly)
	require.Equal(t, "session", cookies[cfg.SessionToken.Name].Value)
	require.True(t, cookies[cfg.SessionToken.Name].HttpOnly)

	// Other responses are left alone.
	reqCtx, w = requestContext(ctx, httptest.NewRequest(http.MethodGet, "/getMe", nil))
	reqCtx = xcontext.WithResponse(reqCtx, &model.GetMeResponse{})
	_, err = HandleSetTokenCookies()(reqCtx)
	require.NoError(t, err)
	require.Empty(t, w.Result().Cookies())
}
