package domain

import (
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

func Test_tokenDomain_VerifyToken(t *testing.T) {
	ctx := testutil.MockContext()
	codec := newTestCodec(ctx)
	domain := NewTokenDomain(repository.NewAccountRepository(), codec)

	accessToken, err := codec.IssueAccessToken("account1", "account1@studymate.com")
	require.NoError(t, err)

	resp, err := domain.VerifyToken(ctx, &model.VerifyTokenRequest{Token: accessToken})
	require.NoError(t, err)
	require.True(t, resp.Valid)
	require.Equal(t, "account1", resp.Claims.AccountID)
	require.Equal(t, string(token.KindAccess), resp.Claims.Kind)

	_, err = domain.VerifyToken(ctx, &model.VerifyTokenRequest{Token: accessToken + "x"})
	require.Error(t, err)

	// Falls back to the Authorization header.
	req := httptest.NewRequest(http.MethodGet, "/verifyToken", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err = domain.VerifyToken(xcontext.WithHTTPRequest(ctx, req), &model.VerifyTokenRequest{})
	require.NoError(t, err)
	require.Equal(t, "account1", resp.Claims.AccountID)

	_, err = domain.VerifyToken(ctx, &model.VerifyTokenRequest{})
	require.ErrorIs(t, err, errorx.Error{Code: errorx.BadRequest})
}

func Test_tokenDomain_GetTokenSummary(t *testing.T) {
	ctx := testutil.MockContext()
	codec := newTestCodec(ctx)
	domain := NewTokenDomain(repository.NewAccountRepository(), codec)

	accessToken, err := codec.IssueAccessToken("account1", "account1@studymate.com")
	require.NoError(t, err)

	resp, err := domain.GetTokenSummary(ctx, &model.GetTokenSummaryRequest{Token: accessToken})
	require.NoError(t, err)
	require.True(t, resp.Valid)
	require.False(t, resp.NeedsRefresh)
	require.Greater(t, resp.MinutesUntilExpiration, int64(50))
	require.Empty(t, resp.Error)

	resp, err = domain.GetTokenSummary(ctx, &model.GetTokenSummaryRequest{Token: "garbage"})
	require.NoError(t, err)
	require.False(t, resp.Valid)
	require.NotEmpty(t, resp.Error)
}

func Test_tokenDomain_IssueAdminToken(t *testing.T) {
	ctx := testutil.MockContextWithUserID(testutil.AdminAccount.ID)
	testutil.CreateFixtureDb(ctx)
	codec := newTestCodec(ctx)
	domain := NewTokenDomain(repository.NewAccountRepository(), codec)

	resp, err := domain.IssueAdminToken(ctx, &model.IssueAdminTokenRequest{AccountID: testutil.AdminAccount.ID})
	require.NoError(t, err)
	require.True(t, codec.IsAdminToken(resp.AccessToken))
	require.Equal(t, int64(codec.AccessTokenTTL().Seconds()), resp.ExpiresIn)

	_, err = domain.IssueAdminToken(ctx, &model.IssueAdminTokenRequest{AccountID: testutil.Account1.ID})
	require.ErrorIs(t, err, errorx.Error{Code: errorx.PermissionDenied})

	_, err = domain.IssueAdminToken(ctx, &model.IssueAdminTokenRequest{AccountID: "ghost"})
	require.ErrorIs(t, err, errorx.Error{Code: errorx.AccountNotFound})

	_, err = domain.IssueAdminToken(ctx, &model.IssueAdminTokenRequest{})
	require.ErrorIs(t, err, errorx.Error{Code: errorx.BadRequest})
}

func Test_tokenDomain_IssueServiceToken(t *testing.T) {
	ctx := testutil.MockContextWithUserID(testutil.AdminAccount.ID)
	codec := newTestCodec(ctx)
	domain := NewTokenDomain(repository.NewAccountRepository(), codec)

	resp, err := domain.IssueServiceToken(ctx, &model.IssueServiceTokenRequest{ServiceID: "notifier"})
	require.NoError(t, err)
	require.True(t, codec.IsServiceToken(resp.ServiceToken))

	claims, err := codec.Validate(resp.ServiceToken)
	require.NoError(t, err)
	require.Equal(t, "notifier", claims.ServiceID)

	_, err = domain.IssueServiceToken(ctx, &model.IssueServiceTokenRequest{})
	require.ErrorIs(t, err, errorx.Error{Code: errorx.BadRequest})
}
