package domain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/studymate/backend/internal/entity"
	"github.com/studymate/backend/internal/model"
	"github.com/studymate/backend/internal/repository"
	"github.com/studymate/backend/pkg/authenticator"
	"github.com/studymate/backend/pkg/errorx"
	"github.com/studymate/backend/pkg/session"
	"github.com/studymate/backend/pkg/testutil"
	"github.com/studymate/backend/pkg/token"
	"github.com/studymate/backend/pkg/xcontext"
	"gorm.io/gorm"
)

func newTestCodec(ctx context.Context) *token.Codec {
	codec, err := token.NewCodec(xcontext.Configs(ctx).Auth)
	if err != nil {
		panic(err)
	}
	return codec
}

func mockProvider(name, subject, email string) *testutil.MockOAuth2 {
	service := testutil.NewMockOAuth2(name)
	service.VerifyAuthorizationCodeFunc = func(ctx context.Context, code, state string) (authenticator.OAuth2User, error) {
		return authenticator.OAuth2User{
			ID:          subject,
			Email:       email,
			Name:        "User " + subject,
			AccessToken: "provider-access-" + code,
			ExpiresAt:   time.Now().Add(time.Hour),
		}, nil
	}
	return service
}

func newTestAuthDomain(ctx context.Context, services ...authenticator.IOAuth2Service) *authDomain {
	return NewAuthDomain(
		ctx,
		repository.NewAccountRepository(),
		repository.NewIdentityLinkRepository(),
		repository.NewSessionTokenRepository(),
		newTestCodec(ctx),
		services,
	).(*authDomain)
}

func Test_authDomain_Login_EndToEnd(t *testing.T) {
	ctx := testutil.MockContext()
	domain := newTestAuthDomain(ctx,
		mockProvider("GOOGLE", "g-123", "a@x.com"),
		mockProvider("NAVER", "n-456", "a@x.com"),
	)

	first, err := domain.Login(ctx, &model.LoginRequest{Provider: "GOOGLE", Code: "c1"})
	require.NoError(t, err)
	require.True(t, first.IsNewAccount)
	require.NotEmpty(t, first.AccessToken)
	require.NotEmpty(t, first.SessionToken)
	require.Equal(t, "a@x.com", first.Account.Email)

	claims, err := domain.codec.Validate(first.AccessToken)
	require.NoError(t, err)
	require.Equal(t, first.Account.ID, claims.AccountID)
	require.Equal(t, token.KindAccess, claims.Kind)

	second, err := domain.Login(ctx, &model.LoginRequest{Provider: "google", Code: "c2"})
	require.NoError(t, err)
	require.False(t, second.IsNewAccount)
	require.Equal(t, first.Account.ID, second.Account.ID)
	require.NotEqual(t, first.SessionToken, second.SessionToken)

	link, err := domain.identityLinkRepo.GetByProviderAndSubject(ctx, entity.GoogleProvider, "g-123")
	require.NoError(t, err)
	require.True(t, link.IsPrimary)
	require.True(t, link.IsActive)
	require.Equal(t, "provider-access-c2", link.AccessToken)
	require.True(t, link.LastLoginAt.Valid)

	// Same email through another provider attaches to the same account.
	third, err := domain.Login(ctx, &model.LoginRequest{Provider: "NAVER", Code: "c3"})
	require.NoError(t, err)
	require.False(t, third.IsNewAccount)
	require.Equal(t, first.Account.ID, third.Account.ID)

	naver, err := domain.identityLinkRepo.GetByProviderAndSubject(ctx, entity.NaverProvider, "n-456")
	require.NoError(t, err)
	require.False(t, naver.IsPrimary)

	count, err := domain.sessionTokenRepo.CountValidByAccountID(ctx, first.Account.ID, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	account, err := domain.accountRepo.GetByID(ctx, first.Account.ID)
	require.NoError(t, err)
	require.True(t, account.LastLoginAt.Valid)
}

func Test_authDomain_Login_InvalidRequest(t *testing.T) {
	ctx := testutil.MockContext()
	domain := newTestAuthDomain(ctx, mockProvider("GOOGLE", "g-1", "a@x.com"))

	_, err := domain.Login(ctx, &model.LoginRequest{Provider: "GITHUB", Code: "c"})
	require.ErrorIs(t, err, errorx.Error{Code: errorx.BadRequest})

	_, err = domain.Login(ctx, &model.LoginRequest{Provider: "KAKAO", Code: "c"})
	require.ErrorIs(t, err, errorx.Error{Code: errorx.BadRequest})

	_, err = domain.Login(ctx, &model.LoginRequest{Provider: "GOOGLE"})
	require.ErrorIs(t, err, errorx.Error{Code: errorx.BadRequest})
}

func Test_authDomain_Login_ProviderTimeout(t *testing.T) {
	ctx := testutil.MockContext()
	cfg := xcontext.Configs(ctx)
	cfg.Auth.OAuth2Timeout = 10 * time.Millisecond
	ctx = xcontext.WithConfigs(ctx, cfg)

	slow := testutil.NewMockOAuth2("GOOGLE")
	slow.VerifyAuthorizationCodeFunc = func(ctx context.Context, code, state string) (authenticator.OAuth2User, error) {
		<-ctx.Done()
		return authenticator.OAuth2User{}, ctx.Err()
	}

	domain := newTestAuthDomain(ctx, slow)
	_, err := domain.Login(ctx, &model.LoginRequest{Provider: "GOOGLE", Code: "c"})
	require.ErrorIs(t, err, errorx.Error{Code: errorx.ProviderFailure})
}

func Test_authDomain_Login_State(t *testing.T) {
	ctx := testutil.MockContext()
	naver := mockProvider("NAVER", "n-1", "n@x.com")
	naver.RequireStateValue = true
	domain := newTestAuthDomain(ctx, naver)

	// No session at all.
	_, err := domain.Login(ctx, &model.LoginRequest{Provider: "NAVER", Code: "c", State: "s"})
	require.ErrorIs(t, err, errorx.Error{Code: errorx.BadRequest})

	store := session.NewCookieStore("studymate_session", []byte("session-secret"))
	requestCtx := func(cookies []*http.Cookie) (context.Context, *httptest.ResponseRecorder) {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		w := httptest.NewRecorder()

		c := xcontext.WithHTTPRequest(ctx, req)
		c = xcontext.WithHTTPWriter(c, w)
		c = xcontext.WithSessionStore(c, store)
		return c, w
	}

	authCtx, w := requestCtx(nil)
	authorize, err := domain.AuthorizeURL(authCtx, &model.AuthorizeURLRequest{Provider: "NAVER"})
	require.NoError(t, err)
	require.NotEmpty(t, authorize.State)
	require.Contains(t, authorize.URL, authorize.State)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	wrongCtx, _ := requestCtx(cookies)
	_, err = domain.Login(wrongCtx, &model.LoginRequest{Provider: "NAVER", Code: "c", State: "forged"})
	require.ErrorIs(t, err, errorx.Error{Code: errorx.BadRequest})

	loginCtx, _ := requestCtx(cookies)
	resp, err := domain.Login(loginCtx, &model.LoginRequest{Provider: "NAVER", Code: "c", State: authorize.State})
	require.NoError(t, err)
	require.True(t, resp.IsNewAccount)
}

func Test_authDomain_SessionCeiling(t *testing.T) {
	ctx := testutil.MockContext()
	domain := newTestAuthDomain(ctx, mockProvider("GOOGLE", "g-123", "a@x.com"))
	maxSessions := xcontext.Configs(ctx).Auth.SessionToken.MaxPerAccount

	var secrets []string
	var accountID string
	for i := 0; i < maxSessions+2; i++ {
		resp, err := domain.Login(ctx, &model.LoginRequest{Provider: "GOOGLE", Code: "c"})
		require.NoError(t, err)
		secrets = append(secrets, resp.SessionToken)
		accountID = resp.Account.ID

		count, err := domain.sessionTokenRepo.CountValidByAccountID(ctx, accountID, time.Now())
		require.NoError(t, err)
		require.LessOrEqual(t, count, int64(maxSessions))
	}

	count, err := domain.sessionTokenRepo.CountValidByAccountID(ctx, accountID, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(maxSessions), count)

	// The two least recently used sessions were evicted, the newest survive.
	for _, secret := range secrets[:2] {
		_, err := domain.Refresh(ctx, &model.RefreshRequest{SessionToken: secret})
		require.ErrorIs(t, err, errorx.Error{Code: errorx.SessionExpiredOrRevoked})
	}

	_, err = domain.Refresh(ctx, &model.RefreshRequest{SessionToken: secrets[len(secrets)-1]})
	require.NoError(t, err)
}

func Test_authDomain_EnsureUnderLimit(t *testing.T) {
	ctx := testutil.MockContext()
	testutil.CreateFixtureDb(ctx)
	domain := newTestAuthDomain(ctx)
	repo := domain.sessionTokenRepo
	now := time.Now()

	var ids []int64
	for i := 0; i < 7; i++ {
		s, err := repo.Create(ctx, testutil.Account1.ID, time.Hour, "", "", now.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}

	revoked, err := domain.EnsureUnderLimit(ctx, testutil.Account1.ID, 5)
	require.NoError(t, err)
	require.Equal(t, 2, revoked)

	valid, err := repo.GetEvictionCandidates(ctx, testutil.Account1.ID, time.Now())
	require.NoError(t, err)
	require.Len(t, valid, 5)
	require.Equal(t, ids[2], valid[0].ID)

	revoked, err = domain.EnsureUnderLimit(ctx, testutil.Account1.ID, 5)
	require.NoError(t, err)
	require.Equal(t, 0, revoked)
}

func Test_authDomain_Refresh(t *testing.T) {
	ctx := testutil.MockContext()
	domain := newTestAuthDomain(ctx, mockProvider("GOOGLE", "g-123", "a@x.com"))

	login, err := domain.Login(ctx, &model.LoginRequest{Provider: "GOOGLE", Code: "c"})
	require.NoError(t, err)

	// More than a day left: the session secret is kept.
	resp, err := domain.Refresh(ctx, &model.RefreshRequest{SessionToken: login.SessionToken, DeviceInfo: "iPhone"})
	require.NoError(t, err)
	require.False(t, resp.Rotated)
	require.Equal(t, login.SessionToken, resp.SessionToken)
	require.NotEmpty(t, resp.AccessToken)

	session, err := domain.sessionTokenRepo.GetBySecret(ctx, login.SessionToken)
	require.NoError(t, err)
	require.Equal(t, "iPhone", session.Device)

	_, err = domain.Refresh(ctx, &model.RefreshRequest{SessionToken: "unknown"})
	require.ErrorIs(t, err, errorx.Error{Code: errorx.SessionNotFound})

	_, err = domain.Refresh(ctx, &model.RefreshRequest{})
	require.ErrorIs(t, err, errorx.Error{Code: errorx.BadRequest})
}

func Test_authDomain_Refresh_Rotation(t *testing.T) {
	ctx := testutil.MockContext()
	cfg := xcontext.Configs(ctx)
	cfg.Auth.SessionToken.Expiration = 12 * time.Hour
	ctx = xcontext.WithConfigs(ctx, cfg)
	domain := newTestAuthDomain(ctx, mockProvider("GOOGLE", "g-123", "a@x.com"))

	login, err := domain.Login(ctx, &model.LoginRequest{Provider: "GOOGLE", Code: "c"})
	require.NoError(t, err)

	resp, err := domain.Refresh(ctx, &model.RefreshRequest{SessionToken: login.SessionToken})
	require.NoError(t, err)
	require.True(t, resp.Rotated)
	require.NotEqual(t, login.SessionToken, resp.SessionToken)

	// The old secret is dead right away.
	_, err = domain.Refresh(ctx, &model.RefreshRequest{SessionToken: login.SessionToken})
	require.ErrorIs(t, err, errorx.Error{Code: errorx.SessionExpiredOrRevoked})

	again, err := domain.Refresh(ctx, &model.RefreshRequest{SessionToken: resp.SessionToken})
	require.NoError(t, err)
	require.True(t, again.Rotated)

	count, err := domain.sessionTokenRepo.CountValidByAccountID(ctx, login.Account.ID, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func Test_authDomain_Refresh_Expired(t *testing.T) {
	ctx := testutil.MockContext()
	testutil.CreateFixtureDb(ctx)
	domain := newTestAuthDomain(ctx)

	session, err := domain.sessionTokenRepo.Create(ctx, testutil.Account1.ID, time.Hour, "", "", time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	_, err = domain.Refresh(ctx, &model.RefreshRequest{SessionToken: session.Secret})
	require.ErrorIs(t, err, errorx.Error{Code: errorx.SessionExpiredOrRevoked})
}

func Test_authDomain_Logout(t *testing.T) {
	ctx := testutil.MockContext()
	domain := newTestAuthDomain(ctx, mockProvider("GOOGLE", "g-123", "a@x.com"))

	var secrets []string
	var accountID string
	for i := 0; i < 3; i++ {
		resp, err := domain.Login(ctx, &model.LoginRequest{Provider: "GOOGLE", Code: "c", DeviceInfo: "web"})
		require.NoError(t, err)
		secrets = append(secrets, resp.SessionToken)
		accountID = resp.Account.ID
	}

	_, err := domain.Logout(ctx, &model.LogoutRequest{SessionToken: secrets[0]})
	require.NoError(t, err)

	_, err = domain.Logout(ctx, &model.LogoutRequest{SessionToken: secrets[0]})
	require.ErrorIs(t, err, errorx.Error{Code: errorx.SessionExpiredOrRevoked})

	_, err = domain.Logout(ctx, &model.LogoutRequest{SessionToken: "unknown"})
	require.ErrorIs(t, err, errorx.Error{Code: errorx.SessionNotFound})

	_, err = domain.Refresh(ctx, &model.RefreshRequest{SessionToken: secrets[0]})
	require.ErrorIs(t, err, errorx.Error{Code: errorx.SessionExpiredOrRevoked})

	userCtx := xcontext.WithRequestUserID(ctx, accountID)
	sessions, err := domain.GetSessions(userCtx, &model.GetSessionsRequest{})
	require.NoError(t, err)
	require.Len(t, sessions.Sessions, 2)

	all, err := domain.LogoutAll(userCtx, &model.LogoutAllRequest{})
	require.NoError(t, err)
	require.Equal(t, int64(2), all.RevokedCount)

	all, err = domain.LogoutAll(userCtx, &model.LogoutAllRequest{})
	require.NoError(t, err)
	require.Equal(t, int64(0), all.RevokedCount)

	for _, secret := range secrets {
		_, err := domain.Refresh(ctx, &model.RefreshRequest{SessionToken: secret})
		require.ErrorIs(t, err, errorx.Error{Code: errorx.SessionExpiredOrRevoked})
	}
}

func Test_authDomain_LogoutDevice(t *testing.T) {
	ctx := testutil.MockContext()
	domain := newTestAuthDomain(ctx, mockProvider("GOOGLE", "g-123", "a@x.com"))

	web, err := domain.Login(ctx, &model.LoginRequest{Provider: "GOOGLE", Code: "c", DeviceInfo: "web"})
	require.NoError(t, err)
	phone, err := domain.Login(ctx, &model.LoginRequest{Provider: "GOOGLE", Code: "c", DeviceInfo: "phone"})
	require.NoError(t, err)

	userCtx := xcontext.WithRequestUserID(ctx, web.Account.ID)
	_, err = domain.LogoutDevice(userCtx, &model.LogoutDeviceRequest{})
	require.ErrorIs(t, err, errorx.Error{Code: errorx.BadRequest})

	resp, err := domain.LogoutDevice(userCtx, &model.LogoutDeviceRequest{DeviceInfo: "web"})
	require.NoError(t, err)
	require.Equal(t, int64(1), resp.RevokedCount)

	_, err = domain.Refresh(ctx, &model.RefreshRequest{SessionToken: web.SessionToken})
	require.ErrorIs(t, err, errorx.Error{Code: errorx.SessionExpiredOrRevoked})

	_, err = domain.Refresh(ctx, &model.RefreshRequest{SessionToken: phone.SessionToken})
	require.NoError(t, err)
}

func Test_authDomain_AdminLogin(t *testing.T) {
	ctx := testutil.MockContext()
	testutil.CreateFixtureDb(ctx)
	domain := newTestAuthDomain(ctx, mockProvider("GOOGLE", "g-admin", testutil.AdminAccount.Email))

	resp, err := domain.Login(ctx, &model.LoginRequest{Provider: "GOOGLE", Code: "c"})
	require.NoError(t, err)
	require.Equal(t, testutil.AdminAccount.ID, resp.Account.ID)
	require.True(t, domain.codec.IsAdminToken(resp.AccessToken))
}

func Test_authDomain_Login_IgnoresForwardedHeaders(t *testing.T) {
	ctx := testutil.MockContext()
	testutil.CreateFixtureDb(ctx)
	cfg := xcontext.Configs(ctx)
	cfg.ApiServer.TrustProxy = false
	cfg.Anomaly.AccountsPerIPThreshold = 1
	cfg.Anomaly.IPsPerAccountThreshold = 1
	ctx = xcontext.WithConfigs(ctx, cfg)

	loginFrom := func(subject, email, forwarded string) {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		req.Header.Set("X-Forwarded-For", forwarded)
		reqCtx := xcontext.WithHTTPRequest(ctx, req)

		domain := newTestAuthDomain(reqCtx, mockProvider("GOOGLE", subject, email))
		_, err := domain.Login(reqCtx, &model.LoginRequest{Provider: "GOOGLE", Code: "c"})
		require.NoError(t, err)
	}

	for i, forwarded := range []string{"198.51.100.0", "198.51.100.1", "198.51.100.2"} {
		loginFrom("g-forged-1", "forged1@x.com", forwarded)
		if i < 2 {
			loginFrom("g-forged-2", "forged2@x.com", forwarded)
		}
	}
	loginFrom("g-forged-2", "forged2@x.com", strings.Repeat("z", 100))

	report, err := NewAnomalyDomain(repository.NewSessionTokenRepository(), nil).
		GetAnomalyReport(ctx, &model.GetAnomalyReportRequest{})
	require.NoError(t, err)
	require.Equal(t, []model.SuspiciousIP{{IP: "203.0.113.9", AccountCount: 2}}, report.SuspiciousIPs)
	require.Empty(t, report.SuspiciousAccounts)
}

// racingIdentityLinkRepository misses existing links a number of times, as if
// another login linked the identity right after the lookup.
type racingIdentityLinkRepository struct {
	repository.IdentityLinkRepository
	misses int
}

func (r *racingIdentityLinkRepository) GetByProviderAndSubject(
	ctx context.Context, provider entity.Provider, subjectID string,
) (*entity.IdentityLink, error) {
	if r.misses > 0 {
		r.misses--
		return nil, gorm.ErrRecordNotFound
	}

	return r.IdentityLinkRepository.GetByProviderAndSubject(ctx, provider, subjectID)
}

func Test_authDomain_Login_ConcurrentFirstLogin(t *testing.T) {
	ctx := testutil.MockContext()
	testutil.CreateFixtureDb(ctx)
	google := mockProvider("GOOGLE", "g-race", "race@x.com")

	first, err := newTestAuthDomain(ctx, google).Login(ctx, &model.LoginRequest{Provider: "GOOGLE", Code: "c"})
	require.NoError(t, err)

	racing := newTestAuthDomain(ctx, google)
	racing.identityLinkRepo = &racingIdentityLinkRepository{
		IdentityLinkRepository: repository.NewIdentityLinkRepository(),
		misses:                 1,
	}

	second, err := racing.Login(ctx, &model.LoginRequest{Provider: "GOOGLE", Code: "c"})
	require.NoError(t, err)
	require.Equal(t, first.Account.ID, second.Account.ID)
	require.False(t, second.IsNewAccount)

	// The retry happens once only.
	racing.identityLinkRepo = &racingIdentityLinkRepository{
		IdentityLinkRepository: repository.NewIdentityLinkRepository(),
		misses:                 2,
	}
	_, err = racing.Login(ctx, &model.LoginRequest{Provider: "GOOGLE", Code: "c"})
	require.ErrorIs(t, err, errorx.Error{Code: errorx.DuplicateIdentity})
}
