package domain

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync"
	"github.com/studymate/backend/internal/common"
	"github.com/studymate/backend/internal/entity"
	"github.com/studymate/backend/internal/model"
	"github.com/studymate/backend/internal/repository"
	"github.com/studymate/backend/pkg/authenticator"
	"github.com/studymate/backend/pkg/crypto"
	"github.com/studymate/backend/pkg/errorx"
	"github.com/studymate/backend/pkg/token"
	"github.com/studymate/backend/pkg/xcontext"
	"gorm.io/gorm"
)

const (
	oauth2StateKey   = "oauth2_state"
	oauth2StateBytes = 24
	bearerTokenType  = "Bearer"
)

type AuthDomain interface {
	AuthorizeURL(context.Context, *model.AuthorizeURLRequest) (*model.AuthorizeURLResponse, error)
	Login(context.Context, *model.LoginRequest) (*model.LoginResponse, error)
	Refresh(context.Context, *model.RefreshRequest) (*model.RefreshResponse, error)
	Logout(context.Context, *model.LogoutRequest) (*model.LogoutResponse, error)
	LogoutAll(context.Context, *model.LogoutAllRequest) (*model.LogoutAllResponse, error)
	LogoutDevice(context.Context, *model.LogoutDeviceRequest) (*model.LogoutDeviceResponse, error)
	GetSessions(context.Context, *model.GetSessionsRequest) (*model.GetSessionsResponse, error)
	EnsureUnderLimit(ctx context.Context, accountID string, maxSessions int) (int, error)
}

type authDomain struct {
	accountRepo      repository.AccountRepository
	identityLinkRepo repository.IdentityLinkRepository
	sessionTokenRepo repository.SessionTokenRepository
	codec            *token.Codec
	oauth2Services   map[entity.Provider]authenticator.IOAuth2Service

	// Serializes ceiling checks and session creation per account inside
	// this process.
	accountLocks *xsync.MapOf[string, *sync.Mutex]
}

func NewAuthDomain(
	ctx context.Context,
	accountRepo repository.AccountRepository,
	identityLinkRepo repository.IdentityLinkRepository,
	sessionTokenRepo repository.SessionTokenRepository,
	codec *token.Codec,
	oauth2Services []authenticator.IOAuth2Service,
) AuthDomain {
	services := make(map[entity.Provider]authenticator.IOAuth2Service)
	for _, s := range oauth2Services {
		provider, err := entity.ParseProvider(s.Service())
		if err != nil {
			xcontext.Logger(ctx).Warnf("Ignore oauth2 service %s: %v", s.Service(), err)
			continue
		}
		services[provider] = s
	}

	return &authDomain{
		accountRepo:      accountRepo,
		identityLinkRepo: identityLinkRepo,
		sessionTokenRepo: sessionTokenRepo,
		codec:            codec,
		oauth2Services:   services,
		accountLocks:     xsync.NewMapOf[*sync.Mutex](),
	}
}

func (d *authDomain) getOAuth2Service(name string) (entity.Provider, authenticator.IOAuth2Service, error) {
	provider, err := entity.ParseProvider(name)
	if err != nil {
		return "", nil, errorx.New(errorx.BadRequest, "Unknown provider %s", name)
	}

	service, ok := d.oauth2Services[provider]
	if !ok {
		return "", nil, errorx.New(errorx.BadRequest, "Unsupported provider %s", provider)
	}

	return provider, service, nil
}

func (d *authDomain) AuthorizeURL(
	ctx context.Context, req *model.AuthorizeURLRequest,
) (*model.AuthorizeURLResponse, error) {
	_, service, err := d.getOAuth2Service(req.Provider)
	if err != nil {
		return nil, err
	}

	state, err := crypto.GenerateRandomString(oauth2StateBytes)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot generate oauth2 state: %v", err)
		return nil, errorx.Unknown
	}

	store := xcontext.SessionStore(ctx)
	r, w := xcontext.HTTPRequest(ctx), xcontext.HTTPWriter(ctx)
	if store != nil && r != nil && w != nil {
		if err := store.SetValue(r, w, oauth2StateKey, state); err != nil {
			xcontext.Logger(ctx).Errorf("Cannot save oauth2 state: %v", err)
			return nil, errorx.Unknown
		}
	} else if service.RequireState() {
		return nil, errorx.New(errorx.Unavailable, "Session store is not available")
	}

	return &model.AuthorizeURLResponse{URL: service.AuthCodeURL(state), State: state}, nil
}

func (d *authDomain) verifyState(ctx context.Context, state string) error {
	store := xcontext.SessionStore(ctx)
	r, w := xcontext.HTTPRequest(ctx), xcontext.HTTPWriter(ctx)
	if store == nil || r == nil || w == nil {
		return errorx.New(errorx.BadRequest, "Missing oauth2 state")
	}

	expected, err := store.PopString(r, w, oauth2StateKey)
	if err != nil {
		xcontext.Logger(ctx).Warnf("Cannot read oauth2 state: %v", err)
		return errorx.New(errorx.BadRequest, "Missing oauth2 state")
	}

	if expected == "" || expected != state {
		return errorx.New(errorx.BadRequest, "Invalid oauth2 state")
	}

	return nil
}

func (d *authDomain) Login(ctx context.Context, req *model.LoginRequest) (*model.LoginResponse, error) {
	provider, service, err := d.getOAuth2Service(req.Provider)
	if err != nil {
		return nil, err
	}

	if req.Code == "" {
		return nil, errorx.New(errorx.BadRequest, "Empty authorization code")
	}

	if service.RequireState() {
		if err := d.verifyState(ctx, req.State); err != nil {
			return nil, err
		}
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, xcontext.Configs(ctx).Auth.OAuth2Timeout)
	defer cancel()

	serviceUser, err := service.VerifyAuthorizationCode(exchangeCtx, req.Code, req.State)
	if err != nil {
		if errors.Is(exchangeCtx.Err(), context.DeadlineExceeded) {
			xcontext.Logger(ctx).Warnf("Provider %s timed out: %v", provider, err)
			return nil, errorx.New(errorx.ProviderFailure, "Provider %s did not respond in time", provider)
		}

		xcontext.Logger(ctx).Warnf("Cannot verify authorization code of %s: %v", provider, err)
		return nil, errorx.New(errorx.ProviderFailure, "Cannot verify authorization code")
	}

	if serviceUser.ID == "" {
		return nil, errorx.New(errorx.ProviderFailure, "Provider %s returned no subject", provider)
	}

	return d.loginWithIdentity(ctx, provider, serviceUser, common.DeviceInfo(ctx, req.DeviceInfo))
}

func (d *authDomain) loginWithIdentity(
	ctx context.Context, provider entity.Provider, serviceUser authenticator.OAuth2User, device string,
) (*model.LoginResponse, error) {
	now := time.Now()
	ip := common.ClientIP(ctx, xcontext.Configs(ctx).ApiServer.TrustProxy)

	account, isNew, err := d.resolveIdentity(ctx, provider, serviceUser, ip, now)
	if errors.Is(err, errorx.Error{Code: errorx.DuplicateIdentity}) {
		// A concurrent first login linked the same identity; it is found now.
		account, isNew, err = d.resolveIdentity(ctx, provider, serviceUser, ip, now)
	}
	if err != nil {
		return nil, err
	}

	session, err := d.createSession(ctx, account.ID, device, ip, now,
		xcontext.Configs(ctx).Auth.SessionToken.MaxPerAccount-1)
	if err != nil {
		return nil, err
	}

	accessToken, err := d.issueAccessToken(account)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot issue access token: %v", err)
		return nil, errorx.Unknown
	}

	common.PromCounters[common.LoginTotal].
		WithLabelValues(string(provider), strconv.FormatBool(isNew)).Inc()

	return &model.LoginResponse{
		AccessToken:  accessToken,
		SessionToken: session.Secret,
		TokenType:    bearerTokenType,
		ExpiresIn:    int64(d.codec.AccessTokenTTL().Seconds()),
		Account:      model.ConvertAccount(account),
		IsNewAccount: isNew,
	}, nil
}

// resolveIdentity finds or creates the account and link of a provider
// identity and records the login on both, in one transaction.
func (d *authDomain) resolveIdentity(
	ctx context.Context,
	provider entity.Provider,
	serviceUser authenticator.OAuth2User,
	ip string,
	now time.Time,
) (*entity.Account, bool, error) {
	ctx = xcontext.WithDBTransaction(ctx)
	defer xcontext.WithRollbackDBTransaction(ctx)

	isNew := false
	var account *entity.Account
	link, err := d.identityLinkRepo.GetByProviderAndSubject(ctx, provider, serviceUser.ID)
	switch {
	case err == nil:
		account, err = d.accountRepo.GetByID(ctx, link.AccountID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, false, errorx.New(errorx.AccountNotFound, "Linked account not found")
			}

			xcontext.Logger(ctx).Errorf("Cannot get account: %v", err)
			return nil, false, errorx.Unknown
		}

		updated := link.
			WithProfile(serviceUser.Email, serviceUser.Name, serviceUser.AvatarURL).
			WithProviderTokens(serviceUser.AccessToken, serviceUser.RefreshToken, serviceUser.ExpiresAt, serviceUser.Scope).
			Activate()
		link = &updated

	case errors.Is(err, gorm.ErrRecordNotFound):
		account, isNew, err = d.findOrCreateAccount(ctx, serviceUser)
		if err != nil {
			return nil, false, err
		}

		newLink := entity.NewIdentityLink(account.ID, provider, serviceUser.ID).
			WithProfile(serviceUser.Email, serviceUser.Name, serviceUser.AvatarURL).
			WithProviderTokens(serviceUser.AccessToken, serviceUser.RefreshToken, serviceUser.ExpiresAt, serviceUser.Scope)
		newLink.ID = uuid.NewString()
		if err := d.identityLinkRepo.Create(ctx, &newLink); err != nil {
			var errx errorx.Error
			if errors.As(err, &errx) {
				return nil, false, errx
			}

			xcontext.Logger(ctx).Errorf("Cannot create identity link: %v", err)
			return nil, false, errorx.Unknown
		}
		link = &newLink

	default:
		xcontext.Logger(ctx).Errorf("Cannot get identity link: %v", err)
		return nil, false, errorx.Unknown
	}

	if !link.IsPrimary {
		_, err := d.identityLinkRepo.GetPrimary(ctx, account.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			promoted := link.Promote()
			link = &promoted
		} else if err != nil {
			xcontext.Logger(ctx).Errorf("Cannot get primary identity link: %v", err)
			return nil, false, errorx.Unknown
		}
	}

	loggedIn := link.LoggedIn(now)
	if err := d.identityLinkRepo.Update(ctx, &loggedIn); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot update identity link: %v", err)
		return nil, false, errorx.Unknown
	}

	updatedAccount := account.
		WithProfile(serviceUser.Email, serviceUser.Name, serviceUser.AvatarURL).
		LoggedIn(ip, now)
	if err := d.accountRepo.Save(ctx, &updatedAccount); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot record last login: %v", err)
		return nil, false, errorx.Unknown
	}

	xcontext.WithCommitDBTransaction(ctx)
	return &updatedAccount, isNew, nil
}

func (d *authDomain) findOrCreateAccount(
	ctx context.Context, serviceUser authenticator.OAuth2User,
) (*entity.Account, bool, error) {
	if serviceUser.Email != "" {
		account, err := d.accountRepo.GetByEmail(ctx, serviceUser.Email)
		if err == nil {
			return account, false, nil
		}

		if !errors.Is(err, gorm.ErrRecordNotFound) {
			xcontext.Logger(ctx).Errorf("Cannot get account by email: %v", err)
			return nil, false, errorx.Unknown
		}
	}

	account := &entity.Account{
		Base:          entity.Base{ID: uuid.NewString()},
		Email:         serviceUser.Email,
		DisplayName:   serviceUser.Name,
		AvatarURL:     serviceUser.AvatarURL,
		EmailVerified: serviceUser.Email != "",
		Role:          entity.UserRole,
	}
	if err := d.accountRepo.Create(ctx, account); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot create account: %v", err)
		return nil, false, errorx.Unknown
	}

	return account, true, nil
}

func (d *authDomain) issueAccessToken(account *entity.Account) (string, error) {
	if account.IsAdmin() {
		return d.codec.IssueAdminToken(account.ID, account.Email, string(account.Role))
	}

	return d.codec.IssueAccessToken(account.ID, account.Email)
}

func (d *authDomain) lockAccount(accountID string) func() {
	mutex, _ := d.accountLocks.LoadOrStore(accountID, &sync.Mutex{})
	mutex.Lock()
	return mutex.Unlock
}

// createSession trims the account down to maxBefore valid sessions, then
// creates a new one.
func (d *authDomain) createSession(
	ctx context.Context, accountID, device, ip string, now time.Time, maxBefore int,
) (*entity.SessionToken, error) {
	unlock := d.lockAccount(accountID)
	defer unlock()

	if _, err := d.ensureUnderLimit(ctx, accountID, maxBefore, now); err != nil {
		return nil, err
	}

	session, err := d.sessionTokenRepo.Create(ctx, accountID,
		xcontext.Configs(ctx).Auth.SessionToken.Expiration, device, ip, now)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot create session token: %v", err)
		return nil, errorx.Unknown
	}

	return session, nil
}

func (d *authDomain) EnsureUnderLimit(ctx context.Context, accountID string, maxSessions int) (int, error) {
	unlock := d.lockAccount(accountID)
	defer unlock()

	return d.ensureUnderLimit(ctx, accountID, maxSessions, time.Now())
}

// ensureUnderLimit revokes the least recently used valid sessions until at
// most maxSessions remain. The caller must hold the account lock.
func (d *authDomain) ensureUnderLimit(
	ctx context.Context, accountID string, maxSessions int, now time.Time,
) (int, error) {
	if maxSessions < 0 {
		maxSessions = 0
	}

	count, err := d.sessionTokenRepo.CountValidByAccountID(ctx, accountID, now)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot count valid sessions: %v", err)
		return 0, errorx.Unknown
	}

	if count <= int64(maxSessions) {
		return 0, nil
	}

	candidates, err := d.sessionTokenRepo.GetEvictionCandidates(ctx, accountID, now)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get eviction candidates: %v", err)
		return 0, errorx.Unknown
	}

	excess := int(count) - maxSessions
	revoked := 0
	for i := 0; i < excess && i < len(candidates); i++ {
		if err := d.sessionTokenRepo.Revoke(ctx, candidates[i].ID, now); err != nil {
			xcontext.Logger(ctx).Errorf("Cannot revoke session %d: %v", candidates[i].ID, err)
			return revoked, errorx.Unknown
		}
		revoked++
	}

	common.PromCounters[common.SessionEvictionTotal].WithLabelValues().Add(float64(revoked))
	xcontext.Logger(ctx).Infof("Revoked %d sessions of account %s over the ceiling", revoked, accountID)
	return revoked, nil
}

// sessionSecret falls back to the session token cookie for browser clients.
func (d *authDomain) sessionSecret(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}

	return common.CookieValue(ctx, xcontext.Configs(ctx).Auth.SessionToken.Name)
}

func (d *authDomain) Refresh(ctx context.Context, req *model.RefreshRequest) (*model.RefreshResponse, error) {
	req.SessionToken = d.sessionSecret(ctx, req.SessionToken)
	if req.SessionToken == "" {
		return nil, errorx.New(errorx.BadRequest, "Empty session token")
	}

	now := time.Now()
	session, err := d.sessionTokenRepo.GetBySecret(ctx, req.SessionToken)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.SessionNotFound, "Invalid session token")
		}

		xcontext.Logger(ctx).Errorf("Cannot get session token: %v", err)
		return nil, errorx.Unknown
	}

	if !session.IsValid(now) {
		return nil, errorx.New(errorx.SessionExpiredOrRevoked, "Session token is expired or revoked")
	}

	account, err := d.accountRepo.GetByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.AccountNotFound, "Account not found")
		}

		xcontext.Logger(ctx).Errorf("Cannot get account: %v", err)
		return nil, errorx.Unknown
	}

	accessToken, err := d.issueAccessToken(account)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot issue access token: %v", err)
		return nil, errorx.Unknown
	}

	device := common.DeviceInfo(ctx, req.DeviceInfo)
	ip := common.ClientIP(ctx, xcontext.Configs(ctx).ApiServer.TrustProxy)
	touched := session.Touch(device, ip, now)
	if err := d.sessionTokenRepo.UpdateUsage(ctx, &touched); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot update session usage: %v", err)
		return nil, errorx.Unknown
	}

	secret := req.SessionToken
	rotated := false
	if touched.Remaining(now) < xcontext.Configs(ctx).Auth.SessionToken.RotateBefore {
		newSession, err := d.rotateSession(ctx, &touched, now)
		if err != nil {
			return nil, err
		}

		secret = newSession.Secret
		rotated = true
	}

	common.PromCounters[common.SessionRefreshTotal].WithLabelValues(strconv.FormatBool(rotated)).Inc()

	return &model.RefreshResponse{
		AccessToken:  accessToken,
		SessionToken: secret,
		TokenType:    bearerTokenType,
		ExpiresIn:    int64(d.codec.AccessTokenTTL().Seconds()),
		Rotated:      rotated,
	}, nil
}

// rotateSession replaces old by a new session of the same device. The old
// session is revoked in the same transaction the new one is created in.
func (d *authDomain) rotateSession(
	ctx context.Context, old *entity.SessionToken, now time.Time,
) (*entity.SessionToken, error) {
	unlock := d.lockAccount(old.AccountID)
	defer unlock()

	// The old session is still counted here and is revoked below, so the
	// ceiling holds after the swap.
	maxSessions := xcontext.Configs(ctx).Auth.SessionToken.MaxPerAccount
	if _, err := d.ensureUnderLimit(ctx, old.AccountID, maxSessions, now); err != nil {
		return nil, err
	}

	ctx = xcontext.WithDBTransaction(ctx)
	defer xcontext.WithRollbackDBTransaction(ctx)

	session, err := d.sessionTokenRepo.Create(ctx, old.AccountID,
		xcontext.Configs(ctx).Auth.SessionToken.Expiration, old.Device, old.IP, now)
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot create rotated session token: %v", err)
		return nil, errorx.Unknown
	}

	if err := d.sessionTokenRepo.Revoke(ctx, old.ID, now); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot revoke rotated session token: %v", err)
		return nil, errorx.Unknown
	}

	xcontext.WithCommitDBTransaction(ctx)
	return session, nil
}

func (d *authDomain) Logout(ctx context.Context, req *model.LogoutRequest) (*model.LogoutResponse, error) {
	req.SessionToken = d.sessionSecret(ctx, req.SessionToken)
	if req.SessionToken == "" {
		return nil, errorx.New(errorx.BadRequest, "Empty session token")
	}

	session, err := d.sessionTokenRepo.GetBySecret(ctx, req.SessionToken)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errorx.New(errorx.SessionNotFound, "Invalid session token")
		}

		xcontext.Logger(ctx).Errorf("Cannot get session token: %v", err)
		return nil, errorx.Unknown
	}

	if session.Revoked {
		return nil, errorx.New(errorx.SessionExpiredOrRevoked, "Session token is already revoked")
	}

	if err := d.sessionTokenRepo.Revoke(ctx, session.ID, time.Now()); err != nil {
		xcontext.Logger(ctx).Errorf("Cannot revoke session token: %v", err)
		return nil, errorx.Unknown
	}

	return &model.LogoutResponse{}, nil
}

func (d *authDomain) LogoutAll(ctx context.Context, req *model.LogoutAllRequest) (*model.LogoutAllResponse, error) {
	accountID := xcontext.RequestUserID(ctx)
	count, err := d.sessionTokenRepo.RevokeAllByAccountID(ctx, accountID, time.Now())
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot revoke all session tokens: %v", err)
		return nil, errorx.Unknown
	}

	xcontext.Logger(ctx).Infof("Revoked %d sessions of account %s", count, accountID)
	return &model.LogoutAllResponse{RevokedCount: count}, nil
}

func (d *authDomain) LogoutDevice(
	ctx context.Context, req *model.LogoutDeviceRequest,
) (*model.LogoutDeviceResponse, error) {
	if req.DeviceInfo == "" {
		return nil, errorx.New(errorx.BadRequest, "Empty device info")
	}

	count, err := d.sessionTokenRepo.RevokeByDevice(ctx, xcontext.RequestUserID(ctx), req.DeviceInfo, time.Now())
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot revoke device session tokens: %v", err)
		return nil, errorx.Unknown
	}

	return &model.LogoutDeviceResponse{RevokedCount: count}, nil
}

func (d *authDomain) GetSessions(
	ctx context.Context, req *model.GetSessionsRequest,
) (*model.GetSessionsResponse, error) {
	sessions, err := d.sessionTokenRepo.GetValidByAccountID(ctx, xcontext.RequestUserID(ctx), time.Now())
	if err != nil {
		xcontext.Logger(ctx).Errorf("Cannot get sessions: %v", err)
		return nil, errorx.Unknown
	}

	result := []model.Session{}
	for i := range sessions {
		result = append(result, model.ConvertSession(&sessions[i]))
	}

	return &model.GetSessionsResponse{Sessions: result}, nil
}
