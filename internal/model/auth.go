package model

type AuthorizeURLRequest struct {
	Provider string `json:"provider"`
}

type AuthorizeURLResponse struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

type LoginRequest struct {
	Provider   string `json:"provider"`
	Code       string `json:"code"`
	State      string `json:"state"`
	DeviceInfo string `json:"device_info"`
}

type LoginResponse struct {
	AccessToken  string  `json:"access_token"`
	SessionToken string  `json:"session_token"`
	TokenType    string  `json:"token_type"`
	ExpiresIn    int64   `json:"expires_in"`
	Account      Account `json:"account"`
	IsNewAccount bool    `json:"is_new_account"`
}

type RefreshRequest struct {
	SessionToken string `json:"session_token"`
	DeviceInfo   string `json:"device_info"`
}

type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	SessionToken string `json:"session_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Rotated      bool   `json:"rotated"`
}

type LogoutRequest struct {
	SessionToken string `json:"session_token"`
}

type LogoutResponse struct{}

type LogoutAllRequest struct{}

type LogoutAllResponse struct {
	RevokedCount int64 `json:"revoked_count"`
}

type LogoutDeviceRequest struct {
	DeviceInfo string `json:"device_info"`
}

type LogoutDeviceResponse struct {
	RevokedCount int64 `json:"revoked_count"`
}

type GetSessionsRequest struct{}

type GetSessionsResponse struct {
	Sessions []Session `json:"sessions"`
}

type GetMeRequest struct{}

type GetMeResponse struct {
	Account Account `json:"account"`
}

type GetLinkedIdentitiesRequest struct{}

type GetLinkedIdentitiesResponse struct {
	Identities []IdentityLink `json:"identities"`
}

type UnlinkIdentityRequest struct {
	Provider string `json:"provider"`
}

type UnlinkIdentityResponse struct{}

type VerifyTokenRequest struct {
	Token string `json:"token"`
}

type VerifyTokenResponse struct {
	Valid  bool        `json:"valid"`
	Claims TokenClaims `json:"claims"`
}

type GetTokenSummaryRequest struct {
	Token string `json:"token"`
}

type GetTokenSummaryResponse struct {
	Valid                  bool        `json:"valid"`
	Claims                 TokenClaims `json:"claims"`
	MinutesUntilExpiration int64       `json:"minutes_until_expiration"`
	NeedsRefresh           bool        `json:"needs_refresh"`
	Error                  string      `json:"error,omitempty"`
}

type IssueAdminTokenRequest struct {
	AccountID string `json:"account_id"`
}

type IssueAdminTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type IssueServiceTokenRequest struct {
	ServiceID string `json:"service_id"`
}

type IssueServiceTokenResponse struct {
	ServiceToken string `json:"service_token"`
}

type GetAnomalyReportRequest struct{}

type GetAnomalyReportResponse struct {
	GeneratedAt        string              `json:"generated_at"`
	Window             string              `json:"window"`
	SuspiciousIPs      []SuspiciousIP      `json:"suspicious_ips"`
	SuspiciousAccounts []SuspiciousAccount `json:"suspicious_accounts"`
}

func (r *LoginResponse) TokenInfo() (string, string) {
	return r.AccessToken, r.SessionToken
}

func (r *RefreshResponse) TokenInfo() (string, string) {
	return r.AccessToken, r.SessionToken
}
