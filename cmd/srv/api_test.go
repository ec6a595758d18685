package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/studymate/backend/pkg/errorx"
	"github.com/studymate/backend/pkg/testutil"
	"github.com/studymate/backend/pkg/xcontext"
)

type apiResponse struct {
	Code int64           `json:"code"`
	Data json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) *srv {
	ctx := testutil.MockContext()
	testutil.CreateFixtureDb(ctx)

	cfg := xcontext.Configs(ctx)
	cfg.Auth.Google.ClientID = ""
	cfg.Auth.Naver.ClientID = ""
	cfg.Prometheus.Enable = true

	s := &srv{ctx: xcontext.WithConfigs(ctx, cfg)}
	s.loadCodec()
	s.loadRepos()
	s.loadDomains()
	s.loadRouter()
	return s
}

func callApi(t *testing.T, s *srv, path, bearer string) apiResponse {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	s.router.Handler(nil).ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestServiceRoutes(t *testing.T) {
	s := newTestServer(t)

	serviceToken, err := s.codec.IssueServiceToken("reporting")
	require.NoError(t, err)
	accessToken, err := s.codec.IssueAccessToken(testutil.Account1.ID, testutil.Account1.Email)
	require.NoError(t, err)

	resp := callApi(t, s, "/service/getAnomalyReport", serviceToken)
	require.Equal(t, int64(0), resp.Code)
	require.NotEmpty(t, resp.Data)

	resp = callApi(t, s, "/service/getTokenSummary?token="+accessToken, serviceToken)
	require.Equal(t, int64(0), resp.Code)

	// Account tokens cannot call service apis.
	resp = callApi(t, s, "/service/getAnomalyReport", accessToken)
	require.Equal(t, int64(errorx.PermissionDenied), resp.Code)

	resp = callApi(t, s, "/service/getAnomalyReport", "")
	require.Equal(t, int64(errorx.Unauthenticated), resp.Code)

	// Service tokens do not open account or admin apis.
	resp = callApi(t, s, "/getMe", serviceToken)
	require.Equal(t, int64(errorx.Unauthenticated), resp.Code)

	resp = callApi(t, s, "/getAnomalyReport", serviceToken)
	require.Equal(t, int64(errorx.Unauthenticated), resp.Code)
}
