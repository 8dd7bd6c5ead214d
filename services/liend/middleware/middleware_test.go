package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"lienledger/rpc"
)

const testSecret = "liend-test-secret"

var testCaller = common.HexToAddress("0xa000000000000000000000000000000000000002")

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func principalHandler(seen *rpc.Principal, found *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen, *found = rpc.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticatorAttachesPrincipal(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "lienledger", Audience: "liend"}, nil)
	var (
		seen  rpc.Principal
		found bool
	)
	handler := auth.Middleware(principalHandler(&seen, &found))

	token := signToken(t, jwt.MapClaims{
		"sub":   testCaller.Hex(),
		"iss":   "lienledger",
		"aud":   []interface{}{"liend"},
		"scope": "lien:write lien:admin",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, found)
	require.Equal(t, testCaller, seen.Caller)
	require.True(t, seen.HasScope(rpc.ScopeWrite))
	require.True(t, seen.HasScope(rpc.ScopeAdmin))
}

func TestAuthenticatorRejectsBadTokens(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "lienledger"}, nil)
	var (
		seen  rpc.Principal
		found bool
	)
	handler := auth.Middleware(principalHandler(&seen, &found))

	cases := map[string]string{
		"wrong issuer": signToken(t, jwt.MapClaims{"sub": testCaller.Hex(), "iss": "other"}),
		"bad subject":  signToken(t, jwt.MapClaims{"sub": "alice", "iss": "lienledger"}),
		"expired":      signToken(t, jwt.MapClaims{"sub": testCaller.Hex(), "iss": "lienledger", "exp": time.Now().Add(-time.Hour).Unix()}),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, found, "anonymous requests carry no principal")
}

func TestDisabledAuthTrustsCallerHeader(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{}, nil)
	var (
		seen  rpc.Principal
		found bool
	)
	handler := auth.Middleware(principalHandler(&seen, &found))
	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.Header.Set(DevCallerHeader, testCaller.Hex())
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, found)
	require.Equal(t, testCaller, seen.Caller)
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RatePerSecond: 1, Burst: 1}, nil)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusTooManyRequests, res.Code)

	other := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	other.RemoteAddr = "10.0.0.6:1234"
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, other)
	require.Equal(t, http.StatusOK, res.Code, "clients are limited independently")
}

func TestRateLimiterKeysByPrincipal(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RatePerSecond: 1, Burst: 1}, nil)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	send := func(caller common.Address) int {
		req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
		req.RemoteAddr = "10.0.0.5:1234"
		req = req.WithContext(rpc.WithPrincipal(req.Context(), rpc.Principal{Caller: caller}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusOK, send(testCaller))
	require.Equal(t, http.StatusTooManyRequests, send(testCaller))
	require.Equal(t, http.StatusOK, send(common.HexToAddress("0xb000000000000000000000000000000000000001")))
}

func TestObservabilityTagsRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewObservability(ObservabilityConfig{}, reg, nil)
	handler := obs.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	require.Equal(t, 1, testutil.CollectAndCount(obs.requests))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "8f14e45f-ceea-467f-a0e6-1234567890ab")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, "8f14e45f-ceea-467f-a0e6-1234567890ab", rec.Header().Get(RequestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://app.example"}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("preflight must not reach the handler")
	}))
	req := httptest.NewRequest(http.MethodOptions, "/rpc", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
