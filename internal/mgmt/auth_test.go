package mgmt

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jwtSecret = []byte("test-jwt-secret")

func jwtApp(t *testing.T) *testEnv {
	t.Helper()
	return newEnv(t, ServerConfig{AuthConfig: AuthConfig{Mode: AuthJWT, JWTSecret: jwtSecret}})
}

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func claimsFor(role Role, ttl time.Duration) Claims {
	return Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops-bot",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
}

func authorized(t *testing.T, env *testEnv, method, path, token string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := env.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestAuth_NoAuth_Mode(t *testing.T) {
	app := testApp(t, "none", "")

	req, _ := http.NewRequest("GET", "/api/v1/sessions", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth_APIKey_Valid(t *testing.T) {
	app := testApp(t, "api-key", "test-secret-key")

	req, _ := http.NewRequest("GET", "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer test-secret-key")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth_APIKey_Missing(t *testing.T) {
	app := testApp(t, "api-key", "test-secret-key")

	req, _ := http.NewRequest("GET", "/api/v1/sessions", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var problem ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "missing_auth", problem.Type)
}

func TestAuth_APIKey_Invalid(t *testing.T) {
	app := testApp(t, "api-key", "test-secret-key")

	req, _ := http.NewRequest("GET", "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var problem ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "invalid_api_key", problem.Type)
}

func TestValidAPIKey(t *testing.T) {
	assert.True(t, validAPIKey("test-secret-key", "test-secret-key"))
	assert.False(t, validAPIKey("test-secret", "test-secret-key"), "prefix")
	assert.False(t, validAPIKey("test-secret-key-2", "test-secret-key"), "longer")
	assert.False(t, validAPIKey("", ""), "unset key matches nothing")
	assert.False(t, validAPIKey("anything", ""))
}

func TestAuth_APIKey_InvalidScheme(t *testing.T) {
	app := testApp(t, "api-key", "test-secret-key")

	req, _ := http.NewRequest("GET", "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Basic dGVzdDp0ZXN0")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuth_ProbeEndpoints_NoAuth(t *testing.T) {
	app := testApp(t, "api-key", "test-secret-key")

	// Probe endpoints should NOT require auth
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		req, _ := http.NewRequest("GET", path, nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err, "path: %s", path)
		assert.Equal(t, http.StatusOK, resp.StatusCode, "path: %s", path)
	}
}

func TestAuth_JWT_Roles(t *testing.T) {
	env := jwtApp(t)
	env.seed(t, "C1", bob)

	readonly := signToken(t, jwt.SigningMethodHS256, jwtSecret, claimsFor(RoleReadOnly, time.Hour))
	assert.Equal(t, http.StatusOK, authorized(t, env, "GET", "/api/v1/sessions/C1", readonly).StatusCode)
	assert.Equal(t, http.StatusForbidden, authorized(t, env, "DELETE", "/api/v1/sessions/C1", readonly).StatusCode)

	operator := signToken(t, jwt.SigningMethodHS256, jwtSecret, claimsFor(RoleOperator, time.Hour))
	assert.Equal(t, http.StatusOK, authorized(t, env, "DELETE", "/api/v1/sessions/C1", operator).StatusCode)
}

func TestAuth_JWT_DefaultsToReadOnly(t *testing.T) {
	env := jwtApp(t)
	env.seed(t, "C1")

	token := signToken(t, jwt.SigningMethodHS256, jwtSecret, claimsFor("", time.Hour))
	assert.Equal(t, http.StatusOK, authorized(t, env, "GET", "/api/v1/stats", token).StatusCode)
	assert.Equal(t, http.StatusForbidden, authorized(t, env, "DELETE", "/api/v1/sessions/C1", token).StatusCode)
}

func TestAuth_JWT_Rejected(t *testing.T) {
	env := jwtApp(t)

	noExpiry := claimsFor(RoleAdmin, time.Hour)
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
	}{
		{"expired", signToken(t, jwt.SigningMethodHS256, jwtSecret, claimsFor(RoleAdmin, -time.Minute))},
		{"wrong secret", signToken(t, jwt.SigningMethodHS256, []byte("other"), claimsFor(RoleAdmin, time.Hour))},
		{"no expiry", signToken(t, jwt.SigningMethodHS256, jwtSecret, noExpiry)},
		{"unknown role", signToken(t, jwt.SigningMethodHS256, jwtSecret, claimsFor("root", time.Hour))},
		{"unsigned", signToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, claimsFor(RoleAdmin, time.Hour))},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := authorized(t, env, "GET", "/api/v1/stats", tt.token)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			var problem ProblemDetail
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
			assert.Equal(t, "invalid_token", problem.Type)
		})
	}
}

func TestAuth_JWT_AdminCancels(t *testing.T) {
	env := jwtApp(t)
	env.seed(t, "C1")

	token := signToken(t, jwt.SigningMethodHS256, jwtSecret, claimsFor(RoleAdmin, time.Hour))
	resp := authorized(t, env, "DELETE", "/api/v1/sessions/C1", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, env.runner.plans, 1)
	assert.Equal(t, "canceled", string(env.runner.plans[0][0].Session.State))
}
