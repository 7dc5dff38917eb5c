package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

// ownerEcho responds 200 and records the owner seen by the inner handler.
func ownerEcho(captured *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = GetOwner(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func serve(t *testing.T, authHeader string) (int, string) {
	t.Helper()
	var owner string
	handler := OwnerMiddleware(testSecret)(ownerEcho(&owner))

	req := httptest.NewRequest(http.MethodGet, "/api/images", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w.Code, owner
}

func TestOwnerMiddleware_AcceptsValidToken(t *testing.T) {
	token, err := IssueToken(testSecret, "user-42", time.Hour)
	require.NoError(t, err)

	code, owner := serve(t, "Bearer "+token)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "user-42", owner)
}

func TestOwnerMiddleware_RejectsMissingHeader(t *testing.T) {
	code, owner := serve(t, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Empty(t, owner)
}

func TestOwnerMiddleware_RejectsNonBearer(t *testing.T) {
	code, _ := serve(t, "Basic dXNlcjpwYXNz")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestOwnerMiddleware_RejectsWrongSecret(t *testing.T) {
	token, err := IssueToken("other-secret", "user-42", time.Hour)
	require.NoError(t, err)

	code, _ := serve(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestOwnerMiddleware_RejectsExpiredToken(t *testing.T) {
	token, err := IssueToken(testSecret, "user-42", -time.Minute)
	require.NoError(t, err)

	code, _ := serve(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestOwnerMiddleware_RejectsTokenWithoutExpiry(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-42"}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	code, _ := serve(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestOwnerMiddleware_RejectsTokenWithoutSubject(t *testing.T) {
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	code, _ := serve(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestOwnerMiddleware_RejectsNoneAlgorithm(t *testing.T) {
	claims := jwt.RegisteredClaims{Subject: "user-42", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	code, _ := serve(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestOwnerMiddleware_EmptySecretRejectsEverything(t *testing.T) {
	token, err := IssueToken(testSecret, "user-42", time.Hour)
	require.NoError(t, err)

	var owner string
	handler := OwnerMiddleware("")(ownerEcho(&owner))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIssueTokenValidation(t *testing.T) {
	_, err := IssueToken("", "user", time.Hour)
	assert.Error(t, err)

	_, err = IssueToken(testSecret, "", time.Hour)
	assert.Error(t, err)
}

func TestGetOwner_EmptyContext(t *testing.T) {
	ctx := httptest.NewRequest(http.MethodGet, "/", nil).Context()
	assert.Equal(t, "", GetOwner(ctx))
}
