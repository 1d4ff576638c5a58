package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testAuth = AuthConfig{HMACSecret: "0123456789abcdef0123456789abcdef", Issuer: "agrichain", Audience: "escrowd"}

func TestAuthenticatorInjectsIdentity(t *testing.T) {
	identity := [20]byte{0x0A, 0x0B}
	token, err := IssueToken(testAuth, identity, time.Hour, time.Now())
	require.NoError(t, err)

	var seen [20]byte
	handler := NewAuthenticator(testAuth, nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		require.True(t, ok)
		seen = id
		require.NotEmpty(t, SubjectFromContext(r.Context()))
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/escrows", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, identity, seen)
}

func TestAuthenticatorRejects(t *testing.T) {
	identity := [20]byte{0x0A}
	expired, err := IssueToken(testAuth, identity, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	otherAudience := testAuth
	otherAudience.Audience = "explorer"
	wrongAud, err := IssueToken(otherAudience, identity, time.Hour, time.Now())
	require.NoError(t, err)
	otherSecret := testAuth
	otherSecret.HMACSecret = "ffffffffffffffffffffffffffffffff"
	forged, err := IssueToken(otherSecret, identity, time.Hour, time.Now())
	require.NoError(t, err)

	handler := NewAuthenticator(testAuth, nil).Middleware(okHandler())
	for name, header := range map[string]string{
		"missing":  "",
		"scheme":   "Basic abc",
		"expired":  "Bearer " + expired,
		"audience": "Bearer " + wrongAud,
		"forged":   "Bearer " + forged,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/escrows/x", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			require.Equal(t, http.StatusUnauthorized, res.Code)
		})
	}
}
