package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"agrichain/crypto"
	"agrichain/gateway/middleware"
	"agrichain/native/escrow"
)

type staticSecret string

func (s staticSecret) Get() (string, error) { return string(s), nil }

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokenCommandIssuesVerifiableToken(t *testing.T) {
	id := [20]byte{0x42}
	var out bytes.Buffer
	err := runToken([]string{"-subject", crypto.FormatIdentity(id), "-ttl", "5m"}, &out, staticSecret(testSecret))
	require.NoError(t, err)
	token := strings.TrimSpace(out.String())
	require.NotEmpty(t, token)

	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		HMACSecret: testSecret,
		Issuer:     "agrichain",
		Audience:   "escrowd",
	}, nil)
	var got [20]byte
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = middleware.IdentityFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, id, got)
}

func TestTokenCommandRejectsBadSubject(t *testing.T) {
	var out bytes.Buffer
	err := runToken([]string{"-subject", "nobody"}, &out, staticSecret(testSecret))
	require.ErrorContains(t, err, "subject")
	require.Empty(t, out.String())
}

func TestEscrowKeyCommand(t *testing.T) {
	buyer := [20]byte{0x01}
	seller := [20]byte{0x02}
	var out bytes.Buffer
	err := run([]string{keyCommand, "-buyer", crypto.FormatIdentity(buyer), "-seller", crypto.FormatIdentity(seller), "-details", "maize 2t"}, &out)
	require.NoError(t, err)
	key := escrow.DeriveKey(buyer, seller, "maize 2t")
	require.Contains(t, out.String(), "key: "+key.String())
	require.Contains(t, out.String(), "custody: "+crypto.FormatIdentity(escrow.Custody(key)))
}

func TestKeygenAndIdentityRoundTrip(t *testing.T) {
	t.Setenv(defaultPassEnv, "correct horse")
	path := filepath.Join(t.TempDir(), "agri.keystore")

	var out bytes.Buffer
	require.NoError(t, run([]string{keygenCommand, "-keystore", path}, &out))
	require.Contains(t, out.String(), "identity: agri1")
	identity := strings.TrimPrefix(strings.SplitN(out.String(), "\n", 2)[0], "identity: ")

	out.Reset()
	require.NoError(t, run([]string{identityCommand, "-keystore", path}, &out))
	require.Equal(t, identity, strings.TrimSpace(out.String()))

	err := run([]string{keygenCommand, "-keystore", path}, &out)
	require.ErrorContains(t, err, "already exists")
}

func TestUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	require.Error(t, run([]string{"bogus"}, &out))
	require.Contains(t, out.String(), "Usage")
}
