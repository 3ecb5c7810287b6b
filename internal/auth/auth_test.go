package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestIssueVerify(t *testing.T) {
	a := New("secret", time.Hour)
	tok, err := a.Issue("user-1")
	require.NoError(t, err)

	sub, err := a.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "user-1", sub)
}

func TestVerifyRejects(t *testing.T) {
	a := New("secret", time.Hour)

	other, err := New("other", time.Hour).Issue("user-1")
	require.NoError(t, err)

	expired := New("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-3 * time.Hour) }
	old, err := expired.Issue("user-1")
	require.NoError(t, err)

	noneTok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{Subject: "user-1"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	reservedSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "userID"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"wrong key":    other,
		"expired":      old,
		"wrong alg":    noneTok,
		"not a token":  "abc",
		"reserved sub": reservedSub,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.Verify(tok)
			require.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestIssueWithoutSecret(t *testing.T) {
	_, err := New("", 0).Issue("user-1")
	require.Error(t, err)
}

func TestIssueRejectsReservedKey(t *testing.T) {
	_, err := New("secret", time.Hour).Issue("darkMode")
	require.Error(t, err)
}

func TestUserID(t *testing.T) {
	signed := New("secret", time.Hour)
	tok, err := signed.Issue("user-9")
	require.NoError(t, err)

	tests := []struct {
		name    string
		auth    *Authenticator
		headers map[string]string
		want    string
		wantErr bool
	}{
		{"guest header", New("", 0), map[string]string{IdentityHeader: "guest_1"}, "guest_1", false},
		{"guest missing", New("", 0), nil, "", true},
		{"guest identity key", New("", 0), map[string]string{IdentityHeader: "userID"}, "", true},
		{"guest reserved key", New("", 0), map[string]string{IdentityHeader: " communityPosts "}, "", true},
		{"bearer", signed, map[string]string{"Authorization": "Bearer " + tok}, "user-9", false},
		{"bearer missing", signed, map[string]string{IdentityHeader: "guest_1"}, "", true},
		{"basic scheme", signed, map[string]string{"Authorization": "Basic abc"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			got, err := tt.auth.UserID(r)
			if tt.wantErr {
				require.True(t, errors.Is(err, ErrUnauthorized))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestMiddleware(t *testing.T) {
	a := New("", 0)
	var seen string
	h := a.Middleware(func(w http.ResponseWriter, err error) {
		w.WriteHeader(http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFrom(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	r.Header.Set(IdentityHeader, "guest_42")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "guest_42", seen)
}
