package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryms/internal/apperr"
	"libraryms/internal/domain"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	i, err := NewIssuer(Config{Secret: []byte("test-secret"), AccessTTL: 5 * time.Minute, RefreshTTL: 24 * time.Hour})
	require.NoError(t, err)
	return i
}

func TestIssueAndParse(t *testing.T) {
	i := newTestIssuer(t)
	p := domain.Principal{Role: domain.RoleBorrower, ID: 7, Username: "alice"}

	pair, err := i.Issue(p)
	require.NoError(t, err)

	got, err := i.Parse(pair.Access, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = i.Parse(pair.Refresh, TokenAccess)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestRefresh(t *testing.T) {
	i := newTestIssuer(t)
	pair, err := i.Issue(domain.Principal{Role: domain.RoleAuthor, ID: 3, Username: "tolkien"})
	require.NoError(t, err)

	access, err := i.Refresh(pair.Refresh)
	require.NoError(t, err)
	got, err := i.Parse(access, TokenAccess)
	require.NoError(t, err)
	assert.True(t, got.IsAuthor())

	_, err = i.Refresh(pair.Access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_Expired(t *testing.T) {
	i := newTestIssuer(t)
	i.now = func() time.Time { return time.Now().Add(-time.Hour) }
	pair, err := i.Issue(domain.Principal{Role: domain.RoleBorrower, ID: 1, Username: "bob"})
	require.NoError(t, err)

	i.now = time.Now
	_, err = i.Parse(pair.Access, TokenAccess)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestParse_WrongSecret(t *testing.T) {
	pair, err := newTestIssuer(t).Issue(domain.Principal{Role: domain.RoleBorrower, ID: 1, Username: "bob"})
	require.NoError(t, err)

	other, err := NewIssuer(Config{Secret: []byte("other"), AccessTTL: time.Minute})
	require.NoError(t, err)
	_, err = other.Parse(pair.Access, TokenAccess)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
}

func TestNewIssuer_EmptySecret(t *testing.T) {
	_, err := NewIssuer(Config{})
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	i := newTestIssuer(t)
	pair, err := i.Issue(domain.Principal{Role: domain.RoleBorrower, ID: 9, Username: "carol"})
	require.NoError(t, err)

	var seen domain.Principal
	h := Middleware(i)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.Access)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(9), seen.ID)
}
