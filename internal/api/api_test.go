package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/blinkchat/internal/api"
)

// backend records the last request and replies with a canned response.
type backend struct {
	status int
	reply  string

	method string
	path   string
	auth   string
	body   map[string]any
}

func (b *backend) start(t *testing.T) *api.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.method = r.Method
		b.path = r.URL.Path
		b.auth = r.Header.Get("Authorization")
		b.body = nil
		_ = json.NewDecoder(r.Body).Decode(&b.body)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(b.status)
		_, _ = w.Write([]byte(b.reply))
	}))
	t.Cleanup(srv.Close)
	return api.New(srv.URL + "/api/")
}

func TestRegister(t *testing.T) {
	b := &backend{status: http.StatusCreated, reply: `{"user_id": 7, "username": "bob"}`}
	c := b.start(t)

	acct, err := c.Register(context.Background(), "bob", "pw", "")
	require.NoError(t, err)
	assert.Equal(t, api.Account{UserID: 7, Username: "bob"}, acct)
	assert.Equal(t, http.MethodPost, b.method)
	assert.Equal(t, "/api/auth/register/", b.path)
	assert.Equal(t, map[string]any{"username": "bob", "password": "pw"}, b.body)
	assert.Empty(t, b.auth)
}

func TestToken(t *testing.T) {
	b := &backend{status: http.StatusOK, reply: `{"access": "a.b.c", "refresh": "r"}`}
	c := b.start(t)

	tok, err := c.Token(context.Background(), "bob", "pw")
	require.NoError(t, err)
	assert.Equal(t, "a.b.c", tok.Access)
	assert.Equal(t, "r", tok.Refresh)
	assert.Equal(t, "/api/auth/token/", b.path)
}

func TestMeSendsBearer(t *testing.T) {
	b := &backend{status: http.StatusOK, reply: `{"username": "bob", "display_name": "Bobby"}`}
	c := b.start(t)

	me, err := c.Me(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "Bobby", me.DisplayName)
	assert.Equal(t, http.MethodGet, b.method)
	assert.Equal(t, "Bearer tok", b.auth)
}

func TestCreateReport(t *testing.T) {
	b := &backend{status: http.StatusCreated, reply: `{"id": 42}`}
	c := b.start(t)

	id, err := c.CreateReport(context.Background(), "tok", api.Report{
		ReportedUser: 7,
		Reason:       "spam",
		SessionID:    "s1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, "/api/reports/", b.path)
	assert.Equal(t, map[string]any{
		"reported_user": float64(7),
		"reason":        "spam",
		"description":   "",
		"session_id":    "s1",
	}, b.body)
}

func TestErrorDetail(t *testing.T) {
	tests := []struct {
		name   string
		status int
		reply  string
		want   string
	}{
		{"detail", http.StatusBadRequest, `{"detail": "username taken"}`, "username taken"},
		{"message", http.StatusBadRequest, `{"message": "nope"}`, "nope"},
		{"plain", http.StatusBadGateway, `upstream down`, "upstream down"},
		{"empty", http.StatusInternalServerError, ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &backend{status: tt.status, reply: tt.reply}
			_, err := b.start(t).Token(context.Background(), "u", "p")

			var apiErr *api.Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.want, apiErr.Detail)
		})
	}
}

func TestUnauthorized(t *testing.T) {
	b := &backend{status: http.StatusUnauthorized, reply: `{"detail": "Given token not valid"}`}
	_, err := b.start(t).Me(context.Background(), "stale")
	assert.ErrorIs(t, err, api.ErrUnauthorized)
}

func TestParseIdentity(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  7,
		"username": "bob",
		"exp":      exp.Unix(),
	}).SignedString([]byte("not-our-key"))
	require.NoError(t, err)

	id, err := api.ParseIdentity(signed)
	require.NoError(t, err)
	assert.Equal(t, "7", id.UserID)
	assert.Equal(t, "bob", id.Username)
	assert.True(t, exp.Equal(id.ExpiresAt))
	assert.False(t, id.Expired(time.Now()))
	assert.True(t, id.Expired(exp.Add(time.Minute)))
}

func TestParseIdentityRejects(t *testing.T) {
	_, err := api.ParseIdentity("")
	assert.ErrorIs(t, err, api.ErrNoToken)

	_, err = api.ParseIdentity("not-a-jwt")
	assert.Error(t, err)
}

func TestParseIdentitySubjectFallback(t *testing.T) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "99",
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	id, err := api.ParseIdentity(signed)
	require.NoError(t, err)
	assert.Equal(t, "99", id.UserID)
	assert.True(t, id.ExpiresAt.IsZero())
	assert.False(t, id.Expired(time.Now()))
}
