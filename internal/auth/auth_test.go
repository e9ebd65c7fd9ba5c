package auth

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
)

func TestJWTVerifierRoundTrip(t *testing.T) {
	v := NewJWTVerifier("test-secret")
	token, err := v.Issue("user-1", "pilot@example.com", time.Hour)
	require.NoError(t, err)

	user, err := v.VerifyAccessToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, "pilot@example.com", user.Email)
}

func TestJWTVerifierRejects(t *testing.T) {
	v := NewJWTVerifier("test-secret")

	expired, err := v.Issue("user-1", "", -time.Minute)
	require.NoError(t, err)

	other, err := NewJWTVerifier("other-secret").Issue("user-1", "", time.Hour)
	require.NoError(t, err)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"wrong secret", other},
		{"missing subject", noSub},
		{"missing expiry", noExp},
		{"garbage", "not-a-token"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.VerifyAccessToken(context.Background(), tc.token)
			assert.Error(t, err)
		})
	}
}

func TestSupabaseVerifyAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"msg":"bad jwt"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"user-9","email":"nine@example.com"}`))
	}))
	defer srv.Close()

	c := NewSupabaseClient(srv.URL+"/", "anon")
	user, err := c.VerifyAccessToken(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, User{ID: "user-9", Email: "nine@example.com"}, user)

	_, err = c.VerifyAccessToken(context.Background(), "bad")
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "bad jwt")
}

func TestSupabaseSignUpSendsUsername(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/signup", r.URL.Path)
		var body struct {
			Email string            `json:"email"`
			Data  map[string]string `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@b.c", body.Email)
		assert.Equal(t, "star_pilot", body.Data["username"])
		_, _ = w.Write([]byte(`{"user":{"id":"u1","email":"a@b.c"}}`))
	}))
	defer srv.Close()

	s, err := NewSupabaseClient(srv.URL, "anon").SignUp(context.Background(), "a@b.c", "pw", "star_pilot")
	require.NoError(t, err)
	assert.Empty(t, s.AccessToken, "confirmation pending")
	assert.Equal(t, "u1", s.User.ID)
}

func TestSupabaseRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["refresh_token"] != "r1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid Refresh Token"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok2","refresh_token":"r2","expires_in":3600,"user":{"id":"u1"}}`))
	}))
	defer srv.Close()

	c := NewSupabaseClient(srv.URL, "anon")
	s, err := c.Refresh(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "tok2", s.AccessToken)
	assert.Equal(t, "r2", s.RefreshToken)

	_, err = c.Refresh(context.Background(), "stale")
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "Invalid Refresh Token")

	_, err = c.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, ErrRejected)
}

func TestSupabaseServerErrorIsNotRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewSupabaseClient(srv.URL, "anon").Login(context.Background(), "a@b.c", "pw")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "502")
}

func TestSupabaseLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600,"user":{"id":"u1","email":"a@b.c"}}`))
	}))
	defer srv.Close()

	s, err := NewSupabaseClient(srv.URL, "anon").Login(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok", s.AccessToken)
	assert.Equal(t, "u1", s.User.ID)
}

func TestChainFallsThrough(t *testing.T) {
	local := NewJWTVerifier("secret")
	token, err := local.Issue("user-2", "", time.Hour)
	require.NoError(t, err)

	chain := Chain{NewJWTVerifier("wrong"), local}
	user, err := chain.VerifyAccessToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-2", user.ID)

	_, err = Chain{}.VerifyAccessToken(context.Background(), token)
	assert.Error(t, err)
}
