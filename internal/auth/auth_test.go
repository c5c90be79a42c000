package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Kaz-z/impact-engine-report-builder/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newJWKSServer 启动提供 JWKS 的测试服务
func newJWKSServer(t *testing.T, key *rsa.PrivateKey) *httptest.Server {
	t.Helper()
	jwks := map[string]interface{}{
		"keys": []map[string]string{{
			"kid": "k1",
			"kty": "RSA",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, key *rsa.PrivateKey, issuer string, exp time.Time) string {
	t.Helper()
	claims := &auth.KeycloakClaims{
		Sub:               "user-1",
		PreferredUsername: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	claims.RealmAccess.Roles = []string{"reviewer"}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "k1"
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

// TestKeycloakTokenValidator_ValidateToken 测试 token 验证
func TestKeycloakTokenValidator_ValidateToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := newJWKSServer(t, key)
	issuer := srv.URL + "/realms/impact"
	v := auth.NewKeycloakTokenValidator(issuer)

	claims, err := v.ValidateToken(signToken(t, key, issuer, time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Sub)
	assert.Equal(t, []string{"reviewer"}, claims.RealmAccess.Roles)

	_, err = v.ValidateToken(signToken(t, key, issuer, time.Now().Add(-time.Hour)))
	assert.Error(t, err)

	_, err = v.ValidateToken(signToken(t, key, "https://other.example.org", time.Now().Add(time.Hour)))
	assert.Error(t, err)

	_, err = v.ValidateToken("not-a-token")
	assert.Error(t, err)
}

// TestKeycloakAuthMiddleware 测试认证中间件写入用户
func TestKeycloakAuthMiddleware(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := newJWKSServer(t, key)
	issuer := srv.URL + "/realms/impact"

	router := gin.New()
	router.Use(auth.KeycloakAuthMiddleware(auth.NewKeycloakTokenValidator(issuer)))
	router.GET("/me", func(c *gin.Context) {
		user, ok := auth.UserFromContext(c.Request.Context())
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"id": user.ID, "reviewer": user.HasRole("reviewer")})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, key, issuer, time.Now().Add(time.Hour)))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"user-1","reviewer":true}`, w.Body.String())
}

// TestHeaderUserMiddleware 测试开发环境请求头用户
func TestHeaderUserMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(auth.HeaderUserMiddleware())
	router.GET("/me", func(c *gin.Context) {
		user, ok := auth.UserFromContext(c.Request.Context())
		if !ok {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": user.ID, "roles": user.Roles})
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-User-ID", "bob")
	req.Header.Set("X-User-Roles", "editor, reviewer")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.JSONEq(t, `{"id":"bob","roles":["editor","reviewer"]}`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, "anonymous", w.Body.String())
}

// countingAuthorizer 记录调用次数的权限检查
type countingAuthorizer struct {
	mu      sync.Mutex
	calls   int
	allowed map[string]bool
	tuples  []string
}

func (a *countingAuthorizer) CheckPermission(_ context.Context, userID, relation, objectType, objectID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return a.allowed[userID+"#"+relation+"@"+auth.Object(objectType, objectID)], nil
}

func (a *countingAuthorizer) WriteTuple(_ context.Context, user, relation, object string) error {
	a.tuples = append(a.tuples, user+"#"+relation+"@"+object)
	return nil
}

// TestCachedOpenFGAClient 测试权限缓存
func TestCachedOpenFGAClient(t *testing.T) {
	inner := &countingAuthorizer{allowed: map[string]bool{"alice#editor@charity:c1": true}}
	cached := auth.NewCachedOpenFGAClient(inner, auth.NewPermissionCache(time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := cached.CheckPermission(ctx, "alice", auth.RelationEditor, auth.ObjectCharity, "c1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, inner.calls)

	ok, err := cached.CheckPermission(ctx, "alice", auth.RelationEditor, auth.ObjectCharity, "c2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, inner.calls)

	require.NoError(t, cached.WriteTuple(ctx, "programme:default", "programme", "charity:c1"))
	assert.Equal(t, []string{"programme:default#programme@charity:c1"}, inner.tuples)

	_, err = cached.CheckPermission(ctx, "alice", auth.RelationEditor, auth.ObjectCharity, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

// TestPermissionCache_Expiry 测试缓存过期
func TestPermissionCache_Expiry(t *testing.T) {
	cache := auth.NewPermissionCache(10 * time.Millisecond)
	cache.Set("k", true)
	v, ok := cache.Get("k")
	assert.True(t, ok)
	assert.True(t, v)

	time.Sleep(20 * time.Millisecond)
	_, ok = cache.Get("k")
	assert.False(t, ok)
}

// TestGetPermissionModel 测试权限模型包含的类型
func TestGetPermissionModel(t *testing.T) {
	model := auth.GetPermissionModel()
	assert.Contains(t, model, "type charity")
	assert.Contains(t, model, "type programme")
	assert.Contains(t, model, "define reviewer: [user]")
}
