package auth

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtsim/internal/config"
	"courtsim/internal/redis"
	"courtsim/internal/storage"
)

func TestAuthIssueValidateRevoke(t *testing.T) {
	db := openTestDB(t)
	insertHearing(t, db, "h-1")

	svc := NewService(db, nil, time.Hour)
	token, err := svc.IssueToken(context.Background(), "h-1")
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	if token == "" {
		t.Fatalf("expected token")
	}
	hearingID, err := svc.ValidateToken(context.Background(), token)
	if err != nil || hearingID != "h-1" {
		t.Fatalf("ValidateToken failed: id=%s err=%v", hearingID, err)
	}
	if err := svc.RevokeToken(context.Background(), token); err != nil {
		t.Fatalf("RevokeToken error: %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), token); err == nil {
		t.Fatalf("expected error after revoke")
	}

	token2, err := svc.IssueToken(context.Background(), "h-1")
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	if err := svc.RevokeHearingTokens(context.Background(), "h-1"); err != nil {
		t.Fatalf("RevokeHearingTokens error: %v", err)
	}
	_, err = svc.ValidateToken(context.Background(), token2)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthValidateExpiredToken(t *testing.T) {
	db := openTestDB(t)
	insertHearing(t, db, "h-2")

	svc := NewService(db, nil, 10*time.Millisecond)
	token, err := svc.IssueToken(context.Background(), "h-2")
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := svc.ValidateToken(context.Background(), token); err == nil {
		t.Fatalf("expected expiration error")
	}
	// ensure token removed
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM hearing_tokens WHERE token = ?`, token).Scan(&count); err != nil {
		t.Fatalf("query tokens: %v", err)
	}
	if count != 0 {
		t.Fatalf("expired token not purged")
	}
}

func TestAuthTokenExpiresIn(t *testing.T) {
	db := openTestDB(t)
	insertHearing(t, db, "h-3")
	svc := NewService(db, nil, time.Hour)
	ctx := context.Background()

	token, err := svc.IssueToken(ctx, "h-3")
	require.NoError(t, err)
	left, err := svc.TokenExpiresIn(ctx, token)
	require.NoError(t, err)
	assert.Greater(t, left, 59*time.Minute)
	assert.LessOrEqual(t, left, svc.TokenTTL())

	_, err = svc.TokenExpiresIn(ctx, "missing")
	assert.ErrorIs(t, err, ErrInvalidToken)

	short := NewService(db, nil, 10*time.Millisecond)
	stale, err := short.IssueToken(ctx, "h-3")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = short.TokenExpiresIn(ctx, stale)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestMiddlewareScopesTokenToHearing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := openTestDB(t)
	insertHearing(t, db, "h-a")
	insertHearing(t, db, "h-b")
	svc := NewService(db, nil, time.Hour)
	token, err := svc.IssueToken(context.Background(), "h-a")
	require.NoError(t, err)

	router := gin.New()
	router.GET("/hearings/:id", svc.Middleware(), func(c *gin.Context) {
		id, _ := HearingIDFromContext(c)
		if tok, ok := AuthTokenFromContext(c); !ok || tok != token {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, id)
	})

	do := func(path, header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	rr := do("/hearings/h-a", "Bearer "+token)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "h-a", rr.Body.String())

	assert.Equal(t, http.StatusForbidden, do("/hearings/h-b", "Bearer "+token).Code)
	assert.Equal(t, http.StatusUnauthorized, do("/hearings/h-a", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do("/hearings/h-a", "Bearer nope").Code)
}

func TestAuthTokenCacheUsesRedis(t *testing.T) {
	db := openTestDB(t)
	insertHearing(t, db, "h-10")

	cacheClient, cleanup := newRedisCacheClient(t)
	defer cleanup()

	svc := NewService(db, cacheClient, time.Hour)
	ctx := context.Background()

	token, err := svc.IssueToken(ctx, "h-10")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	raw := cacheClient.Raw()
	if raw == nil {
		t.Fatalf("redis raw client nil")
	}
	key := redisTokenPrefix + token
	got, err := raw.Get(ctx, key).Result()
	if err != nil {
		t.Fatalf("get redis token: %v", err)
	}
	if got != "h-10" {
		t.Fatalf("expected hearing h-10 in rdb, got %s", got)
	}

	_, _ = db.Exec(`DELETE FROM hearing_tokens WHERE token = ?`, token)
	hearingID, err := svc.ValidateToken(ctx, token)
	if err != nil || hearingID != "h-10" {
		t.Fatalf("ValidateToken via rdb failed: id=%s err=%v", hearingID, err)
	}
	left, err := svc.TokenExpiresIn(ctx, token)
	if err != nil || left <= 0 || left > time.Hour {
		t.Fatalf("TokenExpiresIn via rdb: left=%v err=%v", left, err)
	}

	if err := svc.RevokeToken(ctx, token); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if _, err := raw.Get(ctx, key).Result(); err == nil {
		t.Fatalf("expected redis key deleted")
	}
	if _, err := svc.ValidateToken(ctx, token); err == nil {
		t.Fatalf("expected error after revoke and rdb delete")
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {
				DSN: "file:" + filepath.Join(t.TempDir(), "auth.db"),
			},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func insertHearing(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	now := time.Now().UTC()
	_, err := db.Exec(`INSERT INTO hearings (id, scenario_title, provider, model, api_key, created_at, updated_at)
		VALUES (?, 'Extension of time', 'openai', '', 'sealed', ?, ?)`, id, now, now)
	if err != nil {
		t.Fatalf("insert hearing: %v", err)
	}
}

func newRedisCacheClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed auth tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	db := 0
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			db = parsed
		}
	}
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Host: host,
			Port: port,
			DB:   db,
		},
	}
	client, err := redis.NewRedisClient(cfg)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if raw := client.Raw(); raw != nil {
		if err := raw.FlushDB(ctx).Err(); err != nil {
			t.Fatalf("flush db: %v", err)
		}
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup
}
