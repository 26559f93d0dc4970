package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"bell24h/internal/api"
	"bell24h/internal/config"
	"bell24h/internal/domain"
	"bell24h/internal/notify"
	"bell24h/internal/payment"
	"bell24h/internal/testutil"
	"bell24h/internal/utils"
)

const (
	testSecret       = "test-secret"
	testOTPRateLimit = 10
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingPublisher struct {
	mu   sync.Mutex
	envs []notify.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, env notify.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
	return nil
}

func (p *recordingPublisher) Envelopes() []notify.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Envelope(nil), p.envs...)
}

type stubGateway struct {
	CreatePayoutFunc func(ctx context.Context, req payment.PayoutRequest) (*payment.Payout, error)
}

func (g *stubGateway) CreatePayout(ctx context.Context, req payment.PayoutRequest) (*payment.Payout, error) {
	if g.CreatePayoutFunc == nil {
		return payment.Sandbox{}.CreatePayout(ctx, req)
	}
	return g.CreatePayoutFunc(ctx, req)
}

type testServer struct {
	router    *gin.Engine
	db        *gorm.DB
	rdb       *redis.Client
	publisher *recordingPublisher
	gateway   *stubGateway
}

type serverOptions struct {
	otpCooldown    time.Duration
	otpMaxAttempts int
	otpRateLimit   int
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWith(t, serverOptions{otpMaxAttempts: 3, otpRateLimit: testOTPRateLimit})
}

func newTestServerWith(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	gdb := testutil.NewDB(t)
	rdb, _ := testutil.NewRedis(t)
	pub := &recordingPublisher{}
	svc := notify.NewService(gdb, pub, nil)
	gw := &stubGateway{}
	if opts.otpRateLimit <= 0 {
		opts.otpRateLimit = testOTPRateLimit
	}
	cfg := &config.Config{AppEnv: "test", JWTSecret: testSecret, JWTTTL: time.Hour, OTPRateLimit: opts.otpRateLimit}
	router, err := api.NewRouter(api.Dependencies{
		Config:      cfg,
		DB:          gdb,
		Redis:       rdb,
		OTP:         utils.NewOTPStore(rdb, 5*time.Minute, opts.otpCooldown, opts.otpMaxAttempts),
		Notifier:    svc,
		Broadcaster: svc,
		Gateway:     gw,
	})
	require.NoError(t, err)
	return &testServer{router: router, db: gdb, rdb: rdb, publisher: pub, gateway: gw}
}

// do sends body as JSON, authenticating as user when it is non-nil
func (s *testServer) do(t *testing.T, method, path string, user *domain.User, body any) *httptest.ResponseRecorder {
	t.Helper()
	return s.doContext(t, context.Background(), method, path, user, body)
}

func (s *testServer) doContext(t *testing.T, ctx context.Context, method, path string, user *domain.User, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		token, err := utils.GenerateJWT(user.ID, user.Role, testSecret, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func createCategory(t *testing.T, gdb *gorm.DB, name string) *domain.Category {
	t.Helper()
	category := &domain.Category{Name: name, Slug: api.Slugify(name), Active: true}
	require.NoError(t, gdb.Create(category).Error)
	return category
}
