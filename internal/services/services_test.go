package services

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"authd/internal/cache"
	apierrors "authd/internal/errors"
	"authd/internal/events"
	h "authd/internal/helpers"
	"authd/internal/models"
	"authd/internal/recovery"
	"authd/internal/store"
	"authd/internal/totp"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// capturePublisher records published auth events for assertions.
type capturePublisher struct {
	mu       sync.Mutex
	messages []*message.Message
}

func (p *capturePublisher) Publish(messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, messages...)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) eventTypes(t *testing.T) []string {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()

	types := make([]string, 0, len(p.messages))
	for _, msg := range p.messages {
		var event events.AuthEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		types = append(types, event.Type)
	}
	return types
}

// stubPasswordChecker stands in for the breach lookup client.
type stubPasswordChecker struct {
	pwned bool
	err   error
	calls int
}

func (c *stubPasswordChecker) PasswordPwned(context.Context, string) (bool, error) {
	c.calls++
	return c.pwned, c.err
}

// sessionRejectingStore fails session creation to exercise the paths that run
// after an MFA activation has already committed.
type sessionRejectingStore struct {
	store.Store
}

func (s *sessionRejectingStore) CreateSession(context.Context, *models.AuthSession) error {
	return apierrors.ErrTransientStorage
}

type testEnv struct {
	store     *store.GormStore
	cache     *cache.MemoryCache
	publisher *capturePublisher
	auth      AuthService
	mfa       MFAService
	now       time.Time
}

func testAppConfig() models.AppConfiguration {
	return models.AppConfiguration{
		Issuer:             "authd",
		JWTSecret:          "test-jwt-secret",
		MFAEncryptionKey:   "0123456789abcdef0123456789abcdef",
		AllowRegistration:  true,
		MakeFirstUserAdmin: true,
		WebURL:             "https://authd.example.com",
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.MfaSecret{},
		&models.RecoveryCode{},
		&models.AuthSession{},
	))

	env := &testEnv{
		store:     store.NewGormStore(db),
		cache:     cache.NewMemoryCache(),
		publisher: &capturePublisher{},
		now:       time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC),
	}

	appConfig := testAppConfig()
	engine := totp.Engine{Issuer: appConfig.Issuer}
	vault := recovery.Vault{Store: env.store}
	clock := func() time.Time { return env.now }

	env.auth = AuthService{
		Store:     env.store,
		Cache:     env.cache,
		AppConfig: appConfig,
		Publisher: env.publisher,
		Engine:    engine,
		Vault:     vault,
		Now:       clock,
	}
	env.mfa = MFAService{
		Store:     env.store,
		Cache:     env.cache,
		AppConfig: appConfig,
		Publisher: env.publisher,
		Engine:    engine,
		Vault:     vault,
		Now:       clock,
	}
	return env
}

func (e *testEnv) seedUser(t *testing.T, username, password string, active bool) models.User {
	t.Helper()

	hash, err := h.CreateHash(password)
	require.NoError(t, err)

	user := models.User{
		Username:       username,
		Email:          username + "@example.com",
		HashedPassword: hash,
		Role:           models.RoleUser,
		Active:         active,
	}
	require.NoError(t, e.store.CreateUser(context.Background(), &user))
	return user
}

// seedActiveMfa enrolls the user directly through the storage layer and
// returns the plaintext secret and recovery codes.
func (e *testEnv) seedActiveMfa(t *testing.T, user models.User) (string, []string) {
	t.Helper()
	ctx := context.Background()

	secret, err := e.auth.Engine.GenerateSecret()
	require.NoError(t, err)
	encrypted, err := h.EncryptSecret(secret, []byte(e.auth.AppConfig.MFAEncryptionKey))
	require.NoError(t, err)
	require.NoError(t, e.store.PutMfaSecret(ctx, user.ID, encrypted, models.MfaStatePending))

	codes, err := e.auth.Vault.GenerateBatch(8)
	require.NoError(t, err)
	require.NoError(t, e.store.ActivateMfa(ctx, user.ID, recovery.HashBatch(codes)))

	return secret, codes
}

func (e *testEnv) totpCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.CurrentCode(secret, at)
	require.NoError(t, err)
	return code
}
