package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	userrepo "github.com/mnemos-app/mnemos-backend/internal/data/repos/user"
	"github.com/mnemos-app/mnemos-backend/internal/domain"
	"github.com/mnemos-app/mnemos-backend/internal/platform/apierr"
	"github.com/mnemos-app/mnemos-backend/internal/platform/logger"
)

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*domain.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, _ *gorm.DB, u *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	f.users[u.Email] = u
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, userrepo.ErrNotFound
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, _ *gorm.DB, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return nil, userrepo.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserRepo) EmailExists(_ context.Context, _ *gorm.DB, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.users[email]
	return ok, nil
}

func (f *fakeUserRepo) ListIDs(_ context.Context, _ *gorm.DB) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for _, u := range f.users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

func newAuthService(t *testing.T) *AuthService {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return NewAuthService(newFakeUserRepo(), log, AuthConfig{
		JWTSecret: []byte("test-secret"),
		TokenTTL:  time.Hour,
	})
}

func TestRegisterLoginRoundTrip(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, Credentials{Email: "Ada@Example.com", Password: "correct horse", DisplayName: "Ada"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.User.Email != "ada@example.com" {
		t.Errorf("email not normalized: %q", reg.User.Email)
	}
	if reg.Token == "" {
		t.Fatal("empty token")
	}

	login, err := svc.Login(ctx, Credentials{Email: "ada@example.com", Password: "correct horse"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.User.ID != reg.User.ID {
		t.Error("login returned a different user")
	}

	parsed, err := svc.ParseToken(login.Token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if parsed != reg.User.ID {
		t.Errorf("token subject = %s, want %s", parsed, reg.User.ID)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, Credentials{Email: "a@b.co", Password: "long enough"}); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	_, err := svc.Register(ctx, Credentials{Email: "a@b.co", Password: "long enough"})
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Status != 409 {
		t.Fatalf("err = %v, want 409 apierr", err)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, Credentials{Email: "not-an-email", Password: "long enough"}); err == nil {
		t.Error("want error for invalid email")
	}
	if _, err := svc.Register(ctx, Credentials{Email: "a@b.co", Password: "short"}); err == nil {
		t.Error("want error for short password")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, Credentials{Email: "a@b.co", Password: "long enough"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := svc.Login(ctx, Credentials{Email: "a@b.co", Password: "wrong password"})
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Status != 401 {
		t.Fatalf("err = %v, want 401 apierr", err)
	}

	_, err = svc.Login(ctx, Credentials{Email: "nobody@b.co", Password: "whatever!"})
	if !errors.As(err, &apiErr) || apiErr.Status != 401 {
		t.Fatalf("unknown email err = %v, want 401 apierr", err)
	}
}

func TestParseTokenRejectsForgedToken(t *testing.T) {
	svc := newAuthService(t)
	other := NewAuthService(newFakeUserRepo(), svc.log, AuthConfig{JWTSecret: []byte("different"), TokenTTL: time.Hour})

	reg, err := other.Register(context.Background(), Credentials{Email: "a@b.co", Password: "long enough"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.ParseToken(reg.Token); err == nil {
		t.Fatal("token signed with another secret must be rejected")
	}
}
