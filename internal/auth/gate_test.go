package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ymliu/convo/internal/domain"
	"github.com/ymliu/convo/internal/repository"
	"github.com/ymliu/convo/internal/token"
)

// fakeUserRepo serves a fixed set of users by username.
type fakeUserRepo struct {
	users map[string]*domain.User
	err   error
}

func (r *fakeUserRepo) Create(ctx context.Context, user *domain.User) error {
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id uint) (*domain.User, error) {
	return nil, repository.ErrUserNotFound
}

func (r *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	if r.err != nil {
		return nil, r.err
	}
	user, ok := r.users[username]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func newTestGate(repo *fakeUserRepo) (*Gate, *token.Manager) {
	tokens := token.NewManager("test-secret", time.Hour, "convo")
	return NewGate(tokens, repo), tokens
}

func TestGate_AuthenticateSuccess(t *testing.T) {
	repo := &fakeUserRepo{users: map[string]*domain.User{
		"alice": {ID: 10, Username: "alice", Role: domain.RoleAdmin},
	}}
	gate, tokens := newTestGate(repo)

	credential, err := tokens.Generate("alice", domain.RoleAdmin)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	identity, err := gate.Authenticate(context.Background(), credential)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if identity.UserID != 10 || identity.Username != "alice" {
		t.Errorf("identity = %+v", identity)
	}
	if !identity.IsAdmin() {
		t.Error("expected admin identity")
	}
}

func TestGate_AuthenticateInvalidCredential(t *testing.T) {
	gate, _ := newTestGate(&fakeUserRepo{})

	for _, credential := range []string{"", "garbage", "a.b.c"} {
		if _, err := gate.Authenticate(context.Background(), credential); !errors.Is(err, ErrInvalidCredential) {
			t.Errorf("Authenticate(%q) error = %v, want ErrInvalidCredential", credential, err)
		}
	}
}

func TestGate_AuthenticateExpiredCredential(t *testing.T) {
	repo := &fakeUserRepo{users: map[string]*domain.User{
		"alice": {ID: 10, Username: "alice", Role: domain.RoleUser},
	}}
	expired := token.NewManager("test-secret", -time.Minute, "convo")
	gate := NewGate(token.NewManager("test-secret", time.Hour, "convo"), repo)

	credential, err := expired.Generate("alice", domain.RoleUser)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if _, err := gate.Authenticate(context.Background(), credential); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Authenticate() error = %v, want ErrInvalidCredential", err)
	}
}

func TestGate_AuthenticateUnknownSubject(t *testing.T) {
	gate, tokens := newTestGate(&fakeUserRepo{users: map[string]*domain.User{}})

	credential, err := tokens.Generate("ghost", domain.RoleUser)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if _, err := gate.Authenticate(context.Background(), credential); !errors.Is(err, ErrUnknownSubject) {
		t.Errorf("Authenticate() error = %v, want ErrUnknownSubject", err)
	}
}

func TestGate_AuthenticateRepositoryError(t *testing.T) {
	repo := &fakeUserRepo{err: errors.New("database down")}
	gate, tokens := newTestGate(repo)

	credential, err := tokens.Generate("alice", domain.RoleUser)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	_, err = gate.Authenticate(context.Background(), credential)
	if err == nil || errors.Is(err, ErrUnknownSubject) || errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Authenticate() error = %v, want the repository error passed through", err)
	}
}
