package roster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrNotRegistered = errors.New("we can't find a registrant with that information; check the email, first name and last name match your registration exactly (case-sensitive)")
var ErrEmailVerified = errors.New("this registration has already been used to verify an account")
var ErrAccountVerified = errors.New("this account is already verified")

type Participant struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	AccountID  string    `gorm:"uniqueIndex" json:"account_id"`
	Email      string    `gorm:"uniqueIndex" json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	VerifiedAt time.Time `json:"verified_at"`
}

func (Participant) TableName() string { return "participants" }

type Registry interface {
	IsRegistered(id Identity) bool
}

// Store records verified participants. Lookups report found=false rather
// than an error for unknown keys.
type Store interface {
	ByEmail(ctx context.Context, email string) (Participant, bool, error)
	ByAccount(ctx context.Context, accountID string) (Participant, bool, error)
	Save(ctx context.Context, p Participant) error
}

type Verifier struct {
	reg   Registry
	store Store
	log   *zap.Logger
	now   func() time.Time

	mu sync.Mutex // check and save happen together
}

func NewVerifier(reg Registry, store Store, log *zap.Logger) *Verifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{reg: reg, store: store, log: log, now: time.Now}
}

// Verify links accountID to the registration id describes.
func (v *Verifier) Verify(ctx context.Context, id Identity, accountID string) (Participant, error) {
	log := v.log.With(zap.String("account", accountID))
	if !v.reg.IsRegistered(id) {
		log.Info("verification refused, not registered")
		return Participant{}, ErrNotRegistered
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok, err := v.store.ByAccount(ctx, accountID); err != nil {
		return Participant{}, fmt.Errorf("roster: lookup account: %w", err)
	} else if ok {
		return Participant{}, ErrAccountVerified
	}
	if _, ok, err := v.store.ByEmail(ctx, id.Email); err != nil {
		return Participant{}, fmt.Errorf("roster: lookup email: %w", err)
	} else if ok {
		log.Warn("registration already claimed")
		return Participant{}, ErrEmailVerified
	}

	p := Participant{AccountID: accountID, Email: id.Email, FirstName: id.First, LastName: id.Last, VerifiedAt: v.now().UTC()}
	if err := v.store.Save(ctx, p); err != nil {
		return Participant{}, fmt.Errorf("roster: save: %w", err)
	}
	log.Info("participant verified")
	return p, nil
}

type MemoryStore struct {
	mu    sync.RWMutex
	byKey map[string]Participant // email
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byKey: map[string]Participant{}}
}

func (m *MemoryStore) ByEmail(_ context.Context, email string) (Participant, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byKey[email]
	return p, ok, nil
}

func (m *MemoryStore) ByAccount(_ context.Context, accountID string) (Participant, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.byKey {
		if p.AccountID == accountID {
			return p, true, nil
		}
	}
	return Participant{}, false, nil
}

func (m *MemoryStore) Save(_ context.Context, p Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byKey[p.Email]; ok {
		return ErrEmailVerified
	}
	m.byKey[p.Email] = p
	return nil
}

type DBStore struct {
	db *gorm.DB
}

func NewDBStore(db *gorm.DB) (*DBStore, error) {
	if err := db.AutoMigrate(&Participant{}); err != nil {
		return nil, fmt.Errorf("roster: migrate: %w", err)
	}
	return &DBStore{db: db}, nil
}

func (s *DBStore) ByEmail(ctx context.Context, email string) (Participant, bool, error) {
	return s.first(ctx, "email = ?", email)
}

func (s *DBStore) ByAccount(ctx context.Context, accountID string) (Participant, bool, error) {
	return s.first(ctx, "account_id = ?", accountID)
}

func (s *DBStore) first(ctx context.Context, query string, arg string) (Participant, bool, error) {
	var p Participant
	err := s.db.WithContext(ctx).Where(query, arg).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Participant{}, false, nil
	}
	if err != nil {
		return Participant{}, false, err
	}
	return p, true, nil
}

func (s *DBStore) Save(ctx context.Context, p Participant) error {
	return s.db.WithContext(ctx).Create(&p).Error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*DBStore)(nil)
)
