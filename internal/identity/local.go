package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Skotchmaster/pharmacy_shop/internal/hash"
	"github.com/Skotchmaster/pharmacy_shop/pkg/tokens"
)

type localAccount struct {
	uid          string
	email        string
	passwordHash []byte
	displayName  string
	photoURL     string
}

// LocalDirectory is an in-process identity provider for development and
// tests. Accounts are shared by all visitors; sessions are per visitor.
type LocalDirectory struct {
	mu       sync.RWMutex
	accounts map[string]*localAccount
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
}

func NewLocalDirectory(secret []byte, ttl time.Duration) *LocalDirectory {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &LocalDirectory{
		accounts: map[string]*localAccount{},
		secret:   secret,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (d *LocalDirectory) Factory() Factory {
	return func() Provider { return d.Provider() }
}

func (d *LocalDirectory) Provider() *Local {
	return &Local{dir: d, state: newNotifier()}
}

// Verify checks a token issued by this directory. The development backend
// uses it to authenticate bearer tokens.
func (d *LocalDirectory) Verify(token string) (*tokens.IdentityClaims, error) {
	return tokens.IdentityClaimsFromToken(token, d.secret)
}

func normEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (d *LocalDirectory) issue(acc *localAccount) (*User, error) {
	now := d.now()
	exp := now.Add(d.ttl)
	token, err := tokens.Sign(tokens.IdentityClaims{
		Email:   acc.email,
		Name:    acc.displayName,
		Picture: acc.photoURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}, d.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &User{
		UID:         acc.uid,
		Email:       acc.email,
		DisplayName: acc.displayName,
		PhotoURL:    acc.photoURL,
		AccessToken: token,
		ExpiresAt:   exp,
	}, nil
}

func (d *LocalDirectory) create(email, password string) (*localAccount, error) {
	pw, err := hash.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	key := normEmail(email)
	if _, ok := d.accounts[key]; ok {
		return nil, ErrEmailExists
	}
	acc := &localAccount{uid: uuid.NewString(), email: key, passwordHash: pw}
	d.accounts[key] = acc
	return acc, nil
}

func (d *LocalDirectory) check(email, password string) (*localAccount, error) {
	d.mu.RLock()
	acc, ok := d.accounts[normEmail(email)]
	d.mu.RUnlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if !hash.CheckPassword(acc.passwordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return acc, nil
}

// federated returns the account for a social identity, creating it on first use.
func (d *LocalDirectory) federated(email, name, picture string) *localAccount {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := normEmail(email)
	if acc, ok := d.accounts[key]; ok {
		return acc
	}
	acc := &localAccount{uid: uuid.NewString(), email: key, displayName: name, photoURL: picture}
	d.accounts[key] = acc
	return acc
}

func (d *LocalDirectory) updateProfile(email string, p Profile) (*localAccount, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	acc, ok := d.accounts[normEmail(email)]
	if !ok {
		return nil, ErrNotSignedIn
	}
	acc.displayName = p.DisplayName
	acc.photoURL = p.PhotoURL
	return acc, nil
}

func (d *LocalDirectory) exists(email string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.accounts[normEmail(email)]
	return ok
}

// Local is one visitor's session against a LocalDirectory.
type Local struct {
	dir   *LocalDirectory
	state *notifier
}

var _ Provider = (*Local)(nil)

func (p *Local) signIn(acc *localAccount) (*User, error) {
	u, err := p.dir.issue(acc)
	if err != nil {
		return nil, err
	}
	p.state.set(u)
	return u, nil
}

func (p *Local) CreateUser(_ context.Context, email, password string) (*User, error) {
	if email == "" || len(password) < hash.MinPasswordLen {
		return nil, fmt.Errorf("email and a password of %d+ characters are required: %w", hash.MinPasswordLen, ErrValidation)
	}
	acc, err := p.dir.create(email, password)
	if err != nil {
		return nil, err
	}
	return p.signIn(acc)
}

func (p *Local) SignIn(_ context.Context, email, password string) (*User, error) {
	acc, err := p.dir.check(email, password)
	if err != nil {
		return nil, err
	}
	return p.signIn(acc)
}

// SocialLogin accepts ID tokens signed with the directory secret, which is
// how development tooling mints "social" identities.
func (p *Local) SocialLogin(_ context.Context, providerID, idToken string) (*User, error) {
	if providerID == "" {
		return nil, fmt.Errorf("provider is required: %w", ErrValidation)
	}
	claims, err := p.dir.Verify(idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return p.signIn(p.dir.federated(claims.Email, claims.Name, claims.Picture))
}

func (p *Local) SignOut(context.Context) error {
	p.state.set(nil)
	return nil
}

func (p *Local) UpdateProfile(_ context.Context, prof Profile) error {
	cur := p.state.user()
	if cur == nil {
		return ErrNotSignedIn
	}
	acc, err := p.dir.updateProfile(cur.Email, prof)
	if err != nil {
		return err
	}
	_, err = p.signIn(acc)
	return err
}

func (p *Local) ResetPassword(_ context.Context, email string) error {
	if email == "" {
		return fmt.Errorf("email is required: %w", ErrValidation)
	}
	if !p.dir.exists(email) {
		return ErrInvalidCredentials
	}
	return nil
}

func (p *Local) OnAuthStateChanged(l Listener) func() {
	return p.state.subscribe(l)
}
