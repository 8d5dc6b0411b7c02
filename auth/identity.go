package auth

import (
	"blimp/domain"
	"blimp/errors"
	"blimp/repositories"
	"log/slog"
	"sync"
)

// Identity is the local identity provider: account creation, sign-in,
// profile edits, and a change-notification stream for the current
// principal. Avatar bytes live in an external blob store; only the
// reference is tracked here.
type Identity struct {
	mu        sync.RWMutex
	users     repositories.IUserRepository
	tokens    TokenIssuer
	log       *slog.Logger
	watchers  map[chan domain.Principal]struct{}
	principal map[string]domain.Principal // by user id, most recent profile
}

func NewIdentity(users repositories.IUserRepository, tokens TokenIssuer, log *slog.Logger) *Identity {
	return &Identity{
		users:     users,
		tokens:    tokens,
		log:       log,
		watchers:  make(map[chan domain.Principal]struct{}),
		principal: make(map[string]domain.Principal),
	}
}

// Register creates an account and returns the principal plus a signed
// session token.
func (i *Identity) Register(email, password, displayName string) (domain.Principal, string, error) {
	if err := ValidateRegister(RegisterRequest{Email: email, Password: password, DisplayName: displayName}); err != nil {
		return domain.Principal{}, "", err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return domain.Principal{}, "", err
	}

	user, err := i.users.Create(email, hash, displayName)
	if err != nil {
		return domain.Principal{}, "", err
	}

	token, err := i.tokens.Generate(user.ID, user.Email, user.DisplayName)
	if err != nil {
		return domain.Principal{}, "", err
	}

	i.remember(user.Principal())
	i.log.Info("account created", "user_id", user.ID)
	return user.Principal(), token, nil
}

// SignIn verifies credentials and returns the principal plus a token.
func (i *Identity) SignIn(email, password string) (domain.Principal, string, error) {
	user, err := i.users.GetByEmail(email)
	if err != nil {
		return domain.Principal{}, "", err
	}

	ok, err := ComparePassword(password, user.PasswordHash)
	if err != nil {
		return domain.Principal{}, "", err
	}
	if !ok {
		return domain.Principal{}, "", errors.ErrInvalidCredentials
	}

	token, err := i.tokens.Generate(user.ID, user.Email, user.DisplayName)
	if err != nil {
		return domain.Principal{}, "", err
	}

	i.remember(user.Principal())
	return user.Principal(), token, nil
}

// Resolve maps validated token claims back to the stored principal.
func (i *Identity) Resolve(claims *Claims) (domain.Principal, error) {
	user, err := i.users.GetByEmail(claims.Email)
	if err != nil {
		return domain.Principal{}, err
	}
	return user.Principal(), nil
}

// UpdateProfile rewrites display name and/or avatar reference and
// notifies watchers of the new principal.
func (i *Identity) UpdateProfile(email, displayName, avatarRef string) (domain.Principal, error) {
	user, err := i.users.UpdateProfile(email, displayName, avatarRef)
	if err != nil {
		return domain.Principal{}, err
	}
	i.remember(user.Principal())
	i.notify(user.Principal())
	return user.Principal(), nil
}

// SendVerification completes the (externally delivered) verification
// flow by flagging the account.
func (i *Identity) SendVerification(email string) (domain.Principal, error) {
	user, err := i.users.MarkVerified(email)
	if err != nil {
		return domain.Principal{}, err
	}
	i.remember(user.Principal())
	i.notify(user.Principal())
	return user.Principal(), nil
}

// Changes opens a profile-update subscription. The caller must Close
// the watch when its own lifetime ends; nothing is delivered after
// Close returns.
func (i *Identity) Changes() *ProfileWatch {
	ch := make(chan domain.Principal, 1)
	i.mu.Lock()
	i.watchers[ch] = struct{}{}
	i.mu.Unlock()
	return &ProfileWatch{identity: i, ch: ch}
}

// ProfileWatch is a live profile-change subscription.
type ProfileWatch struct {
	identity  *Identity
	ch        chan domain.Principal
	closeOnce sync.Once
}

func (w *ProfileWatch) Updates() <-chan domain.Principal {
	return w.ch
}

// Close deregisters the watch. Idempotent.
func (w *ProfileWatch) Close() {
	w.closeOnce.Do(func() {
		w.identity.mu.Lock()
		delete(w.identity.watchers, w.ch)
		w.identity.mu.Unlock()
		close(w.ch)
	})
}

func (i *Identity) remember(p domain.Principal) {
	i.mu.Lock()
	i.principal[p.ID] = p
	i.mu.Unlock()
}

func (i *Identity) notify(p domain.Principal) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	for ch := range i.watchers {
		select {
		case ch <- p:
		default:
			i.log.Debug("identity change dropped", "user_id", p.ID)
		}
	}
}
