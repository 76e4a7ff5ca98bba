package service

// AuthService is the identity provider the rest of the app consumes:
//
//	AuthHandler (HTTP) → AuthService → UserRepository (accounts)
//	                                 ↘ DocumentStore (per-user document)
//	                                 ↘ TokenService (session tokens)
//
// Every account has a user document from the moment it exists. Sign-up and
// first GitHub sign-in create it as {email, username, points: 0}.
//
// Listeners registered with OnAuthStateChanged hear about every sign-in and
// sign-out. Sessions uses this to drop a user's cached tracker.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"

	"github.com/gosimple/slug"
	"github.com/rs/xid"

	"github.com/sakif/waypoint/internal/apperror"
	"github.com/sakif/waypoint/internal/auth"
	"github.com/sakif/waypoint/internal/model"
	"github.com/sakif/waypoint/internal/repository"
)

// AuthListener receives the user ID and whether they are now signed in.
type AuthListener func(userID string, signedIn bool)

// AuthService handles accounts and session tokens.
type AuthService struct {
	users     repository.UserRepository
	docs      repository.DocumentStore
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger

	mu        sync.RWMutex
	listeners map[int]AuthListener
	nextID    int
}

func NewAuthService(
	users repository.UserRepository,
	docs repository.DocumentStore,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		docs:      docs,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
		listeners: make(map[int]AuthListener),
	}
}

// AuthResult bundles the account and its new token so the handler can set
// the cookie and respond in one step.
type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// SignUp creates an email/password account. username is optional and is
// derived from the email when empty.
func (s *AuthService) SignUp(ctx context.Context, email, password, username string) (*AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, err
	}

	username = strings.TrimSpace(username)
	if username == "" {
		username, err = s.freeUsername(ctx, email)
		if err != nil {
			return nil, err
		}
	} else if err := ValidateUsername(username); err != nil {
		return nil, err
	}

	user := &model.User{Email: email, Username: username, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user %s: %w", email, err)
	}
	if err := s.ensureDocument(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user signed up", slog.String("userID", user.ID))
	return s.issue(user)
}

// SignIn checks an email/password pair. Unknown emails and wrong passwords
// get the same error.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.Unauthorized("invalid email or password")
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			return nil, apperror.Unauthorized("invalid email or password")
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}
	return s.issue(user)
}

// SignOut tells listeners the user left. Tokens are stateless, so the
// client discards its own.
func (s *AuthService) SignOut(ctx context.Context, userID string) {
	if userID == "" {
		return
	}
	s.logger.Info("user signed out", slog.String("userID", userID))
	s.notify(userID, false)
}

// LoginOrRegisterGitHub finishes the OAuth callback: upsert the account by
// GitHub ID, make sure the document exists, issue a token.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user := &model.User{
		GitHubID:  ghUser.ID,
		Username:  strings.ToLower(ghUser.Login),
		Email:     strings.ToLower(ghUser.Email),
		AvatarURL: ghUser.AvatarURL,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}
	if err := s.ensureDocument(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user authenticated via GitHub",
		slog.String("userID", user.ID),
		slog.String("login", ghUser.Login),
	)
	return s.issue(user)
}

func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Unauthorized("not signed in")
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// OnAuthStateChanged registers fn and returns a function that removes it.
func (s *AuthService) OnAuthStateChanged(fn AuthListener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *AuthService) notify(userID string, signedIn bool) {
	s.mu.RLock()
	fns := make([]AuthListener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(userID, signedIn)
	}
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	s.notify(user.ID, true)
	return &AuthResult{User: user, Token: token}, nil
}

// ensureDocument creates the user document if it is missing. An existing
// document is left alone so progress survives repeated sign-ins.
func (s *AuthService) ensureDocument(ctx context.Context, user *model.User) error {
	_, err := s.docs.Get(ctx, user.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("service/auth: reading document of %s: %w", user.ID, err)
	}
	doc := &model.UserDocument{
		Email:    user.Email,
		Username: user.Username,
		Avatar:   user.AvatarURL,
		Points:   0,
	}
	if err := s.docs.Put(ctx, user.ID, doc); err != nil {
		return fmt.Errorf("service/auth: creating document of %s: %w", user.ID, err)
	}
	return nil
}

// freeUsername derives a username from the email's local part, adding a
// random suffix when it is taken.
func (s *AuthService) freeUsername(ctx context.Context, email string) (string, error) {
	local, _, _ := strings.Cut(email, "@")
	base := slug.Make(local)
	if len(base) < minUsernameLength {
		base = "user"
	}
	if len(base) > maxUsernameLength-7 {
		base = base[:maxUsernameLength-7]
	}

	_, err := s.users.GetUserByUsername(ctx, base)
	if errors.Is(err, apperror.ErrNotFound) {
		return base, nil
	}
	if err != nil {
		return "", fmt.Errorf("service/auth: checking username %s: %w", base, err)
	}
	id := xid.New().String()
	return base + "-" + id[len(id)-6:], nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperror.ValidationFailed("email", "enter a valid email address")
	}
	return email, nil
}

const (
	minUsernameLength = 3
	maxUsernameLength = 30
)

// ValidateUsername allows 3 to 30 lowercase letters, digits, dashes and
// underscores.
func ValidateUsername(username string) error {
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return apperror.ValidationFailed("username",
			fmt.Sprintf("username must be %d to %d characters", minUsernameLength, maxUsernameLength))
	}
	for _, r := range username {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return apperror.ValidationFailed("username",
				"username may only contain lowercase letters, digits, - and _")
		}
	}
	return nil
}
