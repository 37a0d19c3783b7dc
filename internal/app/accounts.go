package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"pressline/internal/auth"
	"pressline/internal/model"
	"pressline/internal/session"
	"pressline/internal/util"
)

type Session struct {
	Token        string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type RegisterInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (model.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	name := strings.TrimSpace(input.Name)
	if email == "" || !strings.Contains(email, "@") {
		return model.User{}, errValidation("a valid email is required")
	}
	if name == "" {
		return model.User{}, errValidation("name is required")
	}
	if len(input.Password) < 8 {
		return model.User{}, errValidation("password must be at least 8 characters")
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return model.User{}, errConflict("EMAIL_TAKEN", "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return model.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, err
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           util.NewID("usr"),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Permissions:  []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InsertUser(ctx, user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, errUnauthorized()
	}
	if err != nil {
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, errUnauthorized()
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, session.ErrNoSession) {
		return Session{}, errUnauthorized()
	}
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, errUnauthorized()
	}
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

func (s *Service) issueSession(ctx context.Context, user model.User) (Session, error) {
	expiresAt := time.Now().Add(s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, util.NewID("jti"), s.cfg.AccessTTL)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := time.Now().Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Name:         user.Name,
		ExpiresAt:    expiresAt,
	}, nil
}

// SetUserBanned flips the ban flag. A banned actor keeps resolving but loses
// every mutation and every visibility bypass.
func (s *Service) SetUserBanned(ctx context.Context, actor *model.User, userID string, banned bool) error {
	if err := requireWriter(actor); err != nil {
		return err
	}
	if !actor.HasPermission(model.PermManageUsers) {
		return errForbidden()
	}
	changed, err := s.store.SetUserBanned(ctx, userID, banned)
	if err != nil {
		return err
	}
	if !changed {
		return errNotFound()
	}
	return nil
}

func (s *Service) SetUserPermissions(ctx context.Context, actor *model.User, userID string, permissions []string) error {
	if err := requireWriter(actor); err != nil {
		return err
	}
	if !actor.HasPermission(model.PermManageUsers) {
		return errForbidden()
	}
	if permissions == nil {
		permissions = []string{}
	}
	changed, err := s.store.UpdateUserPermissions(ctx, userID, permissions)
	if err != nil {
		return err
	}
	if !changed {
		return errNotFound()
	}
	return nil
}
