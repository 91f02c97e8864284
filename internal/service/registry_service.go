package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"go-identity-gate/internal/model"
	"go-identity-gate/pkg/apierror"
)

const (
	msgDuplicateUser      = "User already exists"
	msgInvalidCredentials = "Invalid email or password"
)

type userStore interface {
	FindByEmail(ctx context.Context, email string) (model.UserRecord, error)
	FindByID(ctx context.Context, id string) (model.UserRecord, error)
	FindByExternalID(ctx context.Context, externalID string) (model.UserRecord, error)
	Create(ctx context.Context, u model.UserRecord) error
	Update(ctx context.Context, u model.UserRecord) error
	List(ctx context.Context) ([]model.UserRecord, error)
}

// RegistryService owns user records: registration, credential checks and
// administrative updates.
type RegistryService struct {
	users      userStore
	bcryptCost int
	dummyHash  []byte
	now        func() time.Time
}

func NewRegistryService(users userStore, bcryptCost int) (*RegistryService, error) {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}

	// compared against when the email is unknown so both failure paths cost the same
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &RegistryService{
		users:      users,
		bcryptCost: bcryptCost,
		dummyHash:  dummy,
		now:        time.Now,
	}, nil
}

type registration struct {
	Email    string
	Password string
}

func (r registration) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (s *RegistryService) Register(ctx context.Context, email string, password string) (model.UserRecord, error) {
	email = strings.TrimSpace(email)

	if err := (registration{Email: email, Password: password}).Validate(); err != nil {
		return model.UserRecord{}, apierror.Wrap(model.ErrInvalidInput, "BAD_REQUEST", "Invalid email or password format", http.StatusBadRequest).
			WithDetails(err.Error())
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return model.UserRecord{}, duplicateUserError()
	} else if !errors.Is(err, model.ErrUserNotFound) {
		return model.UserRecord{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return model.UserRecord{}, fmt.Errorf("hash password: %w", err)
	}

	user := model.UserRecord{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  model.DisplayNameFromEmail(email),
		Role:         model.RoleUser,
		AuthProvider: model.ProviderEmail,
		CreatedAt:    s.now().UTC(),
	}

	// the store re-checks uniqueness under its own lock or constraint
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, model.ErrDuplicateUser) {
			return model.UserRecord{}, duplicateUserError()
		}
		return model.UserRecord{}, err
	}

	slog.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login never reveals whether the email or the password was wrong.
func (s *RegistryService) Login(ctx context.Context, email string, password string) (model.UserRecord, error) {
	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if !errors.Is(err, model.ErrUserNotFound) {
			slog.Warn("login lookup failed", "error", err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return model.UserRecord{}, invalidCredentialsError()
	}

	if user.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return model.UserRecord{}, invalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return model.UserRecord{}, invalidCredentialsError()
	}

	return user, nil
}

func (s *RegistryService) FindByID(ctx context.Context, id string) (model.UserRecord, error) {
	return s.users.FindByID(ctx, id)
}

func (s *RegistryService) FindByExternalID(ctx context.Context, externalID string) (model.UserRecord, error) {
	return s.users.FindByExternalID(ctx, externalID)
}

func (s *RegistryService) GetUser(ctx context.Context, id string) (model.UserRecord, error) {
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.UserRecord{}, apierror.Wrap(model.ErrUserNotFound, "NOT_FOUND", "User not found", http.StatusNotFound).WithDetails(id)
	}
	return user, err
}

func (s *RegistryService) ListUsers(ctx context.Context) ([]model.PublicUser, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out, nil
}

// UpdateProfile changes display name and/or role. Email and id stay fixed.
func (s *RegistryService) UpdateProfile(ctx context.Context, id string, name *string, role *string) (model.UserRecord, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return model.UserRecord{}, err
	}

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return model.UserRecord{}, apierror.Wrap(model.ErrInvalidInput, "BAD_REQUEST", "name cannot be empty", http.StatusBadRequest)
		}
		user.DisplayName = trimmed
	}

	if role != nil {
		parsed, ok := model.ParseRole(*role)
		if !ok {
			return model.UserRecord{}, apierror.Wrap(model.ErrInvalidInput, "BAD_REQUEST", "invalid role", http.StatusBadRequest).WithDetails(*role)
		}
		user.Role = parsed
	}

	user.PasswordHash = ""
	if err := s.users.Update(ctx, user); err != nil {
		return model.UserRecord{}, err
	}

	return s.users.FindByID(ctx, id)
}

// LinkFederated returns the registry account for an external identity,
// attaching it to an existing email account or creating a new one. An
// existing account is only attached when the provider verified the email and
// the account has no external identity yet.
func (s *RegistryService) LinkFederated(ctx context.Context, profile model.FederatedProfile) (model.UserRecord, error) {
	subject := strings.TrimSpace(profile.Subject)
	if subject == "" {
		return model.UserRecord{}, apierror.Wrap(model.ErrInvalidInput, "BAD_REQUEST", "federated profile has no subject", http.StatusBadRequest)
	}

	if user, err := s.users.FindByExternalID(ctx, subject); err == nil {
		return user, nil
	} else if !errors.Is(err, model.ErrUserNotFound) {
		return model.UserRecord{}, err
	}

	email := strings.TrimSpace(profile.Email)
	if email != "" {
		existing, err := s.users.FindByEmail(ctx, email)
		if err == nil {
			if !profile.EmailVerified || existing.ExternalID != "" {
				slog.Warn("federated link refused", "user_id", existing.ID, "email_verified", profile.EmailVerified)
				return model.UserRecord{}, duplicateUserError()
			}
			existing.ExternalID = subject
			existing.PasswordHash = ""
			if err := s.users.Update(ctx, existing); err != nil {
				return model.UserRecord{}, err
			}
			slog.Info("federated identity linked", "user_id", existing.ID)
			return s.users.FindByID(ctx, existing.ID)
		}
		if !errors.Is(err, model.ErrUserNotFound) {
			return model.UserRecord{}, err
		}
	} else {
		email = PlaceholderEmail(profile.Name, subject)
	}

	name := strings.TrimSpace(profile.Name)
	if name == "" {
		name = model.DisplayNameFromEmail(email)
	}

	user := model.UserRecord{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  name,
		Role:         model.RoleUser,
		AuthProvider: model.ProviderFederated,
		ExternalID:   subject,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, model.ErrDuplicateUser) {
			return model.UserRecord{}, duplicateUserError()
		}
		return model.UserRecord{}, err
	}

	slog.Info("federated user created", "user_id", user.ID)
	return user, nil
}

func duplicateUserError() error {
	return apierror.Wrap(model.ErrDuplicateUser, "ALREADY_EXISTS", msgDuplicateUser, http.StatusConflict)
}

func invalidCredentialsError() error {
	return apierror.Wrap(model.ErrInvalidCredentials, "UNAUTHORIZED", msgInvalidCredentials, http.StatusUnauthorized)
}
