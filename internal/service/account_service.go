package service

import (
	"context"
	"errors"
	"strings"

	"socialfeed/internal/models"
	"socialfeed/internal/observability"
	"socialfeed/internal/repository"
	"socialfeed/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

const accountServiceName = "AccountService"

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	Issue(userID, email string) (string, error)
}

type AccountService struct {
	users      repository.UserRepository
	tokens     TokenIssuer
	bcryptCost int
}

func NewAccountService(users repository.UserRepository, tokens TokenIssuer) *AccountService {
	return &AccountService{
		users:      users,
		tokens:     tokens,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// WithBcryptCost overrides the hashing cost, mostly so tests stay fast.
func (s *AccountService) WithBcryptCost(cost int) *AccountService {
	s.bcryptCost = cost
	return s
}

// Signup registers a new account and returns its id.
func (s *AccountService) Signup(ctx context.Context, email, password, name string) (userID string, err error) {
	ctx, finish := observability.StartServiceSpan(ctx, accountServiceName, "Signup")
	defer func() { finish(err) }()

	in, fieldErrs := validation.NormalizeSignup(email, password, name)
	if len(fieldErrs) > 0 {
		return "", models.NewValidationFailedError("Validation failed.", fieldErrs)
	}

	if _, err := s.users.FindByEmail(ctx, in.Email); err == nil {
		return "", duplicateEmail(in.Email)
	} else if !models.HasCode(err, models.CodeNotFound) {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return "", err
	}

	user := &models.User{
		Email:        in.Email,
		PasswordHash: string(hash),
		Name:         in.Name,
		PostIDs:      []string{},
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Lost a race with a concurrent signup for the same address.
		if models.HasCode(err, models.CodeValidationFailed) {
			return "", duplicateEmail(in.Email)
		}
		return "", err
	}
	return user.ID, nil
}

// Login checks credentials and returns a signed token and the user id.
func (s *AccountService) Login(ctx context.Context, email, password string) (token, userID string, err error) {
	ctx, finish := observability.StartServiceSpan(ctx, accountServiceName, "Login")
	defer func() { finish(err) }()

	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if models.HasCode(err, models.CodeNotFound) {
			return "", "", models.NewUnauthenticatedError("A user with this email could not be found.")
		}
		return "", "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return "", "", models.NewUnauthenticatedError("Wrong password!")
		}
		return "", "", err
	}

	token, err = s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return "", "", err
	}
	return token, user.ID, nil
}

// GetStatus returns the status line of userID.
func (s *AccountService) GetStatus(ctx context.Context, userID string) (string, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Status, nil
}

// UpdateStatus replaces the status line of userID.
func (s *AccountService) UpdateStatus(ctx context.Context, userID, status string) error {
	status, fieldErrs := validation.NormalizeStatus(status)
	if len(fieldErrs) > 0 {
		return models.NewValidationFailedError("Validation failed.", fieldErrs)
	}

	return s.users.SetStatus(ctx, userID, status)
}

func duplicateEmail(email string) *models.AppError {
	return models.NewValidationFailedError("E-Mail address already exists!", []models.FieldError{
		{Field: "email", Message: "E-Mail address already exists!", Value: email},
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
