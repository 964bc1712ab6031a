package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cppla/guildhall/models"
	"github.com/cppla/guildhall/utils"
)

// RegisterInput is a new account request.
type RegisterInput struct {
	Username     string
	Password     string
	ReferralCode string
	IP           string
}

// RegisterResult is the created account and, when a code was given, the referral it triggered.
type RegisterResult struct {
	User     *models.User
	Referral *ReferralResult
}

// AccountService handles sign-up and credential checks.
type AccountService struct {
	users  UserStore
	ledger *Ledger
}

func NewAccountService(users UserStore, ledger *Ledger) *AccountService {
	return &AccountService{users: users, ledger: ledger}
}

// ValidUsername allows 2-32 ASCII letters, digits, '-' and '_'.
func ValidUsername(s string) bool {
	if l := len(s); l < 2 || l > 32 {
		return false
	}
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '-' || r == '_' {
			continue
		}
		return false
	}
	return true
}

// ValidPassword allows 6-64 characters from letters, digits and -_.!@#
func ValidPassword(s string) bool {
	if l := len(s); l < 6 || l > 64 {
		return false
	}
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || strings.ContainsRune("-_.!@#", r) {
			continue
		}
		return false
	}
	return true
}

const referralCodeAttempts = 5

// Register creates the account and applies the optional referral code. An unknown
// code rejects the registration before anything is written.
func (a *AccountService) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.ReferralCode = strings.TrimSpace(in.ReferralCode)
	if !ValidUsername(in.Username) {
		return RegisterResult{}, fmt.Errorf("%w: username must be 2-32 letters, digits, '-' or '_'", models.ErrValidation)
	}
	if !ValidPassword(in.Password) {
		return RegisterResult{}, fmt.Errorf("%w: password must be 6-64 characters", models.ErrValidation)
	}
	if _, err := a.users.FindUserByUsername(ctx, in.Username); err == nil {
		return RegisterResult{}, models.ErrUsernameTaken
	} else if !errors.Is(err, models.ErrUserNotFound) {
		return RegisterResult{}, err
	}
	if in.ReferralCode != "" {
		if _, err := a.users.FindUserByReferralCode(ctx, in.ReferralCode); errors.Is(err, models.ErrUserNotFound) {
			return RegisterResult{}, models.ErrInvalidReferralCode
		} else if err != nil {
			return RegisterResult{}, err
		}
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{Username: in.Username, PasswordHash: hash, RegisterIP: in.IP}
	for i := 0; ; i++ {
		user.ReferralCode = utils.GenerateReferralCode()
		err = a.users.CreateUser(ctx, user)
		if err == nil {
			break
		}
		if !errors.Is(err, models.ErrDuplicate) {
			return RegisterResult{}, err
		}
		// either the username was taken concurrently or the code collided
		if _, ferr := a.users.FindUserByUsername(ctx, in.Username); ferr == nil {
			return RegisterResult{}, models.ErrUsernameTaken
		}
		if i+1 >= referralCodeAttempts {
			return RegisterResult{}, err
		}
	}

	res := RegisterResult{User: user}
	if in.ReferralCode != "" {
		ref, err := a.ledger.ApplyReferral(ctx, user.ID, in.ReferralCode)
		if err != nil {
			// the account exists; report it with the referral failure
			return res, fmt.Errorf("apply referral: %w", err)
		}
		res.Referral = &ref
		res.User = ref.User
	}
	return res, nil
}

// Authenticate checks username and password.
func (a *AccountService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := a.users.FindUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, models.ErrUserNotFound) {
		return nil, models.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !utils.CheckPassword(user.PasswordHash, password) {
		return nil, models.ErrInvalidCredentials
	}
	return user, nil
}

// Profile loads a user by id.
func (a *AccountService) Profile(ctx context.Context, userID uint) (*models.User, error) {
	return a.users.FindUser(ctx, userID)
}
