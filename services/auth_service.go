// Package services hosts the account-facing use cases that sit next to the
// messaging core: registration and login. In the full deployment these are
// owned by the account backend; the chat node carries them so a single
// binary can issue the tokens its own verifier accepts.
package services

import (
	"fmt"
	"time"

	"market-chat/auth"
	"market-chat/errors"
	"market-chat/repositories"
)

type IAuthService interface {
	Register(username, email, password string) (Token, error)
	Login(email, password string) (Token, error)
}

type Token string

type AuthService struct {
	userRepository repositories.IUserRepository
	secret         string
	tokenTTL       time.Duration
}

func NewAuthService(repo repositories.IUserRepository, secret string, tokenTTL time.Duration) IAuthService {
	return &AuthService{userRepository: repo, secret: secret, tokenTTL: tokenTTL}
}

func (s *AuthService) Register(username, email, password string) (Token, error) {
	valReq := auth.RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
	}

	// Business rules first, before any expensive cryptographic operation.
	if err := auth.ValidateRegister(valReq); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrInvalidPassword, err)
	}

	// Hashing happens here so the repository never sees a plain password.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}

	userID, err := s.userRepository.CreateUser(username, email, hashedPassword)
	if err != nil {
		return "", err // Propagates ErrUserAlreadyExists if the email is taken
	}

	token, err := auth.GenerateToken(s.secret, userID, s.tokenTTL)
	if err != nil {
		return "", errors.ErrTokenGeneration
	}
	return Token(token), nil
}

func (s *AuthService) Login(email, password string) (Token, error) {
	user, err := s.userRepository.GetUserByEmail(email)
	if err != nil {
		// Generic error to prevent user enumeration attacks
		return "", errors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", errors.ErrInvalidCredentials
	}

	token, err := auth.GenerateToken(s.secret, user.ID, s.tokenTTL)
	if err != nil {
		return "", errors.ErrTokenGeneration
	}
	return Token(token), nil
}
