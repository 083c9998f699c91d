package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// ErrSignUpRequired signals that the phone number has no telegram account
// yet and a sign-up call must follow the code exchange.
var ErrSignUpRequired = errors.New("telegram account sign up required")

// SendCode asks telegram to deliver a login code to the phone number and
// returns the code hash the later sign-in must echo back.
func (s *Session) SendCode(ctx context.Context, number string) (string, error) {
	sent, err := s.client.Auth().SendCode(ctx, number, auth.SendCodeOptions{})
	if err != nil {
		return "", fmt.Errorf("send code: %w", err)
	}

	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		return "", fmt.Errorf("send code: unexpected response %T", sent)
	}
	return code.PhoneCodeHash, nil
}

// SignIn completes the code exchange. Returns ErrSignUpRequired when the
// number has no account, which the caller answers with SignUp.
func (s *Session) SignIn(ctx context.Context, number, code, codeHash string) error {
	_, err := s.client.Auth().SignIn(ctx, number, code, codeHash)
	if err != nil {
		if errors.Is(err, &auth.SignUpRequired{}) {
			return ErrSignUpRequired
		}
		return fmt.Errorf("sign in: %w", err)
	}
	return nil
}

// SignUp registers a fresh account on the number after SignIn reported
// ErrSignUpRequired.
func (s *Session) SignUp(ctx context.Context, number, codeHash, firstName, lastName string) error {
	_, err := s.api.AuthSignUp(ctx, &tg.AuthSignUpRequest{
		PhoneNumber:   number,
		PhoneCodeHash: codeHash,
		FirstName:     firstName,
		LastName:      lastName,
	})
	if err != nil {
		return fmt.Errorf("sign up: %w", err)
	}
	return nil
}

// Authorized reports whether the underlying session holds a live
// authorization.
func (s *Session) Authorized(ctx context.Context) (bool, error) {
	status, err := s.client.Auth().Status(ctx)
	if err != nil {
		return false, fmt.Errorf("auth status: %w", err)
	}
	return status.Authorized, nil
}

// LoadSelf fetches and caches the authorized user. Used after a sign-in
// flow completes on a session opened with OpenForAuth.
func (s *Session) LoadSelf(ctx context.Context) (*tg.User, error) {
	self, err := s.client.Self(ctx)
	if err != nil {
		return nil, fmt.Errorf("get self: %w", err)
	}
	s.self = self
	return self, nil
}
