package shibl

import (
	"context"

	"github.com/shibl-edu/shibl/core/verification"
)

// VerifyEmailService adapts the email-verification endpoints to the session
// Service contract. The target is the account email.
func (c *Client) VerifyEmailService() verification.Service {
	return verifyEmailService{c}
}

type verifyEmailService struct{ c *Client }

var _ verification.Service = verifyEmailService{}

func (s verifyEmailService) Verify(ctx context.Context, target, code string) (verification.Identity, error) {
	return s.c.VerifyEmail(ctx, target, code)
}

func (s verifyEmailService) Resend(ctx context.Context, target string) error {
	return s.c.ResendOTP(ctx, target)
}

// PasswordResetService adapts the reset-password endpoints to the session
// Service contract with the new password bound up front. A successful verify
// consumes the code and sets the password; no session is issued.
func (c *Client) PasswordResetService(newPassword string) verification.Service {
	return passwordResetService{c: c, password: newPassword}
}

type passwordResetService struct {
	c        *Client
	password string
}

var _ verification.Service = passwordResetService{}

func (s passwordResetService) Verify(ctx context.Context, target, code string) (verification.Identity, error) {
	if err := s.c.ResetPassword(ctx, target, code, s.password); err != nil {
		return verification.Identity{}, err
	}
	return verification.Identity{Email: target, Role: s.c.flow.Role()}, nil
}

func (s passwordResetService) Resend(ctx context.Context, target string) error {
	return s.c.ForgotPassword(ctx, target)
}
