package shibl

import (
	"context"
	"net/http"

	"github.com/shibl-edu/shibl/core"
	"github.com/shibl-edu/shibl/core/verification"
)

type (
	loginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	verifyEmailRequest struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	resendOTPRequest struct {
		Email string `json:"email"`
	}
	forgotPasswordRequest struct {
		Email string `json:"email"`
	}
	resetPasswordRequest struct {
		Email    string `json:"email"`
		OTP      string `json:"otp"`
		Password string `json:"password"`
	}
)

// Login signs in with email and password. Unverified accounts still log in;
// the server answers with the account but no token until the email is
// verified.
func (c *Client) Login(ctx context.Context, email, password string) (verification.Identity, error) {
	env, err := c.do(ctx, http.MethodPost, c.endpoint("login"), loginRequest{Email: email, Password: password}, false)
	if err != nil {
		return verification.Identity{}, err
	}
	return c.identity(env), nil
}

// VerifyEmail exchanges a one-time code for a verified session.
func (c *Client) VerifyEmail(ctx context.Context, email, code string) (verification.Identity, error) {
	env, err := c.do(ctx, http.MethodPost, c.endpoint("verify-email"), verifyEmailRequest{Email: email, OTP: code}, false)
	if err != nil {
		return verification.Identity{}, err
	}
	id := c.identity(env)
	c.publish(TopicVerified, id)
	return id, nil
}

// ResendOTP asks the server to dispatch a fresh code to email.
func (c *Client) ResendOTP(ctx context.Context, email string) error {
	_, err := c.do(ctx, http.MethodPost, c.endpoint("resend-otp"), resendOTPRequest{Email: email}, false)
	return err
}

// ForgotPassword starts the password-reset flow; the server mails a code.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	_, err := c.do(ctx, http.MethodPost, c.endpoint("forgot-password"), forgotPasswordRequest{Email: email}, false)
	return err
}

// ResetPassword redeems a reset code for a new password.
func (c *Client) ResetPassword(ctx context.Context, email, code, password string) error {
	_, err := c.do(ctx, http.MethodPost, c.endpoint("reset-password"), resetPasswordRequest{Email: email, OTP: code, Password: password}, false)
	return err
}

// Me fetches the authenticated account.
func (c *Client) Me(ctx context.Context) (Account, error) {
	env, err := c.do(ctx, http.MethodGet, c.endpoint("me"), nil, true)
	if err != nil {
		return Account{}, err
	}
	if acct := env.Data.account(); acct != nil {
		return *acct, nil
	}
	return Account{}, verification.Classify(http.StatusInternalServerError, "response carried no account", env.LocalizedMessage)
}

// Refresh exchanges the held token for a fresh one. It bypasses do so a 401
// here can never trigger another refresh.
func (c *Client) Refresh(ctx context.Context) error {
	env, status, err := c.roundTrip(ctx, http.MethodPost, c.endpoint("refresh"), nil, true)
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest || !env.Success || env.Data.Token == "" {
		return verification.Classify(status, env.Message, env.LocalizedMessage)
	}
	c.SetToken(env.Data.Token)
	c.publish(TopicTokenRefreshed, nil)
	return nil
}

// Logout drops the held token optimistically and confirms with the server;
// a failed confirmation restores the token so the call can be retried.
func (c *Client) Logout(ctx context.Context) error {
	prev := c.Token()
	if prev == "" {
		return nil
	}
	return core.Mutation{
		Apply: func() { c.SetToken("") },
		Confirm: func(ctx context.Context) error {
			env, status, err := c.roundTripWithToken(ctx, http.MethodPost, c.endpoint("logout"), nil, prev)
			if err != nil {
				return err
			}
			if status >= http.StatusBadRequest || !env.Success {
				return verification.Classify(status, env.Message, env.LocalizedMessage)
			}
			return nil
		},
		Rollback: func() { c.SetToken(prev) },
	}.Run(ctx)
}
