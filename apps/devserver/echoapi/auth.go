package echoapi

import (
	"fmt"
	"net/http"
	"net/mail"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/shibl-edu/shibl/core"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "Unauthenticated.")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountExists        = echo.NewHTTPError(http.StatusBadRequest, "account already exists")
	errAccountNotFound      = echo.NewHTTPError(http.StatusNotFound, "account not found")
	errInvalidOTP           = echo.NewHTTPError(http.StatusUnauthorized, "Invalid OTP")
	errExpiredOTP           = echo.NewHTTPError(http.StatusUnauthorized, "OTP has expired")
	errTooManyAttempts      = echo.NewHTTPError(http.StatusTooManyRequests, "Too many attempts")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role,omitempty"`
}

func (api *authAPI) getAccountClaims(flow string, acct Account, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    api.conf.AppName,
			Subject:   strconv.Itoa(acct.ID),
			Audience:  flow,
			ExpiresAt: now.Add(api.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Name:         acct.Name,
		Email:        acct.Email,
		Role:         roleForFlow(flow),
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func (api *authAPI) GenerateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(api.jwtConfig.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(api.jwtConfig.SigningKey.([]byte))
	if err != nil {
		return "", errors.New("signing token")
	}
	return ss, nil
}

func (api *authAPI) getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(api.jwtConfig.ContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func roleForFlow(flow string) string {
	switch flow {
	case "parents":
		return "parent"
	case "teachers":
		return "teacher"
	default:
		return "student"
	}
}

type (
	registerRequest struct {
		Name     string `json:"name" validate:"required"`
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
	}
	loginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	verifyEmailRequest struct {
		Email string `json:"email" validate:"required,email"`
		OTP   string `json:"otp" validate:"required,otp_code"`
	}
	resendOTPRequest struct {
		Email string `json:"email" validate:"required,email"`
	}
	resetPasswordRequest struct {
		Email    string `json:"email" validate:"required,email"`
		OTP      string `json:"otp" validate:"required,otp_code"`
		Password string `json:"password" validate:"required,min=8"`
	}
)

func registerAuthAPI(g *echo.Group, api *authAPI) {
	requireJWT := api.jwtMiddleware()
	for _, flow := range []string{"students", "parents", "teachers"} {
		flow := flow
		fg := g.Group("/auth/" + flow)

		fg.POST("/register", api.register(flow))
		fg.POST("/login", api.login(flow))
		fg.POST("/verify-email", api.verifyEmail(flow))
		fg.POST("/resend-otp", api.resendOTP(flow))
		fg.POST("/forgot-password", api.forgotPassword(flow))
		fg.POST("/reset-password", api.resetPassword(flow))

		fg.GET("/me", api.me(flow), requireJWT)
		fg.POST("/refresh", api.refresh(flow), requireJWT)
		fg.POST("/logout", api.logout, requireJWT)
	}
}

func (api *authAPI) register(flow string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var req registerRequest
		if err := api.bind(ctx, &req); err != nil {
			return err
		}

		acct, code, err := api.store.Register(flow, req.Name, req.Email, req.Password)
		if err != nil {
			return api.storeError(err)
		}
		api.sendOTP(acct, code)
		return api.respond(ctx, http.StatusCreated, "registered, verification code sent", flow, &acct, "")
	}
}

func (api *authAPI) login(flow string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var req loginRequest
		if err := api.bind(ctx, &req); err != nil {
			return err
		}

		acct, err := api.store.Authenticate(flow, req.Email, req.Password)
		if err != nil {
			return api.storeError(err)
		}
		if !acct.Verified {
			// no session until the email is verified
			return api.respond(ctx, http.StatusOK, "email not verified", flow, &acct, "")
		}

		token, err := api.GenerateToken(api.getAccountClaims(flow, acct))
		if err != nil {
			return err
		}
		return api.respond(ctx, http.StatusOK, "logged in", flow, &acct, token)
	}
}

func (api *authAPI) verifyEmail(flow string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var req verifyEmailRequest
		if err := api.bind(ctx, &req); err != nil {
			return err
		}

		acct, err := api.store.VerifyOTP(flow, req.Email, req.OTP)
		if err != nil {
			return api.storeError(err)
		}

		token, err := api.GenerateToken(api.getAccountClaims(flow, acct))
		if err != nil {
			return err
		}
		return api.respond(ctx, http.StatusOK, "email verified", flow, &acct, token)
	}
}

func (api *authAPI) resendOTP(flow string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var req resendOTPRequest
		if err := api.bind(ctx, &req); err != nil {
			return err
		}

		code, err := api.store.IssueOTP(flow, req.Email)
		if err != nil {
			return api.storeError(err)
		}
		if acct, err := api.store.Get(flow, req.Email); err == nil {
			api.sendOTP(acct, code)
		}
		return api.respond(ctx, http.StatusOK, "verification code sent", flow, nil, "")
	}
}

func (api *authAPI) forgotPassword(flow string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var req resendOTPRequest
		if err := api.bind(ctx, &req); err != nil {
			return err
		}

		// an unknown email still answers 200; do not leak accounts
		if code, err := api.store.IssueOTP(flow, req.Email); err == nil {
			if acct, err := api.store.Get(flow, req.Email); err == nil {
				api.sendOTP(acct, code)
			}
		} else if errors.Cause(err) == ErrOTPThrottled {
			return api.storeError(err)
		}
		return api.respond(ctx, http.StatusOK, "reset code sent", flow, nil, "")
	}
}

func (api *authAPI) resetPassword(flow string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		var req resetPasswordRequest
		if err := api.bind(ctx, &req); err != nil {
			return err
		}

		if err := api.store.ResetPassword(flow, req.Email, req.OTP, req.Password); err != nil {
			return api.storeError(err)
		}
		return api.respond(ctx, http.StatusOK, "password reset", flow, nil, "")
	}
}

func (api *authAPI) me(flow string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := api.getContextClaims(ctx)
		if err != nil {
			return err
		}
		id, err := strconv.Atoi(claims.Subject)
		if err != nil {
			return errUnauthorized
		}

		acct, err := api.store.GetByID(flow, id)
		if err != nil {
			return api.storeError(err)
		}
		return api.respond(ctx, http.StatusOK, "", flow, &acct, "")
	}
}

func (api *authAPI) refresh(flow string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := api.getContextClaims(ctx)
		if err != nil {
			return err
		}
		id, err := strconv.Atoi(claims.Subject)
		if err != nil {
			return errUnauthorized
		}

		acct, err := api.store.GetByID(flow, id)
		if err != nil {
			return api.storeError(err)
		}

		// check if refresh has not expired
		expTime := time.Unix(claims.OrigIssuedAt, 0).Add(api.conf.Server.JWTRefreshExpirationDelta)
		if time.Now().After(expTime) {
			return errRefreshExpired
		}

		token, err := api.GenerateToken(api.getAccountClaims(flow, acct, claims.OrigIssuedAt))
		if err != nil {
			return err
		}
		return api.respond(ctx, http.StatusOK, "token refreshed", flow, nil, token)
	}
}

func (api *authAPI) logout(ctx echo.Context) error {
	// stateless tokens; nothing to revoke in dev
	return api.respond(ctx, http.StatusOK, "logged out", "", nil, "")
}

func (api *authAPI) sendOTP(acct Account, code string) {
	body := fmt.Sprintf("رمز التحقق الخاص بك هو: %s\nYour verification code is: %s", code, code)
	api.mail.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: acct.Name, Address: acct.Email}},
		Subject: "رمز التحقق",
		Body:    body,
	})
}

func (api *authAPI) storeError(err error) error {
	switch errors.Cause(err) {
	case ErrAccountExists:
		return errAccountExists
	case ErrAccountNotFound:
		return errAccountNotFound
	case ErrBadCredentials:
		return errAuthenticationFailed
	case ErrOTPInvalid, ErrNoOTPIssued:
		return errInvalidOTP
	case ErrOTPExpired:
		return errExpiredOTP
	case ErrOTPThrottled:
		return errTooManyAttempts
	default:
		return err
	}
}
