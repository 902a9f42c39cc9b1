package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/shibl-edu/shibl/core"
	emailsvc "github.com/shibl-edu/shibl/services/email"
)

func testConfig() *core.Config {
	return &core.Config{
		AppName:   "Shibl",
		Env:       "TEST",
		Debug:     true,
		TestMode:  true,
		SecretKey: []byte("test-secret"),
		Language:  "ar",
		OTP: core.OTPConfig{
			CodeLength:          6,
			CodeTTL:             5 * time.Minute,
			ResendWindow:        time.Minute,
			TeacherResendWindow: 2 * time.Minute,
			MaxAttempts:         5,
		},
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		DefaultFromEmail: mail.Address{Name: "Shibl", Address: "noreply@localhost"},
	}
}

func newTestServer(conf *core.Config) Server {
	emailsvc.ClearSentMessages()
	return NewServer(&Options{
		Conf:           conf,
		Store:          NewStore(conf),
		EmailSvc:       emailsvc.NewConsoleServiceMock(conf),
		DisableReqLogs: true,
	})
}

func doRequest(t *testing.T, srv Server, method, path, token string, body interface{}) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var reqBody *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reqBody = bytes.NewReader(buf)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set(echoHeaderContentType, "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var res response
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("decoding %q: %v", rec.Body.String(), err)
		}
	}
	return rec, res
}

const echoHeaderContentType = "Content-Type"

var codeRx = regexp.MustCompile(`\d{6}`)

func lastSentCode(t *testing.T) string {
	t.Helper()
	msg, ok := emailsvc.LastSentMessage()
	if !ok {
		t.Fatal("no mail captured")
	}
	code := codeRx.FindString(msg.Body)
	if code == "" {
		t.Fatalf("no code in mail body %q", msg.Body)
	}
	return code
}

func registerAccount(t *testing.T, srv Server, flow, name, email, password string) string {
	t.Helper()
	rec, res := doRequest(t, srv, http.MethodPost, "/api/v1/auth/"+flow+"/register", "", map[string]string{
		"name": name, "email": email, "password": password,
	})
	if rec.Code != http.StatusCreated || !res.Success {
		t.Fatalf("register: status=%d body=%+v", rec.Code, res)
	}
	return lastSentCode(t)
}

func TestVerifyEmailFlow(t *testing.T) {
	srv := newTestServer(testConfig())
	code := registerAccount(t, srv, "students", "Amina", "amina@example.com", "s3cr3t-pw!")

	// a wrong code burns an attempt
	rec, res := doRequest(t, srv, http.MethodPost, "/api/v1/auth/students/verify-email", "", map[string]string{
		"email": "amina@example.com", "otp": "000000",
	})
	if rec.Code != http.StatusUnauthorized || res.Success {
		t.Fatalf("wrong code: status=%d body=%+v", rec.Code, res)
	}
	if res.Message != "Invalid OTP" {
		t.Errorf("Message = %q", res.Message)
	}
	if res.LocalizedMessage == "" {
		t.Error("missing localized message")
	}

	// the right code verifies and issues a token
	rec, res = doRequest(t, srv, http.MethodPost, "/api/v1/auth/students/verify-email", "", map[string]string{
		"email": "amina@example.com", "otp": code,
	})
	if rec.Code != http.StatusOK || !res.Success {
		t.Fatalf("verify: status=%d body=%+v", rec.Code, res)
	}
	if res.Data == nil || res.Data.Token == "" {
		t.Fatal("no token issued")
	}
	if res.Data.Student == nil || res.Data.Student.Email != "amina@example.com" {
		t.Errorf("data = %+v", res.Data)
	}

	// the token works on authed endpoints
	rec, res = doRequest(t, srv, http.MethodGet, "/api/v1/auth/students/me", res.Data.Token, nil)
	if rec.Code != http.StatusOK || res.Data == nil || res.Data.Student == nil {
		t.Fatalf("me: status=%d body=%+v", rec.Code, res)
	}
}

func TestVerifyEmailMaxAttempts(t *testing.T) {
	conf := testConfig()
	conf.OTP.MaxAttempts = 2
	srv := newTestServer(conf)
	code := registerAccount(t, srv, "students", "Amina", "amina@example.com", "s3cr3t-pw!")

	for i := 0; i < 2; i++ {
		rec, _ := doRequest(t, srv, http.MethodPost, "/api/v1/auth/students/verify-email", "", map[string]string{
			"email": "amina@example.com", "otp": "000000",
		})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status=%d", i, rec.Code)
		}
	}

	// attempts exhausted; even the right code is refused now
	rec, res := doRequest(t, srv, http.MethodPost, "/api/v1/auth/students/verify-email", "", map[string]string{
		"email": "amina@example.com", "otp": code,
	})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d body=%+v", rec.Code, res)
	}
}

func TestResendOTPThrottled(t *testing.T) {
	srv := newTestServer(testConfig())
	registerAccount(t, srv, "parents", "Karim", "karim@example.com", "s3cr3t-pw!")

	// inside the resend window
	rec, res := doRequest(t, srv, http.MethodPost, "/api/v1/auth/parents/resend-otp", "", map[string]string{
		"email": "karim@example.com",
	})
	if rec.Code != http.StatusTooManyRequests || res.Success {
		t.Fatalf("status=%d body=%+v", rec.Code, res)
	}
}

func TestResendOTPInvalidatesOldCode(t *testing.T) {
	conf := testConfig()
	conf.OTP.ResendWindow = 0
	srv := newTestServer(conf)
	oldCode := registerAccount(t, srv, "students", "Amina", "amina@example.com", "s3cr3t-pw!")

	rec, _ := doRequest(t, srv, http.MethodPost, "/api/v1/auth/students/resend-otp", "", map[string]string{
		"email": "amina@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("resend: status=%d", rec.Code)
	}
	newCode := lastSentCode(t)

	if oldCode != newCode {
		rec, _ = doRequest(t, srv, http.MethodPost, "/api/v1/auth/students/verify-email", "", map[string]string{
			"email": "amina@example.com", "otp": oldCode,
		})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("old code: status=%d", rec.Code)
		}
	}
	rec, _ = doRequest(t, srv, http.MethodPost, "/api/v1/auth/students/verify-email", "", map[string]string{
		"email": "amina@example.com", "otp": newCode,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("new code: status=%d", rec.Code)
	}
}

func TestLoginBeforeAndAfterVerification(t *testing.T) {
	srv := newTestServer(testConfig())
	code := registerAccount(t, srv, "teachers", "Nour", "nour@example.com", "s3cr3t-pw!")

	rec, res := doRequest(t, srv, http.MethodPost, "/api/v1/auth/teachers/login", "", map[string]string{
		"email": "nour@example.com", "password": "s3cr3t-pw!",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status=%d", rec.Code)
	}
	if res.Data != nil && res.Data.Token != "" {
		t.Error("unverified login must not issue a token")
	}

	doRequest(t, srv, http.MethodPost, "/api/v1/auth/teachers/verify-email", "", map[string]string{
		"email": "nour@example.com", "otp": code,
	})

	rec, res = doRequest(t, srv, http.MethodPost, "/api/v1/auth/teachers/login", "", map[string]string{
		"email": "nour@example.com", "password": "s3cr3t-pw!",
	})
	if rec.Code != http.StatusOK || res.Data == nil || res.Data.Token == "" {
		t.Fatalf("verified login: status=%d body=%+v", rec.Code, res)
	}
	if res.Data.Teacher == nil {
		t.Errorf("data = %+v", res.Data)
	}
}

func TestPasswordReset(t *testing.T) {
	conf := testConfig()
	conf.OTP.ResendWindow = 0
	srv := newTestServer(conf)
	registerAccount(t, srv, "students", "Amina", "amina@example.com", "0ld-pa55word")

	rec, _ := doRequest(t, srv, http.MethodPost, "/api/v1/auth/students/forgot-password", "", map[string]string{
		"email": "amina@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("forgot: status=%d", rec.Code)
	}
	code := lastSentCode(t)

	rec, _ = doRequest(t, srv, http.MethodPost, "/api/v1/auth/students/reset-password", "", map[string]string{
		"email": "amina@example.com", "otp": code, "password": "n3w-pa55word",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: status=%d", rec.Code)
	}

	rec, _ = doRequest(t, srv, http.MethodPost, "/api/v1/auth/students/login", "", map[string]string{
		"email": "amina@example.com", "password": "0ld-pa55word",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("old password: status=%d", rec.Code)
	}
	rec, _ = doRequest(t, srv, http.MethodPost, "/api/v1/auth/students/login", "", map[string]string{
		"email": "amina@example.com", "password": "n3w-pa55word",
	})
	if rec.Code != http.StatusOK {
		t.Errorf("new password: status=%d", rec.Code)
	}
}

func TestVerifyEmailNonDigitOTP(t *testing.T) {
	srv := newTestServer(testConfig())
	registerAccount(t, srv, "students", "Amina", "amina@example.com", "s3cr3t-pw!")

	// rejected by validation before the store sees it
	rec, res := doRequest(t, srv, http.MethodPost, "/api/v1/auth/students/verify-email", "", map[string]string{
		"email": "amina@example.com", "otp": "12ab56",
	})
	if rec.Code != http.StatusBadRequest || res.Success {
		t.Fatalf("status=%d body=%+v", rec.Code, res)
	}
	if !strings.Contains(res.Message, "otp") {
		t.Errorf("Message = %q, want otp field error", res.Message)
	}
	if res.LocalizedMessage == "" {
		t.Error("missing localized message")
	}
}

func TestResetPasswordSamePassword(t *testing.T) {
	conf := testConfig()
	conf.OTP.ResendWindow = 0
	srv := newTestServer(conf)
	registerAccount(t, srv, "students", "Amina", "amina@example.com", "0ld-pa55word")

	rec, _ := doRequest(t, srv, http.MethodPost, "/api/v1/auth/students/forgot-password", "", map[string]string{
		"email": "amina@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("forgot: status=%d", rec.Code)
	}
	code := lastSentCode(t)

	// re-using the current password is refused
	rec, res := doRequest(t, srv, http.MethodPost, "/api/v1/auth/students/reset-password", "", map[string]string{
		"email": "amina@example.com", "otp": code, "password": "0ld-pa55word",
	})
	if rec.Code != http.StatusBadRequest || res.Success {
		t.Fatalf("same password: status=%d body=%+v", rec.Code, res)
	}
	if !strings.Contains(res.Message, "password") {
		t.Errorf("Message = %q, want password field error", res.Message)
	}

	// the refusal did not consume the code
	rec, _ = doRequest(t, srv, http.MethodPost, "/api/v1/auth/students/reset-password", "", map[string]string{
		"email": "amina@example.com", "otp": code, "password": "n3w-pa55word",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("retry with new password: status=%d", rec.Code)
	}
	rec, _ = doRequest(t, srv, http.MethodPost, "/api/v1/auth/students/login", "", map[string]string{
		"email": "amina@example.com", "password": "n3w-pa55word",
	})
	if rec.Code != http.StatusOK {
		t.Errorf("new password: status=%d", rec.Code)
	}
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	srv := newTestServer(testConfig())
	rec, res := doRequest(t, srv, http.MethodPost, "/api/v1/auth/students/forgot-password", "", map[string]string{
		"email": "ghost@example.com",
	})
	if rec.Code != http.StatusOK || !res.Success {
		t.Errorf("unknown email must not be leaked: status=%d body=%+v", rec.Code, res)
	}
}

func TestValidationErrors(t *testing.T) {
	srv := newTestServer(testConfig())
	rec, res := doRequest(t, srv, http.MethodPost, "/api/v1/auth/students/register", "", map[string]string{
		"name": "Amina",
	})
	if rec.Code != http.StatusBadRequest || res.Success {
		t.Fatalf("status=%d body=%+v", rec.Code, res)
	}
	if !strings.Contains(res.Message, "field") {
		t.Errorf("Message = %q, want field errors", res.Message)
	}
}

func TestAuthedEndpointWithoutToken(t *testing.T) {
	srv := newTestServer(testConfig())
	rec, res := doRequest(t, srv, http.MethodGet, "/api/v1/auth/students/me", "", nil)
	if rec.Code != http.StatusUnauthorized || res.Success {
		t.Fatalf("status=%d body=%+v", rec.Code, res)
	}
	if res.Message != "Unauthenticated." {
		t.Errorf("Message = %q", res.Message)
	}
}
