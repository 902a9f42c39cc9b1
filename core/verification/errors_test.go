package verification

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/shibl-edu/shibl/core"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		want    Kind
	}{
		{name: "network", status: 0, message: "dial tcp: connection refused", want: KindNetwork},
		{name: "rate limited", status: 429, message: "Too many attempts", want: KindRateLimited},
		{name: "invalid otp on 401", status: 401, message: "Invalid OTP", want: KindInvalidCode},
		{name: "expired otp on 400", status: 400, message: "OTP has expired", want: KindInvalidCode},
		{name: "session expired", status: 401, message: "Unauthenticated.", want: KindUnauthenticated},
		{name: "field required", status: 422, message: "The email field is required.", want: KindValidation},
		{name: "server error", status: 500, message: "Internal Server Error", want: KindServer},
		{name: "bad gateway", status: 502, message: "", want: KindServer},
		{name: "unmapped status", status: 418, message: "I'm a teapot", want: KindUnknown},
		{name: "empty everything", status: 204, message: "", want: KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.status, tt.message, "").Kind; got != tt.want {
				t.Errorf("Classify(%d, %q).Kind = %v, want %v", tt.status, tt.message, got, tt.want)
			}
		})
	}
}

func TestDisplayFallsBackOnUnknown(t *testing.T) {
	uni := core.NewUniversalTranslator()
	RegisterMessages(uni)
	trans, _ := uni.GetTranslator("ar")

	e := Classify(418, "I'm a teapot", "")
	if got := e.Display(trans); got != messageTexts["ar"][msgUnknown] {
		t.Errorf("Display() = %q, want generic fallback", got)
	}
}

func TestDisplayServerMessageWins(t *testing.T) {
	uni := core.NewUniversalTranslator()
	RegisterMessages(uni)
	trans, _ := uni.GetTranslator("ar")

	e := Classify(429, "Too many attempts", "انتظر قليلاً ثم حاول مجدداً")
	if got := e.Display(trans); got != "انتظر قليلاً ثم حاول مجدداً" {
		t.Errorf("Display() = %q, want server-localized copy", got)
	}
}

func TestDisplayLocalized(t *testing.T) {
	uni := core.NewUniversalTranslator()
	RegisterMessages(uni)

	arTrans, _ := uni.GetTranslator("ar")
	enTrans, _ := uni.GetTranslator("en")

	e := Classify(429, "Too many attempts", "")
	if got := e.Display(arTrans); got != messageTexts["ar"][msgRateLimited] {
		t.Errorf("ar Display() = %q", got)
	}
	if got := e.Display(enTrans); got != messageTexts["en"][msgRateLimited] {
		t.Errorf("en Display() = %q", got)
	}
}

func TestAsError(t *testing.T) {
	if AsError(nil) != nil {
		t.Error("AsError(nil) should be nil")
	}
	verr := Classify(500, "boom", "")
	if AsError(verr) != verr {
		t.Error("AsError must pass *Error through unchanged")
	}
	wrapped := AsError(errors.New("socket closed"))
	if wrapped.Kind != KindUnknown || wrapped.Message != "socket closed" {
		t.Errorf("AsError() = %+v", wrapped)
	}
}
