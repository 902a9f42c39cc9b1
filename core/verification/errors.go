package verification

import (
	"fmt"
	"strings"

	ut "github.com/go-playground/universal-translator"
)

// Kind classifies a verification failure for display mapping.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindInvalidCode
	KindRateLimited
	KindUnauthenticated
	KindNetwork
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInvalidCode:
		return "invalid-code"
	case KindRateLimited:
		return "rate-limited"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error is a verification failure as surfaced to the screen. Message is the
// machine-readable server message (used for classification and logs);
// LocalizedMessage is optional pre-localized copy supplied by the server and
// takes precedence over the catalog when present.
type Error struct {
	Kind             Kind
	Status           int // HTTP status, 0 for local/network failures
	Message          string
	LocalizedMessage string

	// key pins a specific catalog entry; when empty the Kind decides.
	key string
}

// errIncomplete is the local validation failure for a partial code. It never
// reaches the network.
func errIncomplete() *Error {
	return &Error{Kind: KindValidation, Message: "incomplete code", key: msgIncomplete}
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Kind.String()
}

// AsError coerces any error into a *Error, defaulting to KindUnknown.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if verr, ok := err.(*Error); ok {
		return verr
	}
	return &Error{Kind: KindUnknown, Message: err.Error()}
}

// Classify maps an HTTP outcome onto the failure taxonomy. It is total:
// every (status, message) pair lands on a Kind, unknown input included.
func Classify(status int, message, localized string) *Error {
	e := &Error{Status: status, Message: message, LocalizedMessage: localized}
	lower := strings.ToLower(message)

	switch {
	case status == 0:
		e.Kind = KindNetwork
	case status == 429:
		e.Kind = KindRateLimited
	case status == 401:
		// public auth endpoints answer 401 for a wrong or expired code;
		// everywhere else it means the session is gone
		if strings.Contains(lower, "otp") || strings.Contains(lower, "invalid") || strings.Contains(lower, "expired") {
			e.Kind = KindInvalidCode
		} else {
			e.Kind = KindUnauthenticated
		}
	case status == 400 || status == 422:
		if strings.Contains(lower, "required") || strings.Contains(lower, "field") {
			e.Kind = KindValidation
		} else {
			e.Kind = KindInvalidCode
		}
	case status >= 500:
		e.Kind = KindServer
	default:
		e.Kind = KindUnknown
	}
	return e
}

// message catalog keys
const (
	msgIncomplete  = "otp_incomplete"
	msgFieldsReq   = "fields_required"
	msgInvalidCode = "otp_invalid"
	msgRateLimited = "otp_rate_limited"
	msgSessionGone = "session_expired"
	msgNetwork     = "network_unavailable"
	msgServerError = "server_error"
	msgUnknown     = "unknown_error"
	msgResendOK    = "otp_resent"
	msgResendFail  = "otp_resend_failed"
	msgVerified    = "otp_verified"
)

var messageTexts = map[string]map[string]string{
	"ar": {
		msgIncomplete:  "يرجى إدخال رمز التحقق كاملاً",
		msgFieldsReq:   "يرجى تعبئة جميع الحقول المطلوبة",
		msgInvalidCode: "رمز التحقق غير صحيح أو منتهي الصلاحية",
		msgRateLimited: "محاولات كثيرة جداً، يرجى الانتظار قبل المحاولة مرة أخرى",
		msgSessionGone: "انتهت الجلسة، يرجى تسجيل الدخول مرة أخرى",
		msgNetwork:     "تعذر الاتصال بالخادم، تحقق من اتصالك بالإنترنت",
		msgServerError: "حدث خطأ في الخادم، يرجى المحاولة لاحقاً",
		msgUnknown:     "حدث خطأ، يرجى المحاولة مرة أخرى",
		msgResendOK:    "تم إرسال رمز تحقق جديد",
		msgResendFail:  "فشل في إرسال الرمز",
		msgVerified:    "تم التحقق بنجاح!",
	},
	"en": {
		msgIncomplete:  "please enter the full verification code",
		msgFieldsReq:   "please fill in all required fields",
		msgInvalidCode: "the verification code is invalid or has expired",
		msgRateLimited: "too many attempts, please wait before trying again",
		msgSessionGone: "your session has expired, please sign in again",
		msgNetwork:     "could not reach the server, check your connection",
		msgServerError: "a server error occurred, please try again later",
		msgUnknown:     "an error occurred, please try again",
		msgResendOK:    "a new verification code has been sent",
		msgResendFail:  "failed to send the verification code",
		msgVerified:    "verified successfully!",
	},
}

// RegisterMessages adds the verification display strings to every supported
// translator in the registry.
func RegisterMessages(uni *ut.UniversalTranslator) {
	for lang, texts := range messageTexts {
		trans, ok := uni.GetTranslator(lang)
		if !ok {
			continue
		}
		for key, text := range texts {
			_ = trans.Add(key, text, true)
		}
	}
}

// Notice returns a localized informational string (resend success etc.) by
// catalog key, falling back to the Arabic copy when the translator has no
// entry.
func Notice(trans ut.Translator, key string) string {
	if trans != nil {
		if s, err := trans.T(key); err == nil {
			return s
		}
	}
	if s, ok := messageTexts["ar"][key]; ok {
		return s
	}
	return messageTexts["ar"][msgUnknown]
}

// NoticeResent and friends name the catalog entries owners may render.
const (
	NoticeResent   = msgResendOK
	NoticeVerified = msgVerified
)

// Display maps the failure to a user-facing string. Server-localized copy
// wins; otherwise the catalog entry for the Kind; the default branch never
// fails, whatever the input.
func (e *Error) Display(trans ut.Translator) string {
	if e == nil {
		return ""
	}
	if e.LocalizedMessage != "" {
		return e.LocalizedMessage
	}

	key := e.key
	if key != "" {
		return Notice(trans, key)
	}
	switch e.Kind {
	case KindValidation:
		key = msgFieldsReq
	case KindInvalidCode:
		key = msgInvalidCode
	case KindRateLimited:
		key = msgRateLimited
	case KindUnauthenticated:
		key = msgSessionGone
	case KindNetwork:
		key = msgNetwork
	case KindServer:
		key = msgServerError
	default:
		key = msgUnknown
	}
	return Notice(trans, key)
}
