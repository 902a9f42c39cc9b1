package echoapi

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/shibl-edu/shibl/core"
)

var (
	// custom validation tags
	otpCodeTag = "otp_code"

	otpCodeTexts = map[string]string{
		"ar": "يجب أن يتكون {0} من أرقام فقط",
		"en": "{0} must contain digits only",
	}
)

// registerCustomValidators adds the request validators the default tag set
// does not cover.
func registerCustomValidators(validate *validator.Validate, uni *ut.UniversalTranslator) {
	_ = validate.RegisterValidation(otpCodeTag, otpCodeValidation)
	for lang, text := range otpCodeTexts {
		if trans, ok := uni.GetTranslator(lang); ok {
			core.RegisterCustomTranslation(validate, trans, otpCodeTag, text)
		}
	}
}

// otpCodeValidation checks that a submitted code is decimal digits only.
func otpCodeValidation(fl validator.FieldLevel) bool {
	code, ok := fl.Field().Interface().(string)
	if !ok || code == "" {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
