package core

import (
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	// Config carries all application settings. It is loaded once at startup
	// and passed to the services that need it.
	Config struct {
		AppName   string
		Env       string // DEV (default), TEST, QA, PROD
		Debug     bool
		TestMode  bool
		Build     string
		SecretKey []byte

		// Language is the default display language for user-facing
		// messages ("ar" or "en").
		Language string

		API    APIConfig
		OTP    OTPConfig
		Server ServerConfig

		DefaultFromEmail mail.Address
		SendgridAPIKey   string
		RollbarToken     string
	}

	// APIConfig configures the client side: where the platform API lives
	// and how long to wait for it.
	APIConfig struct {
		BaseURL string
		Timeout time.Duration
	}

	// OTPConfig configures the verification code flows.
	OTPConfig struct {
		CodeLength int
		CodeTTL    time.Duration

		// ResendWindow is the resend cooldown for student/parent flows;
		// the teacher flow uses the longer TeacherResendWindow.
		ResendWindow        time.Duration
		TeacherResendWindow time.Duration

		MaxAttempts int
	}

	ServerConfig struct {
		Addr                      string
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}
)

// NewConfig loads configuration from defaults, an optional config/.env.<env>
// file and environment variables (prefixed with the current ENV).
func NewConfig() (*Config, error) {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Shibl")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "t#3q+g0y^e5(c&o!d3v-0nly;n0t+f0r=pr0d&ch4ng3-m3!")
	v.SetDefault("language", "ar")
	v.SetDefault("apiBaseUrl", "http://localhost:8000")
	v.SetDefault("apiTimeout", 30*time.Second)
	v.SetDefault("otpCodeLength", 6)
	v.SetDefault("otpCodeTtl", 5*time.Minute)
	v.SetDefault("otpResendWindow", 60*time.Second)
	v.SetDefault("otpTeacherResendWindow", 120*time.Second)
	v.SetDefault("otpMaxAttempts", 5)
	v.SetDefault("serverAddr", ":8000")
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "checking %s", dotEnvPath)
	}
	v.AutomaticEnv()

	conf := &Config{
		AppName:   v.GetString("appName"),
		Env:       env,
		Debug:     v.GetBool("debug"),
		TestMode:  env == "TEST",
		Build:     v.GetString("build"),
		SecretKey: []byte(v.GetString("secretKey")),
		Language:  v.GetString("language"),
		API: APIConfig{
			BaseURL: v.GetString("apiBaseUrl"),
			Timeout: v.GetDuration("apiTimeout"),
		},
		OTP: OTPConfig{
			CodeLength:          v.GetInt("otpCodeLength"),
			CodeTTL:             v.GetDuration("otpCodeTtl"),
			ResendWindow:        v.GetDuration("otpResendWindow"),
			TeacherResendWindow: v.GetDuration("otpTeacherResendWindow"),
			MaxAttempts:         v.GetInt("otpMaxAttempts"),
		},
		Server: ServerConfig{
			Addr:                      v.GetString("serverAddr"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
		},
		DefaultFromEmail: mail.Address{Name: v.GetString("appName"), Address: v.GetString("defaultFromEmail")},
		SendgridAPIKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
	}
	return conf, nil
}

// ResendWindowSeconds returns the configured resend cooldown, in whole
// seconds, for the given flow name ("teachers" gets the longer window).
func (c *Config) ResendWindowSeconds(flow string) int {
	if flow == "teachers" {
		return int(c.OTP.TeacherResendWindow / time.Second)
	}
	return int(c.OTP.ResendWindow / time.Second)
}
