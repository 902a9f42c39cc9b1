package echoapi

import (
	"crypto/rand"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/shibl-edu/shibl/core"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrBadCredentials  = errors.New("bad credentials")
	ErrOTPInvalid      = errors.New("invalid OTP")
	ErrOTPExpired      = errors.New("OTP has expired")
	ErrOTPThrottled    = errors.New("too many attempts")
	ErrNoOTPIssued     = errors.New("no OTP issued")
)

type (
	// Account is a stored dev account. Codes are held bcrypt-hashed like
	// passwords; the plain code only ever exists in the outgoing mail.
	Account struct {
		ID       int
		Name     string
		Email    string
		Phone    string
		Verified bool

		passwordHash []byte
		otp          *otpIssue
	}

	otpIssue struct {
		hash      []byte
		expiresAt time.Time
		issuedAt  time.Time
		attempts  int
	}

	// Store keeps accounts in memory, partitioned per auth flow. Safe for
	// concurrent handlers.
	Store struct {
		conf *core.Config

		mu     sync.Mutex
		nextID int
		flows  map[string]map[string]*Account // flow -> email -> account
	}
)

func NewStore(conf *core.Config) *Store {
	return &Store{
		conf:   conf,
		nextID: 1,
		flows:  make(map[string]map[string]*Account),
	}
}

func (s *Store) accounts(flow string) map[string]*Account {
	m, ok := s.flows[flow]
	if !ok {
		m = make(map[string]*Account)
		s.flows[flow] = m
	}
	return m
}

// Register creates an unverified account and issues its first code.
func (s *Store) Register(flow, name, email, password string) (Account, string, error) {
	email = core.CleanString(email, true)

	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := s.accounts(flow)
	if _, ok := accounts[email]; ok {
		return Account{}, "", ErrAccountExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return Account{}, "", errors.Wrap(err, "hashing password")
	}

	acct := &Account{
		ID:           s.nextID,
		Name:         core.CleanString(name),
		Email:        email,
		passwordHash: hash,
	}
	s.nextID++
	accounts[email] = acct

	code, err := s.issueLocked(acct, true)
	if err != nil {
		return Account{}, "", err
	}
	return *acct, code, nil
}

// Authenticate checks the password and returns the account.
func (s *Store) Authenticate(flow, email, password string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts(flow)[core.CleanString(email, true)]
	if !ok {
		return Account{}, ErrBadCredentials
	}
	if bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)) != nil {
		return Account{}, ErrBadCredentials
	}
	return *acct, nil
}

// Get looks an account up by email.
func (s *Store) Get(flow, email string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts(flow)[core.CleanString(email, true)]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return *acct, nil
}

// GetByID looks an account up by ID within a flow.
func (s *Store) GetByID(flow string, id int) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, acct := range s.accounts(flow) {
		if acct.ID == id {
			return *acct, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

// IssueOTP mints a fresh code for the account, replacing any outstanding one.
// Re-issues inside the resend window are throttled.
func (s *Store) IssueOTP(flow, email string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts(flow)[core.CleanString(email, true)]
	if !ok {
		return "", ErrAccountNotFound
	}
	return s.issueLocked(acct, false)
}

func (s *Store) issueLocked(acct *Account, first bool) (string, error) {
	window := s.conf.OTP.ResendWindow
	if !first && acct.otp != nil && time.Since(acct.otp.issuedAt) < window {
		return "", ErrOTPThrottled
	}

	code, err := generateCode(s.conf.OTP.CodeLength)
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	if err != nil {
		return "", errors.Wrap(err, "hashing OTP")
	}
	acct.otp = &otpIssue{
		hash:      hash,
		issuedAt:  time.Now(),
		expiresAt: time.Now().Add(s.conf.OTP.CodeTTL),
	}
	return code, nil
}

// VerifyOTP redeems a code. A correct code consumes the issue and marks the
// account verified; wrong codes burn an attempt and the issue dies after
// MaxAttempts.
func (s *Store) VerifyOTP(flow, email, code string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts(flow)[core.CleanString(email, true)]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	if acct.otp == nil {
		return Account{}, ErrNoOTPIssued
	}
	if time.Now().After(acct.otp.expiresAt) {
		acct.otp = nil
		return Account{}, ErrOTPExpired
	}
	if acct.otp.attempts >= s.conf.OTP.MaxAttempts {
		acct.otp = nil
		return Account{}, ErrOTPThrottled
	}
	if bcrypt.CompareHashAndPassword(acct.otp.hash, []byte(code)) != nil {
		acct.otp.attempts++
		return Account{}, ErrOTPInvalid
	}

	acct.otp = nil
	acct.Verified = true
	return *acct, nil
}

// ResetPassword redeems a code and replaces the password in one step. The new
// password must differ from the current one, checked before the code is
// consumed so a rejected reset does not burn the issue.
func (s *Store) ResetPassword(flow, email, code, password string) error {
	s.mu.Lock()
	acct, ok := s.accounts(flow)[core.CleanString(email, true)]
	if !ok {
		s.mu.Unlock()
		return ErrAccountNotFound
	}
	same := bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)) == nil
	s.mu.Unlock()
	if same {
		return core.NewValidationError(
			errors.New("password unchanged"),
			core.FieldError{Field: "password", Error: "must differ from the current password"},
		)
	}

	if _, err := s.VerifyOTP(flow, email, code); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok = s.accounts(flow)[core.CleanString(email, true)]
	if !ok {
		return ErrAccountNotFound
	}
	acct.passwordHash = hash
	return nil
}

func generateCode(length int) (string, error) {
	if length <= 0 {
		length = 6
	}
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", errors.Wrap(err, "generating OTP")
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
