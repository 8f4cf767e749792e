// Package auth holds the authentication boundary: password hashing, session
// tokens, the middleware that turns a token into a caller identity, and the
// limiter that throttles repeated login attempts.
//
// WHY BCRYPT?
// A password hash has to be slow. SHA-256 runs billions of times per second on
// a GPU, so a leaked table of fast hashes falls to a dictionary attack in an
// afternoon. bcrypt makes every guess cost real CPU time, and the cost is a
// knob we can raise as hardware gets faster.
//
// bcrypt also takes care of the salt: GenerateFromPassword picks a random one
// and writes it into the output, so the users table needs a single column and
// two users with the same password still get different hashes.
//
// STORED HASH FORMAT:
//
//	$2a$12$<22-char salt><31-char hash>
//	    ^^
//	    cost: 2^12 rounds of the key schedule
//
// THE 72-BYTE LIMIT:
// bcrypt only reads the first 72 bytes of its input. Rather than let a long
// passphrase be silently truncated (so that any string sharing those 72 bytes
// would log in), Hash rejects it with ErrPasswordTooLong.
package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MinCost is the lowest bcrypt work factor accepted outside tests.
//
// COST TUNING:
// Each step doubles the work. At 12 a hash takes a few hundred milliseconds on
// a current server: unnoticeable for one login, ruinous for someone replaying
// a wordlist. Configuration may go higher; anything lower is raised to 12.
const MinCost = 12

// maxPasswordBytes is bcrypt's input limit; longer input would be silently truncated.
const maxPasswordBytes = 72

// ErrPasswordTooLong is returned by Hash for input bcrypt cannot represent.
var ErrPasswordTooLong = errors.New("auth: password must be 72 bytes or fewer")

// PasswordService hashes and checks passwords with bcrypt.
//
// It is a struct rather than a pair of functions so the cost can be injected:
// tests build one with cost 4 through NewPasswordServiceForTest and run in
// milliseconds without changing any of the logic under test.
type PasswordService struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

// NewPasswordService returns a service using cost, raised to MinCost if lower.
func NewPasswordService(cost int) *PasswordService {
	if cost < MinCost {
		cost = MinCost
	}
	return &PasswordService{cost: cost}
}

// NewPasswordServiceForTest allows a low cost so tests stay fast.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Cost returns the configured work factor.
func (p *PasswordService) Cost() int {
	return p.cost
}

// Hash returns the bcrypt hash of plaintext, salt included. The result is what
// goes into users.password_hash; the plaintext is never stored or logged.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Matches reports whether plaintext hashes to hash. A mismatch is not an error.
func (p *PasswordService) Matches(hash, plaintext string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("auth: comparing password hash: %w", err)
}

// BurnCompare runs a comparison against a throwaway hash of the same cost.
//
// TIMING AND USERNAME ENUMERATION:
// A login for an unknown user would otherwise return in microseconds while a
// wrong password for a real user takes a full bcrypt compare. Measuring that
// gap tells an attacker which usernames exist. Callers run BurnCompare on the
// unknown-user path so both paths cost one comparison at the same cost.
//
// The dummy hash is generated once, on first use.
func (p *PasswordService) BurnCompare(plaintext string) {
	p.dummyOnce.Do(func() {
		p.dummy, _ = bcrypt.GenerateFromPassword([]byte("knowledge-library/unknown-user"), p.cost)
	})
	_ = bcrypt.CompareHashAndPassword(p.dummy, []byte(plaintext))
}
