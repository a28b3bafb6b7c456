package password

import (
	"errors"
	"fmt"
	"strings"
)

// Hasher turns plaintext passwords into storable hashes and checks them.
type Hasher interface {
	Hash(password string) (string, error)
	// Verify returns false with a nil error on mismatch. A non-nil error means the
	// stored hash could not be interpreted.
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

// Algorithm names accepted by New.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

var (
	// ErrEmptyPassword is returned when hashing an empty string.
	ErrEmptyPassword = errors.New("password is empty")
	// ErrUnsupportedHash is returned by Verify for hashes of a foreign or corrupt format.
	ErrUnsupportedHash = errors.New("unsupported password hash")
)

// Options selects and parameterises a Hasher. Zero fields take defaults.
type Options struct {
	Algorithm  string
	BcryptCost int
	Argon2     Argon2Config
}

func (o Options) normalized() (Options, error) {
	switch strings.ToLower(strings.TrimSpace(o.Algorithm)) {
	case "", AlgorithmBcrypt:
		o.Algorithm = AlgorithmBcrypt
	case AlgorithmArgon2id:
		o.Algorithm = AlgorithmArgon2id
	default:
		return Options{}, fmt.Errorf("unknown password algorithm %q", o.Algorithm)
	}
	if o.BcryptCost == 0 {
		o.BcryptCost = DefaultBcryptCost
	}
	if o.Argon2 == (Argon2Config{}) {
		o.Argon2 = DefaultArgon2Config()
	}
	return o, nil
}

// New builds the Hasher named by opts.Algorithm. An empty algorithm means bcrypt.
// Whatever the algorithm, the Hasher verifies hashes of every supported format
// and reports hashes of another algorithm as needing an upgrade.
func New(opts Options) (Hasher, error) {
	opts, err := opts.normalized()
	if err != nil {
		return nil, err
	}
	if opts.Algorithm == AlgorithmArgon2id {
		if err := opts.Argon2.validate(); err != nil {
			return nil, err
		}
		return &Argon2{opts: opts}, nil
	}
	if err := checkBcryptCost(opts.BcryptCost); err != nil {
		return nil, err
	}
	return &Bcrypt{opts: opts}, nil
}
