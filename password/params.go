package password

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Params are the parameters an encoded hash was produced with. Argon2.SaltLength
// is the decoded salt size.
type Params struct {
	Algorithm  string
	BcryptCost int
	Argon2     Argon2Config
}

// Inspect reads the algorithm and parameters out of an encoded hash without
// verifying anything.
func Inspect(encodedHash string) (Params, error) {
	switch {
	case strings.HasPrefix(encodedHash, "$"+AlgorithmArgon2id+"$"):
		h, err := parsePHC(encodedHash)
		if err != nil {
			return Params{}, fmt.Errorf("%w: %v", ErrUnsupportedHash, err)
		}
		return Params{Algorithm: AlgorithmArgon2id, Argon2: h.params}, nil
	case strings.HasPrefix(encodedHash, "$2"):
		cost, err := bcrypt.Cost([]byte(encodedHash))
		if err != nil {
			return Params{}, fmt.Errorf("%w: %v", ErrUnsupportedHash, err)
		}
		return Params{Algorithm: AlgorithmBcrypt, BcryptCost: cost}, nil
	default:
		return Params{}, ErrUnsupportedHash
	}
}

// weakerThan reports whether a hash made with p should be replaced by one made
// with target. Switching algorithms always counts.
func (p Params) weakerThan(target Options) bool {
	if p.Algorithm != target.Algorithm {
		return true
	}
	if p.Algorithm == AlgorithmBcrypt {
		return p.BcryptCost < target.BcryptCost
	}
	have, want := p.Argon2, target.Argon2
	return have.Memory < want.Memory ||
		have.Time < want.Time ||
		have.Parallelism < want.Parallelism ||
		have.KeyLength != want.KeyLength
}

func needsUpgrade(target Options, encodedHash string) (bool, error) {
	p, err := Inspect(encodedHash)
	if err != nil {
		return false, err
	}
	return p.weakerThan(target), nil
}

// verify dispatches on the hash format, so a deployment that changes algorithm
// keeps accepting existing hashes until they are upgraded.
func verify(password, encodedHash string) (bool, error) {
	p, err := Inspect(encodedHash)
	if err != nil {
		return false, err
	}
	if p.Algorithm == AlgorithmArgon2id {
		return verifyArgon2(password, encodedHash)
	}
	return verifyBcrypt(password, encodedHash)
}
