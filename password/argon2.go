package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
)

// Argon2Config holds argon2id cost parameters. Memory is in KiB.
type Argon2Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config returns the parameters used when none are configured.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Argon2Config) validate() error {
	limits := []struct {
		ok   bool
		name string
		min  uint32
	}{
		{c.Memory >= minMemoryKB, "memory (KiB)", minMemoryKB},
		{c.Time >= minTimeCost, "time", minTimeCost},
		{c.Parallelism >= minParallelism, "parallelism", uint32(minParallelism)},
		{c.SaltLength >= minSaltLength, "salt length", minSaltLength},
		{c.KeyLength >= minKeyLength, "key length", minKeyLength},
	}
	for _, l := range limits {
		if !l.ok {
			return fmt.Errorf("argon2 %s must be >= %d", l.name, l.min)
		}
	}
	return nil
}

// Argon2 hashes passwords with argon2id and encodes them in PHC format.
type Argon2 struct {
	opts Options
}

var _ Hasher = (*Argon2)(nil)

// NewArgon2 validates cfg against the package minimums.
func NewArgon2(cfg Argon2Config) (*Argon2, error) {
	h, err := New(Options{Algorithm: AlgorithmArgon2id, Argon2: cfg})
	if err != nil {
		return nil, err
	}
	return h.(*Argon2), nil
}

// Hash derives a new salted argon2id hash of password. The bytes are hashed
// as given, without Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	cfg := a.opts.Argon2
	h := phcHash{params: cfg, salt: make([]byte, cfg.SaltLength)}
	if _, err := io.ReadFull(rand.Reader, h.salt); err != nil {
		return "", err
	}
	h.key = h.derive(password)
	return h.String(), nil
}

func (a *Argon2) Verify(password, encodedHash string) (bool, error) {
	return verify(password, encodedHash)
}

// NeedsUpgrade reports whether encodedHash is bcrypt or used weaker argon2id
// parameters than the configured ones.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	return needsUpgrade(a.opts, encodedHash)
}

func verifyArgon2(password, encodedHash string) (bool, error) {
	h, err := parsePHC(encodedHash)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnsupportedHash, err)
	}
	return subtle.ConstantTimeCompare(h.derive(password), h.key) == 1, nil
}

// phcHash is one argon2id hash in the form
//
//	$argon2id$v=19$m=<KiB>,t=<passes>,p=<lanes>$<salt>$<key>
//
// with salt and key in unpadded standard base64.
type phcHash struct {
	params Argon2Config
	salt   []byte
	key    []byte
}

func (h phcHash) derive(password string) []byte {
	return argon2.IDKey([]byte(password), h.salt, h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
}

func (h phcHash) paramString() string {
	return fmt.Sprintf("m=%d,t=%d,p=%d", h.params.Memory, h.params.Time, h.params.Parallelism)
}

func (h phcHash) String() string {
	return strings.Join([]string{
		"",
		AlgorithmArgon2id,
		fmt.Sprintf("v=%d", argon2.Version),
		h.paramString(),
		base64.RawStdEncoding.EncodeToString(h.salt),
		base64.RawStdEncoding.EncodeToString(h.key),
	}, "$")
}

func parsePHC(encoded string) (phcHash, error) {
	var h phcHash
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != AlgorithmArgon2id {
		return h, errors.New("not an argon2id PHC string")
	}
	if fields[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return h, fmt.Errorf("unsupported argon2 version %q", fields[2])
	}

	p := &h.params
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Parallelism); err != nil {
		return h, fmt.Errorf("argon2 parameters %q: %v", fields[3], err)
	}
	// Sscanf tolerates trailing input and leading zeros; only the canonical
	// form is accepted.
	if h.paramString() != fields[3] {
		return h, fmt.Errorf("argon2 parameters %q are not canonical", fields[3])
	}

	var err error
	if h.salt, err = decodePHCBase64(fields[4]); err != nil {
		return h, fmt.Errorf("argon2 salt: %v", err)
	}
	if h.key, err = decodePHCBase64(fields[5]); err != nil {
		return h, fmt.Errorf("argon2 key: %v", err)
	}
	p.SaltLength = uint32(len(h.salt))
	p.KeyLength = uint32(len(h.key))

	if err := p.validate(); err != nil {
		return h, err
	}
	return h, nil
}

// decodePHCBase64 also accepts padded input, which older hashes carry.
func decodePHCBase64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
