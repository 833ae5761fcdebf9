package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"

	"devicepulse/internal/domain"

	"golang.org/x/crypto/argon2"
)

var ErrEmptyPassword = errors.New("empty password")

const algoArgon2id = "argon2id"

type Argon2Params struct {
	// Stored alongside the hash so verification uses the original cost.
	Time    uint32 `json:"t"`
	Memory  uint32 `json:"m"` // KiB
	Threads uint8  `json:"p"`
	KeyLen  uint32 `json:"k"`
	SaltLen uint32 `json:"s"`
}

var DefaultArgon2Params = Argon2Params{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 1,
	KeyLen:  32,
	SaltLen: 16,
}

type PasswordHasher struct {
	params Argon2Params
}

func NewPasswordHasher(params Argon2Params) *PasswordHasher {
	return &PasswordHasher{params: params}
}

// NewOperator hashes password into an operator record for username.
func (p *PasswordHasher) NewOperator(username, password string) (domain.Operator, error) {
	if password == "" {
		return domain.Operator{}, ErrEmptyPassword
	}
	salt := make([]byte, p.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return domain.Operator{}, err
	}
	params, err := json.Marshal(p.params)
	if err != nil {
		return domain.Operator{}, err
	}
	return domain.Operator{
		Username: username,
		Algo:     algoArgon2id,
		Hash:     argon2.IDKey([]byte(password), salt, p.params.Time, p.params.Memory, p.params.Threads, p.params.KeyLen),
		Salt:     salt,
		Params:   string(params),
	}, nil
}

// Verify compares password against the stored hash in constant time.
func (p *PasswordHasher) Verify(password string, op *domain.Operator) bool {
	if op == nil || op.Algo != algoArgon2id {
		return false
	}
	var stored Argon2Params
	if err := json.Unmarshal([]byte(op.Params), &stored); err != nil {
		return false
	}
	calculated := argon2.IDKey([]byte(password), op.Salt, stored.Time, stored.Memory, stored.Threads, stored.KeyLen)
	return subtle.ConstantTimeCompare(calculated, op.Hash) == 1
}
