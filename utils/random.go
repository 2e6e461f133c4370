package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	nanoid "github.com/jaevor/go-nanoid"
)

// transaction ids are short enough to be read over the phone.
var newTransactionID = mustNanoID(16)

func mustNanoID(length int) func() string {
	gen, err := nanoid.Standard(length)
	if err != nil {
		panic(err)
	}
	return gen
}

// NewTransactionID returns an opaque id for a checkout attempt.
func NewTransactionID() string {
	return newTransactionID()
}

// NewTicketID returns a globally unique ticket id.
func NewTicketID() string {
	return uuid.NewString()
}

// GenerateCode returns n random bytes as upper-case hex.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(byt)), nil
}
