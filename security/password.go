package security

import (
	"crypto/subtle"
	"strings"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"golang.org/x/crypto/bcrypt"
)

const AdminPasswordHeader = "X-Admin-Password"

// PasswordGate checks a shared secret. A secret starting with "$2" is a
// bcrypt hash, anything else is compared in constant time. An empty secret
// rejects everyone.
type PasswordGate struct {
	secret string
}

func NewPasswordGate(secret string) *PasswordGate {
	return &PasswordGate{secret: secret}
}

func (g *PasswordGate) Check(password string) bool {
	if g.secret == "" || password == "" {
		return false
	}
	if strings.HasPrefix(g.secret, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(g.secret), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(g.secret), []byte(password)) == 1
}

// Middleware reads the password from the X-Admin-Password header or the
// password query parameter.
func (g *PasswordGate) Middleware() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		password := e.Request.Header.Get(AdminPasswordHeader)
		if password == "" {
			password = e.Request.URL.Query().Get("password")
		}
		if !g.Check(password) {
			return apis.NewUnauthorizedError("Invalid password", nil)
		}
		return e.Next()
	}
}
