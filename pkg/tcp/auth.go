package tcp

import (
	"crypto/subtle"
	"encoding/base64"
	"strings"
)

// Auth - server side Basic authorization, nil Auth accept all requests
type Auth struct {
	realm  string
	header string
}

func NewAuth(realm, user, pass string) *Auth {
	if user == "" {
		return nil
	}
	return &Auth{
		realm:  realm,
		header: "Basic " + B64(user, pass),
	}
}

func (a *Auth) Validate(req *Request) bool {
	if a == nil {
		return true
	}

	header := req.Header.Get("Authorization")
	return subtle.ConstantTimeCompare([]byte(header), []byte(a.header)) == 1
}

// Challenge - value for WWW-Authenticate header
func (a *Auth) Challenge() string {
	return `Basic realm="` + a.realm + `"`
}

func Between(s, sub1, sub2 string) string {
	i := strings.Index(s, sub1)
	if i < 0 {
		return ""
	}
	s = s[i+len(sub1):]
	if i = strings.Index(s, sub2); i >= 0 {
		return s[:i]
	}
	return s
}

func B64(s ...string) string {
	b := []byte(strings.Join(s, ":"))
	return base64.StdEncoding.EncodeToString(b)
}
