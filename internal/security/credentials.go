package security

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variable families. The scheme name suffix is produced by EnvName.
const (
	EnvAPIKey            = "API_KEY_"
	EnvBearerToken       = "BEARER_TOKEN_"
	EnvBasicUsername     = "BASIC_USERNAME_"
	EnvBasicPassword     = "BASIC_PASSWORD_"
	EnvOAuthToken        = "OAUTH_TOKEN_"
	EnvOAuthClientID     = "OAUTH_CLIENT_ID_"
	EnvOAuthClientSecret = "OAUTH_CLIENT_SECRET_"
	EnvOAuthScopes       = "OAUTH_SCOPES_"
	EnvOpenIDToken       = "OPENID_TOKEN_"
)

// Lookup mirrors os.LookupEnv.
type Lookup func(key string) (string, bool)

// EnvName uppercases a scheme name and replaces every non-alphanumeric rune with '_'.
func EnvName(scheme string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(scheme) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	return b.String()
}

// Credentials reads credential material for security schemes on demand, so
// rotated environment values are picked up without a restart.
type Credentials struct {
	lookup Lookup
}

func NewCredentials(lookup Lookup) *Credentials {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Credentials{lookup: lookup}
}

// Get returns the trimmed value of family+EnvName(scheme); blank values count as unset.
func (c *Credentials) Get(family, scheme string) (string, bool) {
	v, ok := c.lookup(family + EnvName(scheme))
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// Has reports whether Get would return a value.
func (c *Credentials) Has(family, scheme string) bool {
	_, ok := c.Get(family, scheme)
	return ok
}

// LoadDotEnv loads a .env file without overriding variables already set.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}
