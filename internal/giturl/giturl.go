// Package giturl builds authenticated fetch URLs from a plain repository
// URL and optionally supplied credentials. The plain URL is what gets
// recorded anywhere durable; the authenticated form exists only for the
// duration of a single clone or fetch.
package giturl

import (
	"fmt"
	"net/url"
	"strings"
)

// Credentials holds at most one authentication form for the current run.
// Token and username/password are mutually exclusive at the input layer,
// but Compose tolerates both being set and prefers the token.
type Credentials struct {
	Token    string
	Username string
	Password string
}

func (c Credentials) Empty() bool {
	return c.Token == "" && c.Username == "" && c.Password == ""
}

// tokenUserHosts are providers that authenticate token-only clones with a
// fixed pseudo-username rather than a bare token.
var tokenUserHosts = []string{"bitbucket.org"}

// Compose returns the URL to use for a single clone/fetch. The input URL
// must be https; anything else is rejected. Compose never embeds both a
// token and a username/password pair.
func Compose(rawURL string, creds Credentials) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse repository url: %w", err)
	}
	if u.Scheme != "https" {
		return "", fmt.Errorf("repository url must use https, got %q", u.Scheme)
	}

	embeddedUser := u.User.Username()
	path := strings.TrimSuffix(u.Path, ".git")

	switch {
	case embeddedUser != "" && creds.Token != "":
		// App-password style: token tied to the username already in the URL.
		return rebuild(u.Host, url.UserPassword(embeddedUser, creds.Token), path), nil
	case embeddedUser == "" && creds.Token != "" && hostWantsTokenUser(u.Host):
		return rebuild(u.Host, url.UserPassword("x-token-auth", creds.Token), path), nil
	case creds.Token != "":
		return rebuild(u.Host, url.User(creds.Token), path), nil
	case creds.Username != "" && creds.Password != "":
		return rebuild(u.Host, url.UserPassword(creds.Username, creds.Password), path), nil
	default:
		// No usable credentials: hand back the URL untouched and let git's
		// own credential machinery take over.
		return rawURL, nil
	}
}

func rebuild(host string, user *url.Userinfo, path string) string {
	return "https://" + user.String() + "@" + host + path + ".git"
}

func hostWantsTokenUser(host string) bool {
	host = strings.ToLower(host)
	for _, h := range tokenUserHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Redact strips userinfo from a URL so it can be logged. Unparseable
// input comes back unchanged.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL
	}
	u.User = nil
	return u.String()
}
