// Package ref defines the package reference type along with support code.
package ref

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// A Ref identifies a package in the store, in the form "name/version@user/channel".
type Ref struct {
	Name    string
	Version string
	User    string
	Channel string
}

// Parse parses a reference of the form "name/version@user/channel".
func Parse(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	nameVer, userChan, ok := strings.Cut(s, "@")
	if !ok {
		return Ref{}, fmt.Errorf("invalid package reference %q: missing @user/channel", s)
	}
	name, version, ok := strings.Cut(nameVer, "/")
	if !ok {
		return Ref{}, fmt.Errorf("invalid package reference %q: missing /version", s)
	}
	user, channel, ok := strings.Cut(userChan, "/")
	if !ok {
		return Ref{}, fmt.Errorf("invalid package reference %q: missing /channel", s)
	}
	r := Ref{Name: name, Version: version, User: user, Channel: channel}
	if err := r.Validate(); err != nil {
		return Ref{}, err
	}
	return r, nil
}

// String returns the canonical "name/version@user/channel" form.
func (r Ref) String() string {
	return r.Name + "/" + r.Version + "@" + r.User + "/" + r.Channel
}

// Validate reports whether every field of r is set and free of separators.
func (r Ref) Validate() error {
	for _, f := range []struct{ field, value string }{
		{"name", r.Name},
		{"version", r.Version},
		{"user", r.User},
		{"channel", r.Channel},
	} {
		if f.value == "" {
			return fmt.Errorf("invalid package reference %q: empty %s", r.String(), f.field)
		}
		if strings.ContainsAny(f.value, "/@ \t\r\n") || f.value == "." || f.value == ".." {
			return fmt.Errorf("invalid package reference %q: bad %s %q", r.String(), f.field, f.value)
		}
	}
	return nil
}

// EscapePath returns the store-relative directory of r as a valid file system
// path. It fails if the reference is invalid.
func EscapePath(r Ref) (escaped string, err error) {
	if err = r.Validate(); err != nil {
		return "", err
	}
	return filepath.Localize(path.Join(r.Name, r.Version, r.User, r.Channel))
}

// Expand replaces ${version}, ${user} and ${channel} style variables in tmpl.
// Unknown variables are left untouched.
func Expand(tmpl string, vars map[string]string) string {
	return os.Expand(tmpl, func(key string) string {
		if v, ok := vars[key]; ok {
			return v
		}
		return "${" + key + "}"
	})
}

// SplitList splits a semicolon separated list of references, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ";") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
