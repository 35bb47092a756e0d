package driver

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/ajitpratap0/multisql/pkg/errors"
)

// DSN builds the connection string for this entry from job connection
// parameters. Entries without a BuildDSN hook use url unchanged.
func (e *Entry) DSN(rawURL, username, password string, properties map[string]string) (string, error) {
	if e.BuildDSN == nil {
		return rawURL, nil
	}
	dsn, err := e.BuildDSN(rawURL, username, password, properties)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeDriverRegistration, "invalid connection parameters").
			WithDetail("driver", e.Name)
	}
	return dsn, nil
}

// URLWithCredentials merges username, password and properties into a URL
// style connection string (scheme://host/db?k=v). Credentials already present
// in the URL are kept unless overridden. Properties become query parameters.
func URLWithCredentials(rawURL, username, password string, properties map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse connection url: %w", err)
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("connection url %q has no scheme", redact(rawURL))
	}

	if username != "" || password != "" {
		user := username
		if user == "" && u.User != nil {
			user = u.User.Username()
		}
		if password != "" {
			u.User = url.UserPassword(user, password)
		} else if existing, ok := u.User.Password(); ok {
			u.User = url.UserPassword(user, existing)
		} else {
			u.User = url.User(user)
		}
	}

	if len(properties) > 0 {
		q := u.Query()
		for k, v := range properties {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// KeywordWithCredentials appends credentials and properties to a
// "key=value key=value" connection string, as used by libpq.
func KeywordWithCredentials(dsn, username, password string, properties map[string]string) string {
	parts := make([]string, 0, len(properties)+3)
	if dsn = strings.TrimSpace(dsn); dsn != "" {
		parts = append(parts, dsn)
	}
	if username != "" {
		parts = append(parts, "user="+quoteKeyword(username))
	}
	if password != "" {
		parts = append(parts, "password="+quoteKeyword(password))
	}

	keys := make([]string, 0, len(properties))
	for k := range properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+quoteKeyword(properties[k]))
	}
	return strings.Join(parts, " ")
}

func quoteKeyword(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// redact hides everything between "://" and "@" so credentials never reach
// logs or error messages.
func redact(dsn string) string {
	scheme := strings.Index(dsn, "://")
	at := strings.LastIndex(dsn, "@")
	if scheme < 0 || at < scheme {
		return dsn
	}
	return dsn[:scheme+3] + "***" + dsn[at:]
}
