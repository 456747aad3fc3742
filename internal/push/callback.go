package push

import (
	"fmt"
	"net/url"
	"strings"
)

// CallbackFunc derives the callback URL for a persisted subscription ID.
type CallbackFunc func(id string) (string, error)

// CallbackTemplate returns a CallbackFunc that appends the escaped
// subscription ID to base. An empty base yields a func that always fails,
// so callers must then pass an explicit callback.
func CallbackTemplate(base string) CallbackFunc {
	return func(id string) (string, error) {
		if base == "" {
			return "", fmt.Errorf("no callback base URL configured")
		}
		if id == "" {
			return "", fmt.Errorf("subscription has no persisted id")
		}
		u, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("parse callback base: %w", err)
		}
		if !u.IsAbs() {
			return "", fmt.Errorf("callback base %q is not absolute", base)
		}
		return strings.TrimRight(base, "/") + "/" + url.PathEscape(id), nil
	}
}
