// Package policy gates which commands a configured deployment may run.
package policy

import (
	"strings"

	clierr "github.com/ggonzalez94/frax-migrate/internal/errors"
)

// CheckCommandAllowed passes when the allowlist is empty or names the command
// path or one of its parents, so "actions" allows "actions list".
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	path := normalize(commandPath)
	for _, allowed := range allowlist {
		a := normalize(allowed)
		if a == "" {
			continue
		}
		if a == path || strings.HasPrefix(path, a+" ") {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, "command "+path+" blocked by --enable-commands policy")
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
