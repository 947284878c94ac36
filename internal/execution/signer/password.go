package signer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// PasswordSource prompts once on the terminal for the keystore password and
// caches the answer.
type PasswordSource struct {
	in  *os.File
	out io.Writer

	once  sync.Once
	value string
	err   error
}

func NewPasswordSource() *PasswordSource {
	return &PasswordSource{in: os.Stdin, out: os.Stderr}
}

func (s *PasswordSource) Get() (string, error) {
	s.once.Do(func() {
		fd := int(s.in.Fd())
		if !term.IsTerminal(fd) {
			s.err = fmt.Errorf("keystore password required; set %s or %s, or run interactively", EnvKeystorePassword, EnvKeystorePasswordFile)
			return
		}
		fmt.Fprint(s.out, "Enter keystore password: ")
		buf, err := term.ReadPassword(fd)
		fmt.Fprintln(s.out)
		if err != nil {
			s.err = fmt.Errorf("read keystore password: %w", err)
			return
		}
		if strings.TrimSpace(string(buf)) == "" {
			s.err = errors.New("keystore password cannot be empty")
			return
		}
		s.value = string(buf)
	})
	return s.value, s.err
}
