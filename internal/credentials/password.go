package credentials

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/louib/keepass-merge/internal/crypto"
)

// ErrPasswordMismatch is returned when a confirmation differs
var ErrPasswordMismatch = errors.New("passwords do not match")

// Prompter reads a secret from the user. Implementations block until the
// user answers.
type Prompter interface {
	ReadPassword(prompt string) ([]byte, error)
}

// TerminalPrompter reads passwords from a terminal without echoing them.
// When In is not a terminal, one line is read from it as is.
type TerminalPrompter struct {
	In  *os.File
	Out io.Writer

	lines *bufio.Reader
}

// NewTerminalPrompter prompts on stderr and reads stdin
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}

// ReadPassword reads a password without echo
func (p *TerminalPrompter) ReadPassword(prompt string) ([]byte, error) {
	fmt.Fprint(p.Out, prompt)

	fd := int(p.In.Fd())
	if !term.IsTerminal(fd) {
		return p.readLine()
	}

	password, err := term.ReadPassword(fd)
	fmt.Fprintln(p.Out) // New line after password
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return password, nil
}

func (p *TerminalPrompter) readLine() ([]byte, error) {
	if p.lines == nil {
		p.lines = bufio.NewReader(p.In)
	}
	line, err := p.lines.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

// ReadPasswordConfirm reads a password twice and ensures they match
func ReadPasswordConfirm(p Prompter, prompt, confirm string) ([]byte, error) {
	password1, err := p.ReadPassword(prompt)
	if err != nil {
		return nil, err
	}

	password2, err := p.ReadPassword(confirm)
	if err != nil {
		crypto.ClearBytes(password1)
		return nil, err
	}
	defer crypto.ClearBytes(password2)

	if !crypto.ConstantTimeCompare(password1, password2) {
		crypto.ClearBytes(password1)
		return nil, ErrPasswordMismatch
	}
	return password1, nil
}
