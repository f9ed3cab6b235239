package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompt asks the operator for a secret value.
type Prompt func(label string) (string, error)

// TerminalPrompt reads without echo when in is a terminal and falls back to
// a plain line read otherwise, so secrets can be piped in scripts.
func TerminalPrompt(in *os.File, out io.Writer) Prompt {
	reader := bufio.NewReader(in)
	return func(label string) (string, error) {
		_, _ = fmt.Fprintf(out, "%s: ", label)
		fd := int(in.Fd())
		if term.IsTerminal(fd) {
			raw, err := term.ReadPassword(fd)
			_, _ = fmt.Fprintln(out)
			if err != nil {
				return "", err
			}
			return string(raw), nil
		}
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return "", errors.New("no input")
		}
		return line, nil
	}
}
