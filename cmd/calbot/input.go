package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
)

type lineInput interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// consoleInput reads REPL lines: through readline when a line editor
// could be set up, through a plain buffered reader otherwise.
type consoleInput struct {
	rl    *readline.Instance
	plain *bufio.Reader
	out   io.Writer
}

// newLineInput prefers readline with persistent history. When the
// editor cannot be initialized the returned input still works in plain
// mode; the error says why the editor is unavailable.
func newLineInput(historyPath string) (lineInput, error) {
	rl, err := setupReadline(historyPath)
	if err != nil {
		return newPlainInput(os.Stdin, os.Stdout), err
	}
	return &consoleInput{rl: rl}, nil
}

func setupReadline(historyPath string) (*readline.Instance, error) {
	if historyPath != "" {
		if err := os.MkdirAll(filepath.Dir(historyPath), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	return readline.NewEx(&readline.Config{
		Prompt:            "> ",
		HistoryFile:       historyPath,
		HistorySearchFold: true,
	})
}

func newPlainInput(in io.Reader, out io.Writer) *consoleInput {
	return &consoleInput{plain: bufio.NewReader(in), out: out}
}

func (c *consoleInput) ReadLine(prompt string) (string, error) {
	if c.rl != nil {
		c.rl.SetPrompt(prompt)
		return c.rl.Readline()
	}
	if c.out != nil {
		fmt.Fprint(c.out, prompt)
	}
	line, err := c.plain.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *consoleInput) Close() error {
	if c == nil || c.rl == nil {
		return nil
	}
	return c.rl.Close()
}
