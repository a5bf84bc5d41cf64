package source

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
)

// ErrNoURL is returned when the user leaves the page URL prompt empty
var ErrNoURL = errors.New("no page url given")

// Prompter asks the user for input on the terminal
type Prompter struct {
	rl *readline.Instance
}

// NewPrompter opens a readline prompt on stdin/stderr
func NewPrompter() (*Prompter, error) {
	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cyan("page> "),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          readline.Stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Prompter{rl: rl}, nil
}

// Close releases the terminal
func (p *Prompter) Close() error {
	return p.rl.Close()
}

// AskURL reads a Douyin page URL
func (p *Prompter) AskURL() (string, error) {
	fmt.Fprintln(p.rl.Stderr(), "Enter the Douyin page URL to scan:")
	line, err := p.rl.Readline()
	if err == readline.ErrInterrupt || err == io.EOF {
		return "", ErrNoURL
	}
	if err != nil {
		return "", err
	}
	return ParsePageURL(line)
}

// WaitEnter blocks until the user presses Enter
func (p *Prompter) WaitEnter(message string) error {
	fmt.Fprintln(p.rl.Stderr(), message)
	p.rl.SetPrompt("")
	_, err := p.rl.Readline()
	if err == io.EOF {
		return nil
	}
	return err
}

// ParsePageURL validates a page URL typed by the user
func ParsePageURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrNoURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid page url %q", raw)
	}
	return u.String(), nil
}
