package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/algorave/algorave-client/internal/config"
)

func loginCmd(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "Config file path")
	token := fs.String("token", "", "API token (omit to be prompted)")
	timeout := fs.Duration("timeout", 15*time.Second, "Verification request timeout")
	_ = fs.Parse(args)

	c, _ := newClient(*cfgPath)
	defer func() { _ = c.Close() }()

	tok := strings.TrimSpace(*token)
	if tok == "" {
		var err error
		tok, err = promptToken()
		if err != nil {
			fmt.Fprintf(os.Stderr, "read token: %v\n", err)
			os.Exit(1)
		}
	}
	if tok == "" {
		fmt.Fprintln(os.Stderr, "no token provided")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	user, err := c.Login(ctx, tok)
	if err != nil {
		fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Logged in as %s\n", user.Username)
}

// promptToken reads the token without echo when stdin is a terminal, falling back to a plain
// line read for piped input.
func promptToken() (string, error) {
	fmt.Fprint(os.Stderr, "API token: ")
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
