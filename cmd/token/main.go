// Command token mints a bearer token signed with APP_JWT_SECRET for local
// development and smoke tests.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	appauth "github.com/jw6ventures/cyclecal/internal/auth"
	"github.com/jw6ventures/cyclecal/internal/config"
)

var errUsage = errors.New("usage error")

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := run(cfg, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		log.Fatalf("token: %v", err)
	}
}

func run(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	subject := fs.String("sub", "", "user id to put in the token subject")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *subject == "" || *ttl <= 0 {
		fs.Usage()
		return errUsage
	}

	token, err := appauth.NewService(cfg, nil).IssueToken(*subject, *ttl)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
