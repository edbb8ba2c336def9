package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/salon-escrow/internal/auth"
	"github.com/noah-isme/salon-escrow/internal/config"
	"github.com/noah-isme/salon-escrow/internal/db"
	"github.com/noah-isme/salon-escrow/internal/split"
)

const usage = `usage: adminctl <command> [flags]

commands:
  hash-key     print the argon2id hash for ADMIN_KEY_HASH
  issue-token  print an admin (or -party) bearer token signed with ADMIN_JWT_SECRET
  seed-split   store the default split rule and optional per-service overrides
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err := run(context.Background(), os.Args[1], os.Args[2:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, command string, args []string, out io.Writer) error {
	switch command {
	case "hash-key":
		return hashKey(args, out)
	case "issue-token":
		return issueToken(args, out)
	case "seed-split":
		return seedSplit(ctx, args, out)
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}

func hashKey(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("hash-key", flag.ContinueOnError)
	key := fs.String("key", "", "admin key to hash")
	if err := fs.Parse(args); err != nil {
		return err
	}
	hash, err := auth.HashKey(*key)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}

func issueToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("issue-token", flag.ContinueOnError)
	subject := fs.String("sub", "ops", "token subject")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	secret := fs.String("secret", os.Getenv("ADMIN_JWT_SECRET"), "HS256 signing secret")
	party := fs.Bool("party", false, "scope the token to the party named by -sub instead of admin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ttl <= 0 {
		return errors.New("ttl must be positive")
	}
	guard := auth.NewAdminGuard("", []byte(*secret), zerolog.Nop())
	issue := guard.IssueToken
	if *party {
		issue = guard.IssuePartyToken
	}
	token, err := issue(*subject, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func seedSplit(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("seed-split", flag.ContinueOnError)
	def := fs.String("default", "", "default rule as store/freelancer/platform, e.g. 40/40/20; empty uses SPLIT_DEFAULT_*")
	var overrides multiFlag
	fs.Var(&overrides, "override", "per-service rule as serviceId=store/freelancer/platform (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	rule := split.Rule{StorePct: cfg.SplitStorePct, FreelancerPct: cfg.SplitFreelancerPct, PlatformPct: cfg.SplitPlatformPct}
	if *def != "" {
		if rule, err = parseRule(*def); err != nil {
			return err
		}
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, "salon-escrow-adminctl")
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := split.NewService(&split.Calculator{Rules: &split.PostgresRuleStore{DB: pool}}, zerolog.Nop())
	if err := svc.SetDefault(ctx, rule); err != nil {
		return fmt.Errorf("default: %w", err)
	}
	fmt.Fprintf(out, "default %d/%d/%d\n", rule.StorePct, rule.FreelancerPct, rule.PlatformPct)

	for _, raw := range overrides {
		serviceID, spec, ok := strings.Cut(raw, "=")
		if !ok {
			return fmt.Errorf("override %q: expected serviceId=store/freelancer/platform", raw)
		}
		r, err := parseRule(spec)
		if err != nil {
			return fmt.Errorf("override %q: %w", raw, err)
		}
		if err := svc.SetOverride(ctx, serviceID, r); err != nil {
			return fmt.Errorf("override %q: %w", raw, err)
		}
		fmt.Fprintf(out, "override %s %d/%d/%d\n", serviceID, r.StorePct, r.FreelancerPct, r.PlatformPct)
	}
	return nil
}

func parseRule(raw string) (split.Rule, error) {
	parts := strings.Split(strings.TrimSpace(raw), "/")
	if len(parts) != 3 {
		return split.Rule{}, fmt.Errorf("rule %q: expected store/freelancer/platform", raw)
	}
	pcts := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return split.Rule{}, fmt.Errorf("rule %q: %w", raw, err)
		}
		pcts[i] = n
	}
	rule := split.Rule{StorePct: pcts[0], FreelancerPct: pcts[1], PlatformPct: pcts[2]}
	if err := rule.Validate(); err != nil {
		return split.Rule{}, err
	}
	return rule, nil
}

type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}
