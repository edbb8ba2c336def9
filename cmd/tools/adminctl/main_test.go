package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/salon-escrow/internal/auth"
	"github.com/noah-isme/salon-escrow/internal/split"
)

func TestParseRule(t *testing.T) {
	rule, err := parseRule(" 50/30/20 ")
	require.NoError(t, err)
	require.Equal(t, split.Rule{StorePct: 50, FreelancerPct: 30, PlatformPct: 20}, rule)

	for _, raw := range []string{"50/30", "a/b/c", "50/40/20", "-10/90/20"} {
		_, err := parseRule(raw)
		require.Error(t, err, raw)
	}
}

func TestHashKeyCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), "hash-key", []string{"-key", "s3cret"}, &out))

	match, err := argon2id.ComparePasswordAndHash("s3cret", strings.TrimSpace(out.String()))
	require.NoError(t, err)
	require.True(t, match)

	require.Error(t, run(context.Background(), "hash-key", nil, &out))
}

func TestIssueTokenCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), "issue-token", []string{"-sub", "ops", "-secret", "signing"}, &out))

	guard := auth.NewAdminGuard("", []byte("signing"), zerolog.Nop())
	subject, err := guard.ParseToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	require.Equal(t, "ops", subject)

	require.Error(t, run(context.Background(), "issue-token", []string{"-secret", ""}, &out))
}

func TestIssuePartyTokenCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), "issue-token", []string{"-party", "-sub", "f-1", "-secret", "signing"}, &out))

	guard := auth.NewAdminGuard("", []byte("signing"), zerolog.Nop())
	_, err := guard.ParseToken(strings.TrimSpace(out.String()))
	require.ErrorIs(t, err, auth.ErrTokenRole)
}

func TestUnknownCommand(t *testing.T) {
	require.ErrorContains(t, run(context.Background(), "drop-tables", nil, &bytes.Buffer{}), "unknown command")
}
