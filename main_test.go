package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/tenxcards/tenxcards-go/internal/fakeapi"
	"github.com/tenxcards/tenxcards-go/internal/logging"
)

type cli struct {
	t *testing.T
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	gin.SetMode(gin.TestMode)

	api := fakeapi.New(fakeapi.Options{Secret: "test-secret", Logger: logging.Discard()})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	t.Setenv("TENXCARDS_API_URL", srv.URL+"/api")
	t.Setenv("TENXCARDS_STORE", "file")
	t.Setenv("TENXCARDS_STORE_PATH", filepath.Join(t.TempDir(), "credentials.json"))
	t.Setenv("LOG_LEVEL", "error")
	return &cli{t: t}
}

func (c *cli) run(stdin string, args ...string) (int, string, string) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunUsage(t *testing.T) {
	c := newCLI(t)

	code, _, stderr := c.run("")
	require.Equal(t, 2, code)
	require.Contains(t, stderr, "usage: tenxcards")

	code, _, stderr = c.run("", "nope")
	require.Equal(t, 2, code)
	require.Contains(t, stderr, `unknown command "nope"`)
}

func TestRunSessionPersistsAcrossInvocations(t *testing.T) {
	c := newCLI(t)

	code, out, stderr := c.run("", "register", "-email", "a@b.com", "-password", "X1!aaaaa")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, out, "Logged in as a@b.com (USER)")

	code, out, stderr = c.run("", "whoami")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, out, "Logged in as a@b.com")
	require.Contains(t, out, "AI usage this month: 0/100")

	code, _, _ = c.run("", "logout")
	require.Equal(t, 0, code)

	code, _, stderr = c.run("", "whoami")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "not logged in")
}

func TestRunLoginReadsPasswordFromStdin(t *testing.T) {
	c := newCLI(t)
	code, _, stderr := c.run("", "register", "-email", "a@b.com", "-password", "X1!aaaaa")
	require.Equal(t, 0, code, stderr)
	code, _, _ = c.run("", "logout")
	require.Equal(t, 0, code)

	code, out, stderr := c.run("X1!aaaaa\n", "login", "-email", "a@b.com")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, out, "Logged in as a@b.com")

	code, _, stderr = c.run("wrong\n", "login", "-email", "a@b.com")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "401")
}

func TestRunDecksAndCards(t *testing.T) {
	c := newCLI(t)
	code, _, stderr := c.run("", "register", "-email", "a@b.com", "-password", "X1!aaaaa")
	require.Equal(t, 0, code, stderr)

	code, out, stderr := c.run("", "deck-create", "-name", "  Spanish  ")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, out, `Created deck "Spanish"`)

	code, out, stderr = c.run("", "decks")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, out, "Spanish")
	require.Contains(t, out, "page 1/1, 1 total")

	code, _, stderr = c.run("", "cards", "-deck", "not-a-uuid")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "error:")
}

func TestRunReportsFieldErrors(t *testing.T) {
	c := newCLI(t)

	code, _, stderr := c.run("", "register", "-email", "not-an-email", "-password", "short")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "error: invalid input")
}

func TestRunCommandsRequireSession(t *testing.T) {
	c := newCLI(t)

	for _, args := range [][]string{
		{"decks"},
		{"deck-create", "-name", "x"},
		{"generations"},
	} {
		code, _, stderr := c.run("", args...)
		require.Equal(t, 1, code, args)
		require.Contains(t, stderr, "not logged in", args)
	}
}

func TestRunEphemeralDoesNotPersist(t *testing.T) {
	c := newCLI(t)

	code, _, stderr := c.run("", "-ephemeral", "register", "-email", "a@b.com", "-password", "X1!aaaaa")
	require.Equal(t, 0, code, stderr)

	code, _, stderr = c.run("", "whoami")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "not logged in")
}

func TestOneLine(t *testing.T) {
	require.Equal(t, "a b c", oneLine("a\n b\tc "))
	long := strings.Repeat("x", 80)
	require.Len(t, []rune(oneLine(long)), 60)
}
