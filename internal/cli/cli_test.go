//go:build unix

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testCLI runs commands against a temp work dir and segment dir.
type testCLI struct {
	t      *testing.T
	Dir    string
	ShmDir string
	Env    map[string]string
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	return &testCLI{t: t, Dir: t.TempDir(), ShmDir: t.TempDir(), Env: map[string]string{}}
}

func (c *testCLI) RunWithInput(stdin string, args ...string) (string, string, int) {
	var outBuf, errBuf bytes.Buffer
	full := append([]string{"spscq", "-C", c.Dir, "--dir", c.ShmDir}, args...)
	code := Run(strings.NewReader(stdin), &outBuf, &errBuf, full, c.Env, nil)
	return outBuf.String(), errBuf.String(), code
}

func (c *testCLI) Run(args ...string) (string, string, int) {
	return c.RunWithInput("", args...)
}

func (c *testCLI) MustRun(args ...string) string {
	c.t.Helper()
	stdout, stderr, code := c.Run(args...)
	if code != 0 {
		c.t.Fatalf("command %v failed with exit code %d\nstderr: %s", args, code, stderr)
	}
	return strings.TrimSpace(stdout)
}

func (c *testCLI) MustFail(args ...string) string {
	c.t.Helper()
	_, stderr, code := c.Run(args...)
	if code == 0 {
		c.t.Fatalf("command %v succeeded, want failure", args)
	}
	return strings.TrimSpace(stderr)
}

func TestUsage(t *testing.T) {
	c := newTestCLI(t)
	out := c.MustRun()
	assert.Contains(t, out, "Commands:")
	for _, name := range []string{"init", "config", "create", "produce", "consume", "info", "rm", "repl", "serve"} {
		assert.Contains(t, out, "  "+name)
	}

	stderr := c.MustFail("bogus")
	assert.Contains(t, stderr, "unknown command: bogus")

	out = c.MustRun("create", "--help")
	assert.Contains(t, out, "Usage: spscq create <name> [flags]")
	assert.Contains(t, out, "--size")
}

func TestProduceConsume(t *testing.T) {
	c := newTestCLI(t)

	out := c.MustRun("create", "jobs", "--size", "1000")
	assert.Equal(t, "jobs capacity:1024 max_message:508 used:0", out)

	out = c.MustRun("produce", "jobs", "one", "two")
	assert.Equal(t, "produced 2 messages to jobs", out)

	stdout, stderr, code := c.RunWithInput("three\nfour\n", "produce", "jobs")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "produced 2 messages to jobs\n", stdout)

	out = c.MustRun("consume", "jobs", "-n", "1")
	assert.Equal(t, "one", out)

	out = c.MustRun("consume", "jobs")
	if diff := cmp.Diff([]string{"two", "three", "four"}, strings.Split(out, "\n")); diff != "" {
		t.Errorf("consumed messages mismatch (-want +got):\n%s", diff)
	}

	assert.Empty(t, c.MustRun("consume", "jobs"))
}

func TestProduce_CreateAttachesExisting(t *testing.T) {
	c := newTestCLI(t)
	c.MustRun("create", "small", "--size", "1024")

	out := c.MustRun("produce", "small", "--create", "x")
	assert.Equal(t, "produced 1 messages to small", out)
	assert.Contains(t, c.MustRun("info", "small"), "capacity: 1024")
	assert.Equal(t, "x", c.MustRun("consume", "small"))

	c.MustRun("produce", "fresh", "--create", "y")
	assert.Contains(t, c.MustRun("info", "fresh"), "capacity: 65536")
	assert.Equal(t, "y", c.MustRun("consume", "fresh"))
}

func TestProduce_Errors(t *testing.T) {
	c := newTestCLI(t)
	c.MustRun("init", "--capacity", "16")

	stderr := c.MustFail("produce")
	assert.Contains(t, stderr, errNameRequired.Error())

	c.MustRun("create", "tiny")
	stderr = c.MustFail("produce", "tiny", "12345")
	assert.Contains(t, stderr, "message too large")

	c.MustRun("produce", "tiny", "aaaa", "bbbb")
	stderr = c.MustFail("produce", "tiny", "--no-block", "cccc")
	assert.Contains(t, stderr, "queue full")
}

func TestAttachMissing(t *testing.T) {
	c := newTestCLI(t)
	require.NoError(t, os.WriteFile(filepath.Join(c.Dir, ConfigFileName), []byte(`{
		// do not wait for a creator
		"attach_wait": "0s",
	}`), 0o600))

	stderr := c.MustFail("consume", "nope")
	assert.Contains(t, stderr, "no such file")

	stderr = c.MustFail("serve", "nope", "--listen", "127.0.0.1:0")
	assert.Contains(t, stderr, "no such file")
}

func TestInfoAndRm(t *testing.T) {
	c := newTestCLI(t)
	c.MustRun("create", "ev", "--size", "64")
	c.MustRun("produce", "ev", "hello")

	out := c.MustRun("info", "ev")
	assert.Contains(t, out, "capacity: 64")
	assert.Contains(t, out, "ready:    true")
	assert.Contains(t, out, "used:     9")

	out = c.MustRun("info", "ev", "--json")
	assert.Contains(t, out, `"Capacity": 64`)

	out = c.MustRun("rm", "ev")
	assert.Equal(t, "Removed ev", out)
	stderr := c.MustFail("info", "ev")
	assert.Contains(t, stderr, "no such file")
}

func TestInitAndConfig(t *testing.T) {
	c := newTestCLI(t)

	out := c.MustRun("config")
	assert.Contains(t, out, "(using defaults only)")

	out = c.MustRun("init", "--capacity", "4096", "--listen", ":9999")
	assert.Equal(t, "Wrote "+filepath.Join(c.Dir, ConfigFileName), out)
	stderr := c.MustFail("init")
	assert.Contains(t, stderr, "already exists")
	c.MustRun("init", "--force", "--capacity", "4096", "--listen", ":9999")

	out = c.MustRun("config")
	assert.Contains(t, out, `"capacity": 4096`)
	assert.Contains(t, out, `"listen": ":9999"`)
	assert.Contains(t, out, "# Source: "+filepath.Join(c.Dir, ConfigFileName))

	out = c.MustRun("create", "q")
	assert.Contains(t, out, "capacity:4096")
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    Config
		wantErr string
	}{
		{
			name:    "jsonc with comments and trailing comma",
			content: "{\n  // bigger queues\n  \"capacity\": 1024,\n  \"dir\": \"/tmp/q\",\n}",
			want: func() Config {
				c := DefaultConfig()
				c.Capacity = 1024
				c.Dir = "/tmp/q"
				return c
			}(),
		},
		{name: "unknown field", content: `{"capacity": 1024, "bogus": 1}`, wantErr: "unknown field"},
		{name: "capacity too small", content: `{"capacity": 8}`, wantErr: "capacity 8"},
		{name: "bad duration", content: `{"attach_wait": "soon"}`, wantErr: "attach_wait"},
		{name: "bad log level", content: `{"log_level": 9}`, wantErr: "log_level"},
		{name: "not json", content: `capacity = 1`, wantErr: "invalid JSONC"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tc.name, " ", "_")+".json")
			require.NoError(t, os.WriteFile(path, []byte(tc.content), 0o600))

			got, src, err := LoadConfig(path, true)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, path, src)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}

	_, _, err := LoadConfig(filepath.Join(dir, "missing.json"), true)
	assert.ErrorIs(t, err, errConfigNotFound)
	cfg, src, err := LoadConfig(filepath.Join(dir, "missing.json"), false)
	require.NoError(t, err)
	assert.Empty(t, src)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestREPL(t *testing.T) {
	c := newTestCLI(t)
	input := strings.Join([]string{"put hello", "put world", "len", "peek", "get", "get", "get", "nope", "quit", "put never"}, "\n")
	stdout, stderr, code := c.RunWithInput(input, "repl", "r", "--create")
	require.Equal(t, 0, code, stderr)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	want := []string{
		"r capacity:65536 max_message:32764. Type 'help' for commands.",
		"ok",
		"ok",
		"18",
		`"hello"`,
		`"hello"`,
		`"world"`,
		"error: shm: queue empty",
		"unknown command: nope (type 'help' for commands)",
	}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Errorf("repl output mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigEnv(t *testing.T) {
	c := newTestCLI(t)
	custom := filepath.Join(c.Dir, "custom.json")
	c.Env[ConfigEnv] = custom

	stderr := c.MustFail("config")
	assert.Contains(t, stderr, "config file not found")

	c.MustRun("init", "--capacity", "256")
	_, err := os.Stat(filepath.Join(c.Dir, ConfigFileName))
	assert.True(t, os.IsNotExist(err))

	out := c.MustRun("config")
	assert.Contains(t, out, `"capacity": 256`)
	assert.Contains(t, out, "# Source: "+custom)
}
