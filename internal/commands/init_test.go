package commands_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truenorth-finance/truenorth/internal/config"
)

var binaryPath string

func TestMain(m *testing.M) {
	// Build the binary once for all tests.
	tmpDir, err := os.MkdirTemp("", "truenorth-test-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmpDir)

	binaryPath = filepath.Join(tmpDir, "truenorth")
	cmd := exec.Command("go", "build", "-o", binaryPath, "../../cmd/truenorth")
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		panic("failed to build binary: " + err.Error())
	}

	os.Exit(m.Run())
}

// testEnv keeps the binary away from real API keys and pins the timezone.
var testEnv = []string{
	"ANTHROPIC_API_KEY=",
	"GEMINI_API_KEY=",
	"GOOGLE_API_KEY=",
	"TRUENORTH_ANTHROPIC_API_KEY=",
	"TRUENORTH_GEMINI_API_KEY=",
	"TRUENORTH_LLM_PROVIDER=",
	"TRUENORTH_LLM_BASE_URL=",
	"TRUENORTH_TIMEZONE=UTC",
	"TRUENORTH_LOG_LEVEL=warn",
}

func runTruenorth(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runTruenorthEnv(t, nil, args...)
}

func runTruenorthEnv(t *testing.T, env []string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(binaryPath, args...)
	cmd.Env = append(append(os.Environ(), testEnv...), env...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// initData creates a fresh data directory and returns its path.
func initData(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "data")
	out, err := runTruenorth(t, "--data", dir, "init")
	require.NoError(t, err, out)
	return dir
}

func fixture(name string) string {
	return filepath.Join("..", "..", "testdata", name)
}

func TestInit_CreatesStructure(t *testing.T) {
	dir := initData(t)

	expectedDirs := []string{
		"logs",
		"import",
		filepath.Join("import", "processed"),
	}
	for _, d := range expectedDirs {
		info, err := os.Stat(filepath.Join(dir, d))
		require.NoError(t, err, "directory %s should exist", d)
		assert.True(t, info.IsDir(), "%s should be a directory", d)
	}

	_, err := os.Stat(filepath.Join(dir, "truenorth.db"))
	assert.NoError(t, err)
}

func TestInit_Config(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	_, err := runTruenorth(t, "--data", dir, "init", "--provider", "gemini", "--bank", "nab")
	require.NoError(t, err)

	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "nab", cfg.Import.Bank)
	assert.Equal(t, 50, cfg.Classifier.BatchSize)
}

func TestInit_RejectsBadProvider(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	out, err := runTruenorth(t, "--data", dir, "init", "--provider", "openai")
	require.Error(t, err)
	assert.Contains(t, out, "llm.provider")
}

func TestInit_Twice(t *testing.T) {
	dir := initData(t)
	out, err := runTruenorth(t, "--data", dir, "init")
	require.Error(t, err)
	assert.Contains(t, out, "already exists")
}

func TestDataEnv(t *testing.T) {
	dir := initData(t)
	out, err := runTruenorthEnv(t, []string{"TRUENORTH_DATA=" + dir}, "balance")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Bank balance: $0.00")
}

func TestUninitialized(t *testing.T) {
	out, err := runTruenorth(t, "--data", filepath.Join(t.TempDir(), "missing"), "transactions", "list")
	require.Error(t, err)
	assert.Contains(t, out, "truenorth init")
}

func TestVersion(t *testing.T) {
	out, err := runTruenorth(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "truenorth dev")
}
