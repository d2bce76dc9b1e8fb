package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetForTest removes key for the duration of the test.
func unsetForTest(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func writeEnv(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadEnvFiles_ParsesQuotesAndComments(t *testing.T) {
	path := writeEnv(t, t.TempDir(), `# carecache
CC_TEST_PLAIN=value1
CC_TEST_DOUBLE="quoted value"
CC_TEST_SINGLE='single quoted'
`)
	for _, k := range []string{"CC_TEST_PLAIN", "CC_TEST_DOUBLE", "CC_TEST_SINGLE"} {
		unsetForTest(t, k)
	}

	require.NoError(t, loadEnvFiles([]string{path}))

	assert.Equal(t, "value1", os.Getenv("CC_TEST_PLAIN"))
	assert.Equal(t, "quoted value", os.Getenv("CC_TEST_DOUBLE"))
	assert.Equal(t, "single quoted", os.Getenv("CC_TEST_SINGLE"))
}

func TestLoadEnvFiles_EnvironmentWins(t *testing.T) {
	path := writeEnv(t, t.TempDir(), "CC_TEST_EXISTING=from_file\n")
	t.Setenv("CC_TEST_EXISTING", "from_env")

	require.NoError(t, loadEnvFiles([]string{path}))
	assert.Equal(t, "from_env", os.Getenv("CC_TEST_EXISTING"))
}

func TestLoadEnvFiles_FirstFileWins(t *testing.T) {
	first := writeEnv(t, t.TempDir(), "CC_TEST_ORDER=first\n")
	second := writeEnv(t, t.TempDir(), "CC_TEST_ORDER=second\n")
	unsetForTest(t, "CC_TEST_ORDER")

	require.NoError(t, loadEnvFiles([]string{first, second}))
	assert.Equal(t, "first", os.Getenv("CC_TEST_ORDER"))
}

func TestLoadEnvFiles_MissingFilesIgnored(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope", ".env")
	assert.NoError(t, loadEnvFiles([]string{missing}))
}

func TestResolveEnvWithAliases(t *testing.T) {
	t.Setenv("CARECACHE_API_BASE_URL", "")
	t.Setenv("AI_DOCTOR_API_URL", "")
	t.Setenv("API_BASE_URL", "")

	assert.Empty(t, ResolveEnvWithAliases("CARECACHE_API_BASE_URL"))

	t.Setenv("API_BASE_URL", "https://second.example")
	assert.Equal(t, "https://second.example", ResolveEnvWithAliases("CARECACHE_API_BASE_URL"))

	t.Setenv("AI_DOCTOR_API_URL", "https://first.example")
	assert.Equal(t, "https://first.example", ResolveEnvWithAliases("CARECACHE_API_BASE_URL"))

	t.Setenv("CARECACHE_API_BASE_URL", "https://canonical.example")
	assert.Equal(t, "https://canonical.example", ResolveEnvWithAliases("CARECACHE_API_BASE_URL"))

	assert.Empty(t, ResolveEnvWithAliases("CARECACHE_UNKNOWN"))
}

func TestLoadEnvFiles_AppliesAliases(t *testing.T) {
	t.Setenv("CARECACHE_PATIENT_DEFAULT_ID", "")
	path := writeEnv(t, t.TempDir(), "AI_DOCTOR_PATIENT_ID=patient-42\n")
	unsetForTest(t, "AI_DOCTOR_PATIENT_ID")

	require.NoError(t, loadEnvFiles([]string{path}))
	assert.Equal(t, "patient-42", os.Getenv("CARECACHE_PATIENT_DEFAULT_ID"))
}
