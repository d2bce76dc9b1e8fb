package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// envAliases maps canonical CARECACHE_ keys to the legacy names the mobile
// client's tooling exported. The first alias set wins.
var envAliases = map[string][]string{
	"CARECACHE_API_BASE_URL":       {"AI_DOCTOR_API_URL", "API_BASE_URL"},
	"CARECACHE_PATIENT_DEFAULT_ID": {"AI_DOCTOR_PATIENT_ID"},
	"CARECACHE_STORAGE_DATA_DIR":   {"AI_DOCTOR_DATA_DIR"},
	"CARECACHE_LOGGING_LEVEL":      {"LOG_LEVEL"},
}

// LoadEnvFiles loads .env files from the working directory and the user
// config directories, then folds legacy aliases onto canonical keys.
// Variables already set in the environment win.
func LoadEnvFiles() error {
	return loadEnvFiles(envFileCandidates())
}

func envFileCandidates() []string {
	paths := []string{".env"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".carecache", ".env"),
			filepath.Join(home, ".config", "carecache", ".env"),
		)
	}
	return paths
}

func loadEnvFiles(paths []string) error {
	var existing []string
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		}
	}
	if len(existing) > 0 {
		// earlier files win; godotenv.Load never overrides what is already set
		if err := godotenv.Load(existing...); err != nil {
			return err
		}
	}
	applyAliases()
	return nil
}

// ResolveEnvWithAliases returns the canonical key's value, falling back to
// its aliases in order.
func ResolveEnvWithAliases(canonicalKey string) string {
	if val := os.Getenv(canonicalKey); val != "" {
		return val
	}
	for _, alias := range envAliases[canonicalKey] {
		if val := os.Getenv(alias); val != "" {
			return val
		}
	}
	return ""
}

// applyAliases copies alias values onto their canonical keys so viper's
// AutomaticEnv picks them up.
func applyAliases() {
	for canonical := range envAliases {
		if os.Getenv(canonical) != "" {
			continue
		}
		if val := ResolveEnvWithAliases(canonical); val != "" {
			os.Setenv(canonical, val)
		}
	}
}
