package dotenv

import (
	"os"
	"path/filepath"
	"testing"
)

func unsetForTest(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		prev, had := os.LookupEnv(key)
		_ = os.Unsetenv(key)
		t.Cleanup(func() {
			if had {
				_ = os.Setenv(key, prev)
			} else {
				_ = os.Unsetenv(key)
			}
		})
	}
}

func TestLoadFile_MissingFileIsNoop(t *testing.T) {
	t.Parallel()
	if err := LoadFile(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("LoadFile missing file error: %v", err)
	}
}

func TestLoadFile_LoadsValuesAndPreservesExisting(t *testing.T) {
	unsetForTest(t, "EXAMINER_DOTENV_FROM_FILE", "EXAMINER_DOTENV_QUOTED", "EXAMINER_DOTENV_EXPORTED")

	envPath := filepath.Join(t.TempDir(), ".env")
	content := "" +
		"# comment\n" +
		"EXAMINER_DOTENV_FROM_FILE=loaded\n" +
		"EXAMINER_DOTENV_QUOTED=\"hello world\"\n" +
		"export EXAMINER_DOTENV_EXPORTED=ok\n" +
		"EXAMINER_DOTENV_EXISTING=from_file\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("EXAMINER_DOTENV_EXISTING", "already_set")

	if err := LoadFile(envPath); err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}

	want := map[string]string{
		"EXAMINER_DOTENV_FROM_FILE": "loaded",
		"EXAMINER_DOTENV_QUOTED":    "hello world",
		"EXAMINER_DOTENV_EXPORTED":  "ok",
		"EXAMINER_DOTENV_EXISTING":  "already_set",
	}
	for key, val := range want {
		if got := os.Getenv(key); got != val {
			t.Fatalf("%s=%q, want %q", key, got, val)
		}
	}
}

func TestLoadFile_DirectoryIsAnError(t *testing.T) {
	t.Parallel()
	if err := LoadFile(t.TempDir()); err == nil {
		t.Fatalf("expected error loading a directory")
	}
}
