package profile

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.driftpro, or $DRIFTPRO_HOME when set.
func BaseDir() string {
	if dir := os.Getenv("DRIFTPRO_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".driftpro")
}

// Dir returns the profile-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// SocketPath returns the daemon's UDS socket path for a profile.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "driftd.sock")
}

// DBPath returns the message store database path.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "driftpro.db")
}

// LogDir returns the log directory for a profile.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the log file path for the given binary.
func LogPath(name, binary string) string {
	return filepath.Join(LogDir(name), binary+".log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory tree with owner-only permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
