package core

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName is the application name used in data directory paths.
const AppName = "ImageStudio"

// GetDataDirectory returns the platform-specific data directory path.
//
// Paths by platform:
//   - Windows: %APPDATA%/ImageStudio
//   - Linux/macOS: ~/.imagestudio
//
// Does NOT create the directory - callers should use EnsureDataDirectory.
func GetDataDirectory() string {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return AppName
			}
			return filepath.Join(home, "AppData", "Roaming", AppName)
		}
		return filepath.Join(appData, AppName)
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return ".imagestudio"
		}
		return filepath.Join(home, ".imagestudio")
	}
}

// GetDataFilePath returns the full path for a file within the data directory.
func GetDataFilePath(filename string) string {
	return filepath.Join(GetDataDirectory(), filename)
}

// EnsureDataDirectory creates the data directory if it doesn't exist and
// returns its path.
func EnsureDataDirectory() (string, error) {
	dir := GetDataDirectory()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}
