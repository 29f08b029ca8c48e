package appdirs

import (
	"os"
	"path/filepath"
)

const (
	appDirName = "inkwell"
)

func DataDir() (string, error) {
	if override := os.Getenv("INKWELL_DATA_DIR"); override != "" {
		return override, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appDirName), nil
}

func DocumentsDir(dataDir string) string {
	return filepath.Join(dataDir, "documents")
}
