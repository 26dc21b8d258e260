package artifacts

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// isWindowsRuntime mirrors the original's cfg!(windows) check for choosing
// between run.sh and run.bat.
var isWindowsRuntime = runtime.GOOS == "windows"

// findJar scans dir for the first regular file whose lowercased name
// satisfies match, mirroring the original's std::fs::read_dir().find()
// loader-jar discovery.
func findJar(dir string, match func(lowerName string) bool) (string, bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		lower := strings.ToLower(name)
		if !strings.HasSuffix(lower, ".jar") {
			continue
		}
		if match(lower) {
			return filepath.Join(dir, name), true, nil
		}
	}
	return "", false, nil
}

// renameTo moves src to dir/targetName, mirroring tokio::fs::rename in the
// install_fabric/install_quilt/install_forge originals.
func renameTo(src, dir, targetName string) error {
	return os.Rename(src, filepath.Join(dir, targetName))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
