package dir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TempFilePrefix marks a document still being written. Scans and watchers
// skip such files.
const TempFilePrefix = ".silo-tmp-"

const filePerm = 0o644

func isTempFile(name string) bool {
	return strings.HasPrefix(name, TempFilePrefix)
}

// replaceFile stores data under path so that readers see either the old
// document or the new one. The staging file lives next to path so the
// final rename never crosses a filesystem.
func replaceFile(path string, data []byte) (err error) {
	staging, err := os.CreateTemp(filepath.Dir(path), TempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("stage %s: %w", filepath.Base(path), err)
	}
	name := staging.Name()
	defer func() {
		if err != nil {
			staging.Close()
			os.Remove(name)
		}
	}()

	if _, err = staging.Write(data); err != nil {
		return fmt.Errorf("stage %s: %w", filepath.Base(path), err)
	}
	if err = staging.Chmod(filePerm); err != nil {
		return fmt.Errorf("stage %s: %w", filepath.Base(path), err)
	}
	if err = staging.Sync(); err != nil {
		return fmt.Errorf("flush %s: %w", filepath.Base(path), err)
	}
	if err = staging.Close(); err != nil {
		return fmt.Errorf("flush %s: %w", filepath.Base(path), err)
	}
	if err = os.Rename(name, path); err != nil {
		return fmt.Errorf("publish %s: %w", filepath.Base(path), err)
	}
	return nil
}
