package testsupport

import (
	"fmt"
	"os"
)

// LoadFixture reads a fixture file relative to the calling package directory.
func LoadFixture(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("testsupport: load fixture %s: %w", path, err)
	}
	return data, nil
}
