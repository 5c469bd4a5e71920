package analysis

import (
	"fmt"
	"os"
	"path/filepath"
)

// PropertiesFile is the scanner descriptor written into the working copy root.
const PropertiesFile = "sonar-project.properties"

// WriteProperties writes the scanner descriptor binding dir to the project
// identified by serviceProjectID. An existing descriptor is replaced.
func WriteProperties(dir, serviceProjectID string) error {
	if serviceProjectID == "" {
		return fmt.Errorf("project id is empty")
	}

	path := filepath.Join(dir, PropertiesFile)
	content := fmt.Sprintf("sonar.projectKey=%s\n", serviceProjectID)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
