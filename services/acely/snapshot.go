package acely

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WriteSnapshot dumps a run's student data to a timestamped JSON file and
// returns its path. The dir is created if it does not exist.
func WriteSnapshot(dir string, at time.Time, students []StudentData) (string, error) {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, fmt.Sprintf("student_data_%s.json", at.Format("20060102_150405")))
	encoded, err := json.MarshalIndent(students, "", "  ")
	if err != nil {
		return "", err
	}
	err = os.WriteFile(path, encoded, 0o644)
	if err != nil {
		return "", err
	}
	return path, nil
}
