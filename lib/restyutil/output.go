// Package restyutil dumps full request/response exchanges of a resty
// client to an output sink. It only activates when debug logging is
// enabled, the dumps are meant for diagnosing selector and login
// breakage against the live sites.
package restyutil

import (
	"log/slog"
	"os"
	"path/filepath"
)

type Output interface {
	Write(id string, contents string)
}

type FilesystemOutput struct {
	directory string
}

// NewFilesystemOutput wipes and recreates the given directory so each
// run starts from a clean set of dumps.
func NewFilesystemOutput(dir string) FilesystemOutput {
	os.RemoveAll(dir)
	err := os.MkdirAll(dir, 0777)
	if err != nil {
		panic(err)
	}
	return FilesystemOutput{directory: dir}
}

func (o FilesystemOutput) Write(id string, contents string) {
	err := os.WriteFile(filepath.Join(o.directory, id), []byte(contents), 0600)
	if err != nil {
		slog.Warn("failed to write http dump file", "id", id, "err", err)
	}
}
