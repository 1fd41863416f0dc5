package utils

import "path/filepath"

// ResolveSourcePath cleans and absolutizes a source path given on the
// command line, resolving any "../" segments relative to the process's
// working directory.
func ResolveSourcePath(relPath string) (string, error) {
	return filepath.Abs(relPath)
}
