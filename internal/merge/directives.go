package merge

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

const testDirective = "--test"

// DefaultTestDirectoriesFile is the name of the file the test directories are
// written to.
const DefaultTestDirectoriesFile = "directories.txt"

// ExtractTestDirectories returns the arguments of all "--test" directives in comments.
// A directive is a line that starts with "--test", the remainder of the line
// is the test directory.
func ExtractTestDirectories(comments []string) []string {
	var result []string

	for _, comment := range comments {
		for _, line := range strings.Split(comment, "\n") {
			line = strings.TrimRight(line, "\r")
			if !strings.HasPrefix(line, testDirective) {
				continue
			}

			dir := strings.TrimSpace(strings.TrimPrefix(line, testDirective))
			if dir == "" {
				continue
			}

			result = append(result, dir)
		}
	}

	return result
}

// writeTestDirectories writes dirs to path, one per line.
// If dirs is empty, the file is not created.
func writeTestDirectories(path string, dirs []string) error {
	if len(dirs) == 0 {
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	for _, d := range dirs {
		if _, err := fmt.Fprintln(w, d); err != nil {
			_ = f.Close()
			return err
		}
	}

	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}
