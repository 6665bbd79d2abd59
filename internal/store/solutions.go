package store

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"leetforge/pkg/models"
)

// fileExtensions maps a configured language to its source file extension.
var fileExtensions = map[string]string{
	"java": "java", "python": "py", "python3": "py", "javascript": "js",
	"typescript": "ts", "csharp": "cs", "c": "c", "cpp": "cpp",
	"golang": "go", "kotlin": "kt", "swift": "swift", "rust": "rs",
	"ruby": "rb", "php": "php", "scala": "scala", "dart": "dart",
	"elixir": "ex", "erlang": "erl", "racket": "rkt",
}

// SolutionStore persists accepted solutions under a per-problem filename. It
// is append-only: a previously accepted solution is never silently replaced.
type SolutionStore struct {
	dir       string
	overwrite bool
	logger    *slog.Logger
}

// NewSolutionStore creates the solutions directory if needed.
func NewSolutionStore(dir string, overwrite bool, logger *slog.Logger) (*SolutionStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create solutions directory: %w", err)
	}
	return &SolutionStore{dir: dir, overwrite: overwrite, logger: logger}, nil
}

// SaveSolution writes the source to <slug>.<ext>. Writing the same content
// again is a no-op. When the file exists with different content and
// overwriting is disabled, the new source is written alongside under a
// numbered suffix instead.
func (s *SolutionStore) SaveSolution(problem *models.Problem, language, source string) error {
	ext, ok := fileExtensions[language]
	if !ok {
		return fmt.Errorf("no file extension known for language %q", language)
	}
	if problem.Slug == "" {
		return fmt.Errorf("problem has no slug")
	}

	data := []byte(source)
	if !strings.HasSuffix(source, "\n") {
		data = append(data, '\n')
	}

	path := filepath.Join(s.dir, problem.Slug+"."+ext)
	existing, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// First acceptance for this problem.
	case err != nil:
		return fmt.Errorf("failed to read existing solution: %w", err)
	case bytes.Equal(existing, data):
		s.logger.Debug("Solution unchanged, nothing to write", "path", path)
		return nil
	case !s.overwrite:
		alt, altErr := s.nextFreePath(problem.Slug, ext)
		if altErr != nil {
			return altErr
		}
		s.logger.Warn("Existing solution differs, writing alongside",
			"existing", path, "path", alt)
		path = alt
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write solution: %w", err)
	}
	s.logger.Info("Solution saved", "path", path, "bytes", len(data))
	return nil
}

// nextFreePath finds the first unused <slug>_N.<ext> name.
func (s *SolutionStore) nextFreePath(slug, ext string) (string, error) {
	for n := 2; n < 100; n++ {
		path := filepath.Join(s.dir, fmt.Sprintf("%s_%d.%s", slug, n, ext))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
	}
	return "", fmt.Errorf("too many stored variants for %s", slug)
}

// SaveWriteup stores a markdown explanation next to the solutions, named
// after the problem title and difficulty.
func (s *SolutionStore) SaveWriteup(problem *models.Problem, markdown string) error {
	name := sanitizeFilename(problem.Title)
	if name == "" {
		name = problem.Slug
	}
	if problem.Difficulty != "" {
		name = fmt.Sprintf("%s - (%s)", name, problem.Difficulty)
	}

	path := filepath.Join(s.dir, name+".md")
	if err := os.WriteFile(path, []byte(markdown), 0644); err != nil {
		return fmt.Errorf("failed to write explanation: %w", err)
	}
	s.logger.Info("Explanation saved", "path", path)
	return nil
}

// sanitizeFilename strips characters that are unsafe in file names.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", "*", "", "?", "",
		"\"", "", "<", "", ">", "", "|", "-", "\x00", "",
	)
	return strings.TrimSpace(replacer.Replace(name))
}
