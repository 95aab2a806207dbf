package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/arthaledger/bankfeed/internal/importer"
	"github.com/arthaledger/bankfeed/internal/parser"
)

// Scanner walks a directory tree and finds statement files to import.
type Scanner struct {
	rootDir string
}

// New creates a scanner rooted at rootDir.
func New(rootDir string) *Scanner {
	return &Scanner{rootDir: rootDir}
}

// Result is one statement file found under the root.
type Result struct {
	Path string
	Size int64

	// DeclaredFormat is the bank format inferred from the directory the
	// file sits in ("icici/2025-04/stmt.csv" declares ICICI). Empty when
	// the directory name matches no known bank.
	DeclaredFormat string
}

// Scan walks the tree and returns every file with a supported statement
// extension, in walk order. Oversized files are skipped.
func (s *Scanner) Scan() ([]Result, error) {
	root := expandHome(s.rootDir)

	var results []Result
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if importer.CheckUpload(path, info.Size()) != nil {
			return nil
		}
		results = append(results, Result{
			Path:           path,
			Size:           info.Size(),
			DeclaredFormat: declaredFormat(path, root),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return results, nil
}

// declaredFormat inspects the file's first directory under the root. A
// directory named after a known bank declares that bank's format for every
// file below it.
func declaredFormat(path, root string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return ""
	}
	if _, ok := parser.ProfileByName(parts[0]); ok {
		return strings.ToUpper(parts[0])
	}
	return ""
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
