package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/cardledger/internal/parser"
)

// Scanner walks directory tree and finds statement files
type Scanner struct {
	rootDir string
	now     func() time.Time
}

// New creates a new scanner for the given root directory
func New(rootDir string) *Scanner {
	return &Scanner{rootDir: rootDir, now: time.Now}
}

// ScanResult represents a found file with metadata
type ScanResult struct {
	Path     string
	Metadata *parser.Metadata
}

// Scan walks the directory tree and finds all statement files.
// Results come back in lexical path order.
func (s *Scanner) Scan() ([]ScanResult, error) {
	var results []ScanResult

	// Expand ~ to home directory
	rootDir := s.expandHome(s.rootDir)

	info, err := os.Stat(rootDir)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan failed: %s is not a directory", rootDir)
	}

	err = filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			// Hidden directories hold editor and VCS state, never statements
			if path != rootDir && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if !s.isStatementFile(path) {
			return nil
		}

		metadata, err := s.extractMetadata(path, rootDir)
		if err != nil {
			return err
		}

		results = append(results, ScanResult{
			Path:     path,
			Metadata: metadata,
		})

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	return results, nil
}

// isStatementFile checks if file is a known statement format
func (s *Scanner) isStatementFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".qfx" || ext == ".ofx" || ext == ".csv"
}

// extractMetadata derives the account label from the directory holding the file.
// Path structure: {root}/{account}/{anything}/file.ext uses the first directory;
// files directly under root get no account.
func (s *Scanner) extractMetadata(filePath, rootDir string) (*parser.Metadata, error) {
	meta, err := parser.NewMetadata(filePath, s.now())
	if err != nil {
		return nil, err
	}

	relPath, err := filepath.Rel(rootDir, filePath)
	if err != nil {
		relPath = filePath
	}

	parts := strings.Split(filepath.ToSlash(relPath), "/")
	if len(parts) >= 2 {
		meta.SetAccount(s.normalizeAccountName(parts[0]))
	}

	return meta, nil
}

// normalizeAccountName converts directory name to readable name
// "nubank" -> "Nubank"
// "banco_do_brasil" -> "Banco Do Brasil"
func (s *Scanner) normalizeAccountName(dirName string) string {
	name := strings.ReplaceAll(dirName, "_", " ")

	words := strings.Fields(name)
	for i, word := range words {
		r := []rune(word)
		words[i] = strings.ToUpper(string(r[:1])) + string(r[1:])
	}

	return strings.Join(words, " ")
}

// expandHome expands ~ to home directory
func (s *Scanner) expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
