// Package scanner finds the Java sources of a project. It respects
// .gcgignore files with gitignore-style patterns, skips build output and
// separates test sources from main sources.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileInfo represents information about a discovered file.
type FileInfo struct {
	Path     string // Relative path from root, slash separated
	FullPath string // Absolute path
	Size     int64  // File size in bytes
	IsTest   bool   // Lives in a test source set
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // Skip hidden files and directories (starting with .)
	FollowSymlinks  bool     // Follow symlinks (within root only)
	DefaultExcludes []string // Directory names never descended into
	IgnoreFileName  string   // Name of the ignore file (default: .gcgignore)
	Extensions      []string // Source file extensions (default: .java)
	IncludeTests    bool     // Keep test sources
	Exclude         []string // Extra gitignore-style patterns
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		IgnoreFileName: ".gcgignore",
		Extensions:     []string{".java"},
		DefaultExcludes: []string{
			".git",
			".gradle",
			".idea",
			".vscode",
			".hg",
			".svn",
			"build",
			"target",
			"out",
			"bin",
			"node_modules",
		},
	}
}

// Scanner provides file tree scanning capabilities.
type Scanner struct {
	opts Options
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	if opts.IgnoreFileName == "" {
		opts.IgnoreFileName = ".gcgignore"
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".java"}
	}
	return &Scanner{opts: opts}
}

// Scan recursively scans root and returns the matching source files in
// lexical order.
func (s *Scanner) Scan(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scanning %s: not a directory", root)
	}

	patterns := make([]Pattern, 0, len(s.opts.Exclude))
	for _, e := range s.opts.Exclude {
		patterns = append(patterns, ParsePattern(e))
	}
	rootPatterns, err := loadIgnoreFile(absRoot, s.opts.IgnoreFileName, "")
	if err != nil {
		return nil, fmt.Errorf("loading ignore patterns: %w", err)
	}
	patterns = append(patterns, rootPatterns...)

	var files []FileInfo
	err = filepath.Walk(absRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}
		relPath, err := filepath.Rel(absRoot, path)
		if err != nil || relPath == "." {
			return nil
		}
		rel := filepath.ToSlash(relPath)

		if s.opts.SkipHidden && strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			if s.isDefaultExcluded(info.Name()) || ignored(rel, true, patterns) {
				return filepath.SkipDir
			}
			nested, err := loadIgnoreFile(path, s.opts.IgnoreFileName, rel)
			if err == nil {
				patterns = append(patterns, nested...)
			}
			return nil
		}

		if !s.hasSourceExtension(path) || ignored(rel, false, patterns) {
			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 {
			target, ok := s.resolveSymlink(absRoot, path)
			if !ok {
				return nil
			}
			info = target
		}

		isTest := IsTestSource(rel)
		if isTest && !s.opts.IncludeTests {
			return nil
		}
		files = append(files, FileInfo{
			Path:     rel,
			FullPath: path,
			Size:     info.Size(),
			IsTest:   isTest,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return files, nil
}

// resolveSymlink follows a file symlink that stays inside root.
func (s *Scanner) resolveSymlink(root, path string) (os.FileInfo, bool) {
	if !s.opts.FollowSymlinks {
		return nil, false
	}
	realPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, false
	}
	realAbs, err := filepath.Abs(realPath)
	if err != nil {
		return nil, false
	}
	if !strings.HasPrefix(realAbs, root+string(filepath.Separator)) {
		return nil, false
	}
	info, err := os.Stat(realAbs)
	if err != nil || info.IsDir() {
		return nil, false
	}
	return info, true
}

func (s *Scanner) isDefaultExcluded(name string) bool {
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

func (s *Scanner) hasSourceExtension(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range s.opts.Extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// IsTestSource reports whether rel belongs to a test source set: a
// src/test or src/androidTest tree, or a *Test, *Tests or *IT class file.
func IsTestSource(rel string) bool {
	rel = filepath.ToSlash(rel)
	if strings.Contains("/"+rel, "/src/test/") || strings.Contains("/"+rel, "/src/androidTest/") {
		return true
	}
	name := strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
	return strings.HasSuffix(name, "Test") || strings.HasSuffix(name, "Tests") || strings.HasSuffix(name, "IT")
}

// Paths returns the absolute paths of files.
func Paths(files []FileInfo) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.FullPath
	}
	return out
}

// Scan is a convenience function that scans a directory with default options.
func Scan(root string) ([]FileInfo, error) {
	return New(DefaultOptions()).Scan(root)
}
