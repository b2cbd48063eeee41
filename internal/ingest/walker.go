// Package ingest turns a tree of text files into chunked indexer items.
package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	gitignore "github.com/sabhiram/go-gitignore"
)

// File is one text file found by Walk.
type File struct {
	Path    string // Absolute path
	RelPath string // Slash-separated path relative to the root
	Size    int64
}

// WalkOptions configures Walk.
type WalkOptions struct {
	// Root is the directory to start walking from.
	Root string

	// MaxFileSize skips larger files. Zero means no limit.
	MaxFileSize int64

	// MaxFiles stops the walk after this many files. Zero means no limit.
	MaxFiles int

	// IgnorePatterns are extra patterns in gitignore syntax.
	IgnorePatterns []string

	// Extensions limits the walk to these extensions (".md" or "md").
	Extensions []string

	// IncludeHidden walks dot files and directories.
	IncludeHidden bool
}

// WalkStats counts what a walk saw.
type WalkStats struct {
	FilesFound   int
	FilesSkipped int
	DirsSkipped  int
	TotalBytes   int64
}

// DefaultWalkOptions returns sensible defaults for walking.
func DefaultWalkOptions() WalkOptions {
	return WalkOptions{
		MaxFileSize: 1024 * 1024,
		MaxFiles:    10000,
	}
}

// Default patterns for generated and binary files.
var defaultIgnorePatterns = []string{
	"node_modules/", "vendor/", "dist/", "build/", "target/",
	"*.min.js", "*.lock", "package-lock.json", "go.sum",
	"*.db", "*.sqlite", "*.sqlite3",
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.ico", "*.pdf", "*.zip", "*.gz",
}

// Walk calls fn for every text file under opts.Root that is not ignored by
// the root .gitignore, the default patterns or opts.IgnorePatterns.
func Walk(opts WalkOptions, fn func(File) error) (WalkStats, error) {
	var stats WalkStats

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return stats, fmt.Errorf("failed to resolve root path: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return stats, fmt.Errorf("root path does not exist: %w", err)
	}
	if !info.IsDir() {
		return stats, fmt.Errorf("root path is not a directory: %s", root)
	}

	ignorers := []*gitignore.GitIgnore{
		gitignore.CompileIgnoreLines(slices.Concat(opts.IgnorePatterns, defaultIgnorePatterns)...),
	}
	gitignorePath := filepath.Join(root, ".gitignore")
	if _, err := os.Stat(gitignorePath); err == nil {
		gi, err := gitignore.CompileIgnoreFile(gitignorePath)
		if err != nil {
			log.Warn("Failed to parse .gitignore", "path", gitignorePath, "error", err)
		} else {
			ignorers = append(ignorers, gi)
		}
	}
	ignored := func(rel string) bool {
		for _, gi := range ignorers {
			if gi.MatchesPath(rel) {
				return true
			}
		}
		return false
	}

	var extSet map[string]bool
	if len(opts.Extensions) > 0 {
		extSet = make(map[string]bool, len(opts.Extensions))
		for _, ext := range opts.Extensions {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			extSet[strings.ToLower(ext)] = true
		}
	}

	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Debug("Error accessing path", "path", path, "error", err)
			return nil
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		hidden := !opts.IncludeHidden && strings.HasPrefix(d.Name(), ".")

		if d.IsDir() {
			if d.Name() == ".git" || hidden || ignored(rel+"/") {
				stats.DirsSkipped++
				return filepath.SkipDir
			}
			return nil
		}

		if opts.MaxFiles > 0 && stats.FilesFound >= opts.MaxFiles {
			return filepath.SkipAll
		}

		if hidden || ignored(rel) {
			stats.FilesSkipped++
			return nil
		}
		if extSet != nil && !extSet[strings.ToLower(filepath.Ext(path))] {
			stats.FilesSkipped++
			return nil
		}

		fi, err := d.Info()
		if err != nil || !fi.Mode().IsRegular() {
			stats.FilesSkipped++
			return nil
		}
		if opts.MaxFileSize > 0 && fi.Size() > opts.MaxFileSize {
			stats.FilesSkipped++
			return nil
		}
		if binary, err := isBinaryFile(path); err != nil || binary {
			stats.FilesSkipped++
			return nil
		}

		stats.FilesFound++
		stats.TotalBytes += fi.Size()
		return fn(File{Path: path, RelPath: rel, Size: fi.Size()})
	})
	return stats, err
}

// isBinaryFile reports whether the first 8KB of a file look binary.
func isBinaryFile(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	buf := make([]byte, 8192)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return false, err
	}
	return isBinaryContent(buf[:n]), nil
}

// isBinaryContent treats NUL bytes or more than 30% control characters as
// binary.
func isBinaryContent(content []byte) bool {
	if len(content) == 0 {
		return false
	}

	nonPrintable := 0
	for _, b := range content {
		if b == 0 {
			return true
		}
		if b < 32 && b != '\t' && b != '\n' && b != '\r' {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(len(content)) > 0.3
}
