// Package internal reads and normalizes the raw novel sources for the index
// build.
package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"novelrag/types"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// LoadDir reads every .txt file under dir (recursively), one document per
// file, book id taken from the file name. Results are sorted by book id so
// a build always processes documents in the same order.
func LoadDir(dir string) ([]types.Document, error) {
	var docs []types.Document

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".txt") {
			return nil
		}

		doc, err := LoadFile(path)
		if err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
		if doc.Text == "" {
			log.Printf("[LOADER] skipping empty file: %s", path)
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].BookID < docs[j].BookID })
	return docs, nil
}

// LoadFile reads one novel file. The text must be UTF-8; the book id is the
// base name without extension.
func LoadFile(path string) (types.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Document{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return types.Document{}, err
	}

	text := Normalize(data)
	if !utf8.ValidString(text) {
		return types.Document{}, fmt.Errorf("file is not valid UTF-8")
	}

	hash := sha256.Sum256([]byte(text))
	base := filepath.Base(path)
	return types.Document{
		BookID:      strings.TrimSuffix(base, filepath.Ext(base)),
		Text:        text,
		SourcePath:  path,
		ModTime:     info.ModTime(),
		ContentHash: hex.EncodeToString(hash[:]),
	}, nil
}

// Normalize strips the BOM, converts line endings to \n and collapses runs
// of blank lines, so chunk offsets are stable across platforms.
func Normalize(data []byte) string {
	text := string(data)
	text = strings.TrimPrefix(text, "\uFEFF")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
