package mfclassic

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// KeyFile represents a dictionary loaded from disk.
type KeyFile struct {
	Name string // File name (e.g., "transport.dic")
	Keys []Key
}

// LoadKeyHexFile loads a 16-byte AES master key from a .hex file.
// The file should contain a single line with 32 hexadecimal characters.
func LoadKeyHexFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(line) != 32 {
			return nil, fmt.Errorf("key must be 32 hex chars, got %d", len(line))
		}
		key, err := hex.DecodeString(line)
		if err != nil {
			return nil, fmt.Errorf("invalid hex key: %v", err)
		}
		return key, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, errors.New("key file is empty")
}

// ParseKeyList reads one 12-hex key per line. Blank lines and text after '#'
// are ignored. Duplicates are dropped, first occurrence wins.
func ParseKeyList(r io.Reader) ([]Key, error) {
	var keys []Key
	seen := make(map[Key]bool)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		k, err := ParseKey(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// LoadKeyFile loads a dictionary file (.dic / .keys / .txt).
func LoadKeyFile(path string) ([]Key, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	keys, err := ParseKeyList(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return keys, nil
}

// LoadAllKeyFiles loads every dictionary file in a directory.
// Skips invalid files silently.
func LoadAllKeyFiles(dir string) ([]KeyFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []KeyFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".dic", ".keys", ".txt":
		default:
			continue
		}

		keys, err := LoadKeyFile(filepath.Join(dir, e.Name()))
		if err != nil || len(keys) == 0 {
			continue // Skip invalid dictionaries
		}
		files = append(files, KeyFile{Name: e.Name(), Keys: keys})
	}
	return files, nil
}
