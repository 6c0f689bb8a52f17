package storage

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Storage writes plain-text series files into one output directory,
// optionally gzip-compressing each file once it is complete
type Storage struct {
	outputDir string
	compress  bool
	mu        sync.Mutex
	written   int
}

// New creates a new Storage instance
func New(outputDir string, compress bool) *Storage {
	return &Storage{
		outputDir: outputDir,
		compress:  compress,
	}
}

// Dir returns the output directory
func (s *Storage) Dir() string {
	return s.outputDir
}

// Written returns the number of files written so far
func (s *Storage) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// WriteSeries writes one value per line, in order, to the file name
func (s *Storage) WriteSeries(name string, values []float64) error {
	return s.WriteText(name, func(w io.Writer) error {
		buf := make([]byte, 0, 32)
		for _, v := range values {
			buf = strconv.AppendFloat(buf[:0], v, 'g', -1, 64)
			buf = append(buf, '\n')
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteText creates the file name, replacing any previous one, and fills it
// with fn. With compression on only <name>.gz is left behind.
func (s *Storage) WriteText(name string, fn func(w io.Writer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filename := filepath.Join(s.outputDir, name)
	if err := s.validatePath(filename); err != nil {
		return err
	}
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", filename, err)
	}

	w := bufio.NewWriter(file)
	if err := fn(w); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filename, err)
	}

	if s.compress {
		if err := s.compressFile(filename); err != nil {
			return fmt.Errorf("failed to compress file: %w", err)
		}
	}
	s.written++
	return nil
}

// validatePath ensures the file stays inside the output directory
func (s *Storage) validatePath(path string) error {
	rel, err := filepath.Rel(filepath.Clean(s.outputDir), filepath.Clean(path))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || strings.ContainsRune(rel, filepath.Separator) {
		return fmt.Errorf("invalid series path %s: outside output directory %s", path, s.outputDir)
	}
	return nil
}

// compressFile compresses a file using gzip and removes the original
func (s *Storage) compressFile(path string) error {
	source, err := os.Open(path)
	if err != nil {
		return err
	}
	defer source.Close()

	target, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer target.Close()

	gzipWriter := gzip.NewWriter(target)
	if _, err := io.Copy(gzipWriter, source); err != nil {
		gzipWriter.Close()
		return err
	}

	// Close the gzip writer to ensure all data is written
	if err := gzipWriter.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}
