package files

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/roomdrop/roomdrop/internal/transfer"
)

// FileInfo holds information about a file to be sent
type FileInfo struct {
	// Path is the absolute path to the file
	Path string

	// Name is the filename (without directory)
	Name string

	// Size is the file size in bytes
	Size int64

	// Type is the MIME type guessed from the extension
	Type string
}

// ValidateFiles checks that every path is a readable regular file and
// reports all failures at once. Empty files are allowed.
func ValidateFiles(paths []string) ([]FileInfo, error) {
	if len(paths) == 0 {
		return nil, errors.New("no files specified")
	}

	var infos []FileInfo
	var problems []string
	for _, path := range paths {
		info, err := validateSingleFile(path)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		infos = append(infos, info)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("file validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return infos, nil
}

func validateSingleFile(path string) (FileInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, fmt.Errorf("%s: file does not exist", path)
		}
		return FileInfo{}, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}
	if stat.IsDir() {
		return FileInfo{}, fmt.Errorf("%s: is a directory", path)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	f.Close()

	return FileInfo{
		Path: absPath,
		Name: filepath.Base(absPath),
		Size: stat.Size(),
		Type: DetectType(absPath),
	}, nil
}

// DetectType returns the MIME type for path's extension, or the generic
// binary type.
func DetectType(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return transfer.FallbackMimeType
}

// Open opens the file for sending. The caller closes the returned file
// after the transfer.
func (i FileInfo) Open() (*os.File, transfer.File, error) {
	f, err := os.Open(i.Path)
	if err != nil {
		return nil, transfer.File{}, transfer.NewFileError("open", i.Name, err)
	}
	return f, transfer.File{Name: i.Name, MimeType: i.Type, Size: i.Size, Reader: f}, nil
}

// GetTotalSize returns the total size of all files
func GetTotalSize(infos []FileInfo) int64 {
	var total int64
	for _, info := range infos {
		total += info.Size
	}
	return total
}
