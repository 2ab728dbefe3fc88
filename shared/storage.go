package shared

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const fallbackFilename = "audio"

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SanitizeFilename turns a client-supplied name into a safe single path
// component: accents are folded to ASCII, path separators become spaces,
// whitespace runs become "_", other unsafe characters are dropped and
// leading/trailing dots and underscores are stripped.
func SanitizeFilename(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	folded = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return ' '
		}
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, folded)
	joined := strings.Join(strings.Fields(folded), "_")
	cleaned := strings.Trim(unsafeFilenameChars.ReplaceAllString(joined, ""), "._")
	if cleaned == "" {
		return fallbackFilename
	}
	return cleaned
}

// FileStorage lays out uploads and stems on the local filesystem.
type FileStorage struct {
	UploadDir string
	StemsDir  string
}

// NewFileStorage creates both directories if needed.
func NewFileStorage(uploadDir, stemsDir string) (*FileStorage, error) {
	for _, dir := range []string{uploadDir, stemsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create directory %s", dir)
		}
	}
	return &FileStorage{UploadDir: uploadDir, StemsDir: stemsDir}, nil
}

// UploadPath returns <upload_dir>/<job_id>_<sanitized filename>.
func (s *FileStorage) UploadPath(jobID, filename string) string {
	return filepath.Join(s.UploadDir, jobID+"_"+SanitizeFilename(filename))
}

// StemDir returns the per-job output directory for separated stems.
func (s *FileStorage) StemDir(jobID string) string {
	return filepath.Join(s.StemsDir, jobID)
}

// SaveUpload writes body to the job's upload path. An empty body returns
// ErrInvalidInput without creating a file.
func (s *FileStorage) SaveUpload(jobID, filename string, body io.Reader) (string, error) {
	if body == nil {
		return "", errors.Wrap(ErrInvalidInput, "no file body")
	}
	br := bufio.NewReader(body)
	if _, err := br.Peek(1); err != nil {
		if err == io.EOF {
			return "", errors.Wrap(ErrInvalidInput, "empty file")
		}
		return "", errors.Wrap(err, "read upload")
	}

	path := s.UploadPath(jobID, filename)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", errors.Wrapf(err, "create %s", path)
	}
	if _, err := io.Copy(f, br); err != nil {
		f.Close()
		os.Remove(path)
		return "", errors.Wrapf(err, "write %s", path)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", errors.Wrapf(err, "close %s", path)
	}
	return path, nil
}

// RemoveUpload deletes an input file; a missing file is not an error.
func RemoveUpload(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove %s", path)
	}
	return nil
}
