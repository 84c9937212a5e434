// Package archive unpacks zip and tar archives into a directory.
package archive

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Format is an archive container format.
type Format int

const (
	Unknown Format = iota
	Zip
	Tar
	TarGz
)

func (f Format) String() string {
	switch f {
	case Zip:
		return "zip"
	case Tar:
		return "tar"
	case TarGz:
		return "tar.gz"
	default:
		return "unknown"
	}
}

// UnsafePathError reports an entry that would be written outside the
// destination directory.
type UnsafePathError struct {
	Name string
}

func (e *UnsafePathError) Error() string {
	return fmt.Sprintf("archive entry %q escapes the destination directory", e.Name)
}

// DetectFormat guesses the format of the file at p from its name, falling
// back to its leading bytes.
func DetectFormat(p string) (Format, error) {
	lower := strings.ToLower(p)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return Zip, nil
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return TarGz, nil
	case strings.HasSuffix(lower, ".tar"):
		return Tar, nil
	}

	f, err := os.Open(p)
	if err != nil {
		return Unknown, err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	head = head[:n]
	switch {
	case bytes.HasPrefix(head, []byte("PK\x03\x04")), bytes.HasPrefix(head, []byte("PK\x05\x06")):
		return Zip, nil
	case bytes.HasPrefix(head, []byte{0x1f, 0x8b}):
		return TarGz, nil
	case len(head) >= 262 && string(head[257:262]) == "ustar":
		return Tar, nil
	}
	return Unknown, fmt.Errorf("unrecognized archive format: %s", p)
}

// Extract unpacks the archive at src into dest, creating dest if needed.
// Entries that would land outside dest are rejected with UnsafePathError.
func Extract(src, dest string) error {
	format, err := DetectFormat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}

	switch format {
	case Zip:
		return extractZip(src, dest)
	case Tar, TarGz:
		f, err := os.Open(src)
		if err != nil {
			return err
		}
		defer f.Close()

		var r io.Reader = bufio.NewReader(f)
		if format == TarGz {
			gz, err := gzip.NewReader(r)
			if err != nil {
				return fmt.Errorf("failed to open gzip stream %s: %w", src, err)
			}
			defer gz.Close()
			r = gz
		}
		return extractTar(tar.NewReader(r), dest)
	}
	return fmt.Errorf("unsupported archive format %s", format)
}

func extractZip(src, dest string) error {
	zr, err := zip.OpenReader(src)
	if errors.Is(err, zip.ErrInsecurePath) {
		if zr != nil {
			zr.Close()
		}
		return &UnsafePathError{Name: src}
	}
	if err != nil {
		return fmt.Errorf("failed to open zip %s: %w", src, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}
		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case mode&os.ModeSymlink != 0:
			rc, err := f.Open()
			if err != nil {
				return err
			}
			link, err := io.ReadAll(io.LimitReader(rc, 4096))
			rc.Close()
			if err != nil {
				return err
			}
			if err := writeSymlink(dest, target, f.Name, string(link)); err != nil {
				return err
			}
		default:
			rc, err := f.Open()
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", f.Name, err)
			}
			err = writeFile(target, rc, mode.Perm())
			rc.Close()
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func extractTar(tr *tar.Reader, dest string) error {
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar entry: %w", err)
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, os.FileMode(hdr.Mode).Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := writeSymlink(dest, target, hdr.Name, hdr.Linkname); err != nil {
				return err
			}
		default:
			// Hard links, devices and pax metadata carry no add-on content.
		}
	}
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if perm&0400 == 0 {
		perm = 0644
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return out.Close()
}

func writeSymlink(dest, target, name, link string) error {
	if filepath.IsAbs(link) || path.IsAbs(link) {
		return &UnsafePathError{Name: name}
	}
	resolved := filepath.Join(filepath.Dir(target), filepath.FromSlash(link))
	if !within(dest, resolved) {
		return &UnsafePathError{Name: name}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	return os.Symlink(link, target)
}

// safeJoin resolves an archive entry name under dest.
func safeJoin(dest, name string) (string, error) {
	clean := strings.ReplaceAll(name, "\\", "/")
	if path.IsAbs(clean) || filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" {
		return "", &UnsafePathError{Name: name}
	}
	target := filepath.Join(dest, filepath.FromSlash(clean))
	if !within(dest, target) {
		return "", &UnsafePathError{Name: name}
	}
	return target, nil
}

func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// SingleRoot returns the only subdirectory of dir when dir contains exactly
// one entry and it is a directory; otherwise it returns dir.
func SingleRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}
