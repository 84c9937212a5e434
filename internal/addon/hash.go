package addon

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/opencontainers/go-digest"
)

// HashDir digests the tree at dir: every regular file's slash-separated
// relative path and contents, and every symlink's target, in sorted path
// order. Identical trees always produce the same digest.
func HashDir(dir string) (digest.Digest, error) {
	type entry struct {
		rel  string
		path string
		mode fs.FileMode
	}
	var entries []entry
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		entries = append(entries, entry{rel: filepath.ToSlash(rel), path: p, mode: d.Type()})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })

	digester := digest.Canonical.Digester()
	h := digester.Hash()
	for _, e := range entries {
		fmt.Fprintf(h, "%s\x00", e.rel)
		if e.mode&fs.ModeSymlink != 0 {
			target, err := os.Readlink(e.path)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(h, "link:%s\x00", target)
			continue
		}
		f, err := os.Open(e.path)
		if err != nil {
			return "", err
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("failed to hash %s: %w", e.path, err)
		}
		h.Write([]byte{0})
	}
	return digester.Digest(), nil
}
