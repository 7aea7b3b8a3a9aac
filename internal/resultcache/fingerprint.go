package resultcache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

const unknownFingerprint = "unknown"

var fingerprintExtensions = map[string]struct{}{
	".go": {}, ".js": {}, ".ts": {}, ".tsx": {}, ".jsx": {},
	".py": {}, ".java": {}, ".rb": {}, ".rs": {}, ".c": {}, ".h": {},
	".cpp": {}, ".hpp": {}, ".json": {}, ".yaml": {}, ".yml": {},
	".toml": {}, ".md": {}, ".sql": {}, ".sh": {},
}

var skippedDirs = map[string]struct{}{
	"node_modules": {}, ".git": {}, "coverage": {}, "dist": {}, "build": {},
}

type fileStamp struct {
	path  string
	mtime int64
	size  int64
}

// ProjectFingerprint computes an MD5 digest over the sorted
// (path, mtime-nanos, size) tuples of files under root matching a
// whitelisted extension, capped at maxFiles and skipping the usual
// vendor/build directories. Returns the sentinel "unknown" if
// the walk fails for any reason, so a scan failure degrades the cache
// key rather than aborting the request.
func ProjectFingerprint(root string, maxFiles int) string {
	var stamps []fileStamp

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if _, skip := skippedDirs[d.Name()]; skip && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if _, ok := fingerprintExtensions[ext]; !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		stamps = append(stamps, fileStamp{path: rel, mtime: info.ModTime().UnixNano(), size: info.Size()})
		if len(stamps) > maxFiles*4 {
			// Bail out early on pathological trees; the sort+cap
			// below still bounds memory, this just avoids walking
			// a huge repo end to end for nothing.
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return unknownFingerprint
	}

	sort.Slice(stamps, func(i, j int) bool { return stamps[i].path < stamps[j].path })
	if len(stamps) > maxFiles {
		stamps = stamps[:maxFiles]
	}

	h := md5.New()
	for _, s := range stamps {
		fmt.Fprintf(h, "%s|%d|%d\n", s.path, s.mtime, s.size)
	}
	return hex.EncodeToString(h.Sum(nil))
}
