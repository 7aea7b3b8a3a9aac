package resultcache

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

// keyFileNames are the files whose mtime/size drift marks a project as
// materially changed: dependency manifests, lockfiles, and build entry
// points.
var keyFileNames = []string{
	"go.mod", "go.sum",
	"package.json", "package-lock.json",
	"Cargo.toml", "Cargo.lock",
	"requirements.txt", "pyproject.toml",
	"Makefile", "Dockerfile",
}

// manifestNames is the subset of keyFileNames whose content feeds the
// dependency hash.
var manifestNames = []string{"go.mod", "package.json", "Cargo.toml", "requirements.txt", "pyproject.toml"}

// ScanProjectState stats the key files under workdir, hashes the
// dependency manifests, and resolves the current git head commit.
// Missing files are simply absent from the result; a workdir with no
// tracked files yields an empty (but valid) state.
func ScanProjectState(workdir string) ProjectState {
	state := ProjectState{KeyFiles: make(map[string]KeyFileStamp)}

	for _, name := range keyFileNames {
		info, err := os.Stat(filepath.Join(workdir, name))
		if err != nil {
			continue
		}
		state.KeyFiles[name] = KeyFileStamp{ModTime: info.ModTime(), Size: info.Size()}
	}

	h := md5.New()
	hashed := false
	for _, name := range manifestNames {
		content, err := os.ReadFile(filepath.Join(workdir, name))
		if err != nil {
			continue
		}
		h.Write([]byte(name))
		h.Write(content)
		hashed = true
	}
	if hashed {
		state.DependencyHash = hex.EncodeToString(h.Sum(nil))
	}

	state.HeadCommit = readHeadCommit(workdir)
	return state
}

// readHeadCommit resolves .git/HEAD to a commit hash, following one
// level of symbolic ref. Returns "" when workdir is not a git
// repository or the ref cannot be read.
func readHeadCommit(workdir string) string {
	head, err := os.ReadFile(filepath.Join(workdir, ".git", "HEAD"))
	if err != nil {
		return ""
	}
	line := strings.TrimSpace(string(head))
	if ref, ok := strings.CutPrefix(line, "ref: "); ok {
		target, err := os.ReadFile(filepath.Join(workdir, ".git", filepath.FromSlash(ref)))
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(target))
	}
	return line
}
