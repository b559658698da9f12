package git

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rohankatakam/timpact/internal/errors"
	"github.com/rohankatakam/timpact/internal/models"
)

// NameStatus is one entry of `git diff --name-status -z`
type NameStatus struct {
	Status  byte // A, M, D, R, C, T, U
	OldPath string
	NewPath string
}

// ParseNameStatus parses NUL-separated `git diff --name-status -z` output.
// Rename and copy entries carry a similarity score and two paths.
func ParseNameStatus(out []byte) ([]NameStatus, error) {
	fields := strings.Split(string(out), "\x00")
	var entries []NameStatus

	for i := 0; i < len(fields); i++ {
		code := fields[i]
		if code == "" {
			continue
		}

		switch code[0] {
		case 'R', 'C':
			if i+2 >= len(fields) {
				return nil, fmt.Errorf("truncated %s entry in name-status output", code)
			}
			entries = append(entries, NameStatus{Status: code[0], OldPath: fields[i+1], NewPath: fields[i+2]})
			i += 2
		case 'A', 'M', 'D', 'T', 'U':
			if i+1 >= len(fields) {
				return nil, fmt.Errorf("truncated %s entry in name-status output", code)
			}
			p := fields[i+1]
			entry := NameStatus{Status: code[0], OldPath: p, NewPath: p}
			if code[0] == 'A' {
				entry.OldPath = ""
			}
			if code[0] == 'D' {
				entry.NewPath = ""
			}
			entries = append(entries, entry)
			i++
		default:
			return nil, fmt.Errorf("unknown status %q in name-status output", code)
		}
	}

	return entries, nil
}

// ChangeKind maps a git status letter to the model's change kind.
// Copies are new files from the point of view of impact analysis.
func (ns NameStatus) ChangeKind() (models.ChangeKind, error) {
	switch ns.Status {
	case 'A', 'C':
		return models.ChangeAdded, nil
	case 'M', 'T':
		return models.ChangeModified, nil
	case 'D':
		return models.ChangeDeleted, nil
	case 'R':
		if ns.OldPath == ns.NewPath {
			return models.ChangeModified, nil
		}
		return models.ChangeRenamed, nil
	case 'U':
		return "", fmt.Errorf("unmerged path %s", ns.NewPath)
	}
	return "", fmt.Errorf("unsupported status %q", string(ns.Status))
}

// BuildDiff lists source files touched between base and HEAD (or the working
// tree when includeLocalChanges is set) with their content on both sides.
// Every failure is a VCSAnalysisError; no file is silently dropped.
func (r *CLIRepository) BuildDiff(ctx context.Context, base string, sourceDirs, testDirs []string, includeLocalChanges bool) ([]*models.SourceFileDiffContext, error) {
	args := []string{"diff", "--name-status", "-M", "-z", base}
	if !includeLocalChanges {
		args = append(args, "HEAD")
	}

	out, err := runGit(ctx, r.root, args...)
	if err != nil {
		return nil, errors.VCSAnalysisErrorf(err, "failed to diff against %s", base)
	}

	entries, err := ParseNameStatus(out)
	if err != nil {
		return nil, errors.VCSAnalysisError(err, "failed to parse git diff output")
	}

	if includeLocalChanges {
		untracked, err := r.untrackedFiles(ctx)
		if err != nil {
			return nil, err
		}
		entries = append(entries, untracked...)
	}

	dirs := append(append([]string(nil), sourceDirs...), testDirs...)
	headRev := "HEAD"
	if includeLocalChanges {
		headRev = ""
	}

	var diffs []*models.SourceFileDiffContext
	for _, entry := range entries {
		if !relevant(entry, dirs) {
			continue
		}

		kind, err := entry.ChangeKind()
		if err != nil {
			return nil, errors.VCSAnalysisError(err, "cannot classify change")
		}

		d := &models.SourceFileDiffContext{ChangeKind: kind}
		switch kind {
		case models.ChangeAdded:
			d.NewPath = entry.NewPath
		case models.ChangeDeleted:
			d.OldPath = entry.OldPath
		default:
			d.OldPath, d.NewPath = entry.OldPath, entry.NewPath
		}

		if d.OldPath != "" {
			content, err := r.ReadFile(ctx, base, d.OldPath)
			if err != nil {
				return nil, errors.VCSAnalysisErrorf(err, "failed to read %s at %s", d.OldPath, base)
			}
			d.ContentAtBase = &content
		}
		if d.NewPath != "" {
			content, err := r.ReadFile(ctx, headRev, d.NewPath)
			if err != nil {
				return nil, errors.VCSAnalysisErrorf(err, "failed to read %s", d.NewPath)
			}
			d.ContentAtHead = &content
		}

		diffs = append(diffs, d)
	}

	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Path() < diffs[j].Path() })
	return diffs, nil
}

// ReadFile returns file content at revision, or from the working tree when
// revision is empty
func (r *CLIRepository) ReadFile(ctx context.Context, revision, p string) (string, error) {
	if revision == "" {
		data, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(p)))
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	out, err := runGit(ctx, r.root, "show", revision+":"+p)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// untrackedFiles lists files not yet known to git as additions
func (r *CLIRepository) untrackedFiles(ctx context.Context) ([]NameStatus, error) {
	out, err := runGit(ctx, r.root, "ls-files", "--others", "--exclude-standard", "-z")
	if err != nil {
		return nil, errors.VCSAnalysisError(err, "failed to list untracked files")
	}
	var entries []NameStatus
	for _, p := range strings.Split(string(out), "\x00") {
		if p != "" {
			entries = append(entries, NameStatus{Status: 'A', NewPath: p})
		}
	}
	return entries, nil
}

// relevant reports whether either side of the entry is a source file under one of dirs
func relevant(entry NameStatus, dirs []string) bool {
	for _, p := range []string{entry.OldPath, entry.NewPath} {
		if p != "" && DetectLanguage(p) != "" && UnderAny(p, dirs) {
			return true
		}
	}
	return false
}

// UnderAny reports whether slash-separated path p lies inside one of dirs.
// An empty dir or "." matches everything.
func UnderAny(p string, dirs []string) bool {
	p = path.Clean(p)
	for _, dir := range dirs {
		dir = strings.TrimSuffix(path.Clean(filepath.ToSlash(dir)), "/")
		if dir == "." || dir == "" || p == dir || strings.HasPrefix(p, dir+"/") {
			return true
		}
	}
	return false
}
