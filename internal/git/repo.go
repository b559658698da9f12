package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rohankatakam/timpact/internal/models"
)

// Repository is the VCS collaborator the analysis session reads from
type Repository interface {
	// HeadRevision returns the commit the working copy is based on
	HeadRevision(ctx context.Context) (string, error)

	// CurrentBranch returns the checked-out branch name ("HEAD" when detached)
	CurrentBranch(ctx context.Context) (string, error)

	// BuildDiff lists every source file under sourceDirs/testDirs touched since
	// base, with full content on both sides
	BuildDiff(ctx context.Context, base string, sourceDirs, testDirs []string, includeLocalChanges bool) ([]*models.SourceFileDiffContext, error)

	// ReadFile returns a file's content at revision; an empty revision reads the working tree
	ReadFile(ctx context.Context, revision, path string) (string, error)
}

// CLIRepository implements Repository by running the git binary
type CLIRepository struct {
	root string
}

// NewCLIRepository creates a repository rooted at dir.
// dir may be any directory inside the working tree.
func NewCLIRepository(ctx context.Context, dir string) (*CLIRepository, error) {
	out, err := runGit(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %w", err)
	}
	return &CLIRepository{root: strings.TrimSpace(string(out))}, nil
}

// Root returns the top-level directory of the working tree
func (r *CLIRepository) Root() string {
	return r.root
}

// HeadRevision returns the SHA of the current commit
func (r *CLIRepository) HeadRevision(ctx context.Context) (string, error) {
	out, err := runGit(ctx, r.root, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// CurrentBranch returns the name of the current git branch
func (r *CLIRepository) CurrentBranch(ctx context.Context) (string, error) {
	out, err := runGit(ctx, r.root, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// runGit executes git in dir and returns stdout; stderr is folded into the error
func runGit(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("git %s: %w: %s", args[0], err, msg)
		}
		return nil, fmt.Errorf("git %s: %w", args[0], err)
	}
	return out, nil
}
