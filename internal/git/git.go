// Package git provides version control scoping for andon work units.
//
// Every unit runs inside an isolated topic branch so that failed repair
// attempts never pollute shared history. A unit's changes are either
// fully merged on success or fully reverted on exhausted failure;
// partial states never persist past the controller's terminal decision.
package git

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	andonerr "github.com/chrisallenlane/andon/internal/errors"
)

// Config holds git adapter configuration.
type Config struct {
	BranchPrefix string // Prefix for unit branches (default: "andon/")
	CommitPrefix string // Prefix for commit messages (default: "[andon]")
	BaseBranch   string // Integration branch units merge into (default: "main")
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BranchPrefix: "andon/",
		CommitPrefix: "[andon]",
		BaseBranch:   "main",
	}
}

// Git provides scoped git operations for work units.
type Git struct {
	runner  CommandRunner
	workDir string
	cfg     Config
}

// New creates a Git adapter for the repository at workDir.
func New(workDir string, cfg Config, runner CommandRunner) *Git {
	if runner == nil {
		runner = NewExecRunner()
	}
	if cfg.BranchPrefix == "" {
		cfg.BranchPrefix = "andon/"
	}
	if cfg.BaseBranch == "" {
		cfg.BaseBranch = "main"
	}
	return &Git{runner: runner, workDir: workDir, cfg: cfg}
}

// ScopeHandle identifies one unit's isolated branch and the exact state
// to restore on revert.
type ScopeHandle struct {
	UnitID  string
	Branch  string
	BaseSHA string
}

// BranchName returns the full branch name for a unit.
func (g *Git) BranchName(unitID string) string {
	return g.cfg.BranchPrefix + sanitizeBranchName(unitID)
}

// BaseBranch returns the configured integration branch.
func (g *Git) BaseBranch() string {
	return g.cfg.BaseBranch
}

// IsClean returns true if the working tree has no uncommitted changes.
func (g *Git) IsClean() (bool, error) {
	out, err := g.runner.Run(g.workDir, "git", "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("git status: %w", err)
	}
	return out == "", nil
}

// CurrentBranch returns the checked-out branch name.
func (g *Git) CurrentBranch() (string, error) {
	out, err := g.runner.Run(g.workDir, "git", "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	return out, nil
}

// HeadCommit returns the SHA of HEAD.
func (g *Git) HeadCommit() (string, error) {
	out, err := g.runner.Run(g.workDir, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("head commit: %w", err)
	}
	return out, nil
}

// BranchExists checks if a branch exists locally.
func (g *Git) BranchExists(branch string) (bool, error) {
	_, err := g.runner.Run(g.workDir, "git", "show-ref", "--verify", "--quiet", "refs/heads/"+branch)
	if err != nil {
		// Exit code 1 means the branch doesn't exist; other failures
		// should surface.
		var cmdErr *CommandError
		if asCommandError(err, &cmdErr) && isExitOne(cmdErr) {
			return false, nil
		}
		if strings.Contains(err.Error(), "exit status 1") {
			return false, nil
		}
		return false, fmt.Errorf("check branch %s: %w", branch, err)
	}
	return true, nil
}

// CreateScope creates an isolated branch for a unit and checks it out.
// The returned handle records the base commit for exact revert.
func (g *Git) CreateScope(unitID string) (*ScopeHandle, error) {
	clean, err := g.IsClean()
	if err != nil {
		return nil, err
	}
	if !clean {
		return nil, andonerr.ErrGitDirty()
	}

	branch := g.BranchName(unitID)
	exists, err := g.BranchExists(branch)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, andonerr.ErrGitBranchExists(branch)
	}

	baseSHA, err := g.HeadCommit()
	if err != nil {
		return nil, err
	}

	if _, err := g.runner.Run(g.workDir, "git", "checkout", "-b", branch); err != nil {
		return nil, fmt.Errorf("create scope branch %s: %w", branch, err)
	}

	return &ScopeHandle{UnitID: unitID, Branch: branch, BaseSHA: baseSHA}, nil
}

// Commit stages only the given paths and records an atomic commit tagged
// with the unit ID. Staging is never a blanket add-everything: commits
// stay atomic and bisectable.
func (g *Git) Commit(handle *ScopeHandle, message string, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("commit for %s: no paths to stage", handle.UnitID)
	}

	args := append([]string{"add", "--"}, paths...)
	if _, err := g.runner.Run(g.workDir, "git", args...); err != nil {
		return fmt.Errorf("stage paths for %s: %w", handle.UnitID, err)
	}

	msg := fmt.Sprintf("%s %s: %s", g.cfg.CommitPrefix, handle.UnitID, message)
	if _, err := g.runner.Run(g.workDir, "git", "commit", "-m", msg); err != nil {
		return fmt.Errorf("commit %s: %w", handle.UnitID, err)
	}
	return nil
}

// Merge integrates a completed scope into the target branch. Merges are
// always --no-ff so each unit's provenance stays inspectable. A merge
// that cannot apply cleanly is aborted and returned as a conflict error;
// conflicts are never auto-resolved.
func (g *Git) Merge(handle *ScopeHandle, target string) error {
	if target == "" {
		target = g.cfg.BaseBranch
	}

	if _, err := g.runner.Run(g.workDir, "git", "checkout", target); err != nil {
		return fmt.Errorf("checkout %s: %w", target, err)
	}

	msg := fmt.Sprintf("%s merge %s", g.cfg.CommitPrefix, handle.UnitID)
	if _, err := g.runner.Run(g.workDir, "git", "merge", "--no-ff", "-m", msg, handle.Branch); err != nil {
		// Leave the tree usable before surfacing the conflict
		g.runner.Run(g.workDir, "git", "merge", "--abort")
		return andonerr.ErrMergeConflict(handle.Branch, target).WithCause(err)
	}
	return nil
}

// Revert discards all changes associated with the scope, restoring the
// pre-attempt state exactly, and returns to the base branch.
func (g *Git) Revert(handle *ScopeHandle) error {
	if _, err := g.runner.Run(g.workDir, "git", "reset", "--hard", handle.BaseSHA); err != nil {
		return fmt.Errorf("reset to %s: %w", handle.BaseSHA, err)
	}
	// Remove untracked files the attempts created
	if _, err := g.runner.Run(g.workDir, "git", "clean", "-fd"); err != nil {
		return fmt.Errorf("clean after revert: %w", err)
	}
	if _, err := g.runner.Run(g.workDir, "git", "checkout", g.cfg.BaseBranch); err != nil {
		return fmt.Errorf("checkout %s after revert: %w", g.cfg.BaseBranch, err)
	}
	return nil
}

// DestroyScope deletes the unit's branch after it has been merged or
// reverted.
func (g *Git) DestroyScope(handle *ScopeHandle) error {
	if _, err := g.runner.Run(g.workDir, "git", "branch", "-D", handle.Branch); err != nil {
		return fmt.Errorf("delete branch %s: %w", handle.Branch, err)
	}
	return nil
}

// DiffStat summarizes additions/deletions between the scope's base and
// its head, for run summaries.
type DiffStat struct {
	FilesChanged int
	Additions    int
	Deletions    int
}

var shortstatRe = regexp.MustCompile(`(\d+) files? changed(?:, (\d+) insertions?\(\+\))?(?:, (\d+) deletions?\(-\))?`)

// ScopeDiffStat returns the net size delta of a scope against its base.
func (g *Git) ScopeDiffStat(handle *ScopeHandle) (*DiffStat, error) {
	out, err := g.runner.Run(g.workDir, "git", "diff", "--shortstat", handle.BaseSHA, handle.Branch)
	if err != nil {
		return nil, fmt.Errorf("diff stat for %s: %w", handle.UnitID, err)
	}

	stat := &DiffStat{}
	m := shortstatRe.FindStringSubmatch(out)
	if m == nil {
		return stat, nil
	}
	stat.FilesChanged, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		stat.Additions, _ = strconv.Atoi(m[2])
	}
	if m[3] != "" {
		stat.Deletions, _ = strconv.Atoi(m[3])
	}
	return stat, nil
}

var branchUnsafe = regexp.MustCompile(`[^a-zA-Z0-9/._-]+`)

// sanitizeBranchName replaces characters git refuses in ref names.
func sanitizeBranchName(name string) string {
	s := branchUnsafe.ReplaceAllString(name, "-")
	s = strings.Trim(s, "-.")
	return s
}

func asCommandError(err error, target **CommandError) bool {
	for err != nil {
		if ce, ok := err.(*CommandError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func isExitOne(ce *CommandError) bool {
	return ce.Err != nil && strings.Contains(ce.Err.Error(), "exit status 1")
}
