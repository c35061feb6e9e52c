// Package gitutil reads the little git state depgraph needs to tell whether a
// stored snapshot is stale.
package gitutil

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// Changes lists files that differ from a commit, relative to the repository root.
type Changes struct {
	Added    []string
	Modified []string
	Deleted  []string
}

// Len returns the total number of changed files.
func (c Changes) Len() int {
	return len(c.Added) + len(c.Modified) + len(c.Deleted)
}

// IsRepo reports whether path is the top of a git work tree.
func IsRepo(path string) bool {
	info, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil && (info.IsDir() || info.Mode().IsRegular())
}

// Head returns the full commit hash of HEAD.
func Head(repoPath string) (string, error) {
	out, err := runGit(repoPath, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("get HEAD: %w", err)
	}
	return out, nil
}

// CurrentBranch returns the checked-out branch name, or "HEAD" when detached.
func CurrentBranch(repoPath string) (string, error) {
	out, err := runGit(repoPath, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("get current branch: %w", err)
	}
	return out, nil
}

// ChangedSince returns the files changed between commit and the work tree,
// including uncommitted and untracked files.
func ChangedSince(repoPath, commit string) (*Changes, error) {
	diff, err := runGit(repoPath, "diff", "--name-status", commit)
	if err != nil {
		return nil, fmt.Errorf("diff against %s: %w", commit, err)
	}
	status := parseNameStatus(diff)

	untracked, err := runGit(repoPath, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, fmt.Errorf("list untracked files: %w", err)
	}
	for _, line := range strings.Split(untracked, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			status[line] = "added"
		}
	}

	c := &Changes{}
	for path, s := range status {
		switch s {
		case "added":
			c.Added = append(c.Added, path)
		case "deleted":
			c.Deleted = append(c.Deleted, path)
		default:
			c.Modified = append(c.Modified, path)
		}
	}
	sort.Strings(c.Added)
	sort.Strings(c.Modified)
	sort.Strings(c.Deleted)
	return c, nil
}

// parseNameStatus parses "git diff --name-status" output into a map of path -> status.
// A rename reports the new path as added and the old one as deleted.
func parseNameStatus(output string) map[string]string {
	result := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		statusCode := parts[0]
		path := parts[len(parts)-1]

		switch {
		case strings.HasPrefix(statusCode, "A"):
			result[path] = "added"
		case strings.HasPrefix(statusCode, "D"):
			result[path] = "deleted"
		case strings.HasPrefix(statusCode, "R") && len(parts) >= 3:
			result[parts[1]] = "deleted"
			result[path] = "added"
		default:
			result[path] = "modified"
		}
	}
	return result
}

// runGit executes a git command in the given repository path and returns trimmed stdout.
func runGit(repoPath string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = repoPath
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(output)), nil
}
