// Package repository fetches the project a run operates on: a git clone plus its README.
package repository

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const readmeByteLimit = 1 << 20

// Name derives the clone directory name from a repository URL
func Name(url string) string {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	if i := strings.LastIndexAny(url, "/:"); i >= 0 {
		url = url[i+1:]
	}
	return strings.TrimSuffix(url, ".git")
}

// Clone clones url into <workspaceDir>/<name>, replacing any previous clone
func Clone(ctx context.Context, url, workspaceDir string, progress io.Writer) (string, error) {
	name := Name(url)
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("cannot derive repository name from %q", url)
	}

	dest := filepath.Join(workspaceDir, name)
	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("failed to remove previous clone: %w", err)
	}
	if err := os.MkdirAll(workspaceDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create workspace: %w", err)
	}

	_, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{
		URL:      url,
		Progress: progress,
	})
	if err != nil {
		os.RemoveAll(dest)
		return "", fmt.Errorf("failed to clone %s: %w", url, err)
	}
	return dest, nil
}

// FetchReadme downloads README text from url
func FetchReadme(ctx context.Context, client *http.Client, url string, timeout time.Duration) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch README: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("failed to fetch README: status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, readmeByteLimit))
	if err != nil {
		return "", fmt.Errorf("failed to read README: %w", err)
	}
	return string(body), nil
}

// ReadReadme returns the README found at the top of dir.
// README.md wins over other README variants.
func ReadReadme(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var candidates []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(strings.ToLower(e.Name()), "readme") {
			continue
		}
		if strings.EqualFold(e.Name(), "README.md") {
			candidates = append([]string{e.Name()}, candidates...)
			continue
		}
		candidates = append(candidates, e.Name())
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no README in %s: %w", dir, os.ErrNotExist)
	}

	data, err := os.ReadFile(filepath.Join(dir, candidates[0]))
	if err != nil {
		return "", fmt.Errorf("failed to read README: %w", err)
	}
	return string(data), nil
}

// Truncate shortens s to at most limit characters; limit <= 0 means no limit
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// InitLocal turns dir into a git repository with one commit so later changes can be
// inspected with git diff. An existing repository is opened and returned as is.
func InitLocal(dir string) (*git.Repository, error) {
	if repo, err := git.PlainOpen(dir); err == nil {
		return repo, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize git repository: %w", err)
	}

	cfg, err := repo.Config()
	if err != nil {
		return nil, fmt.Errorf("failed to get repository config: %w", err)
	}
	cfg.User.Name = "llm-autorun"
	cfg.User.Email = "llm-autorun@localhost"
	if err := repo.SetConfig(cfg); err != nil {
		return nil, fmt.Errorf("failed to set repository config: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	readmePath := filepath.Join(dir, "README.md")
	if _, err := os.Stat(readmePath); os.IsNotExist(err) {
		content := []byte("# Workspace\n\nCommands run by llm-autorun.\n")
		if err := os.WriteFile(readmePath, content, 0644); err != nil {
			return nil, fmt.Errorf("failed to create README: %w", err)
		}
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return nil, fmt.Errorf("failed to stage files: %w", err)
	}

	_, err = wt.Commit("Initial commit", &git.CommitOptions{
		Author: &object.Signature{
			Name:  cfg.User.Name,
			Email: cfg.User.Email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create initial commit: %w", err)
	}
	return repo, nil
}

// Changes lists paths that differ from HEAD in the repository at dir.
// Paths at or below an exclude entry (or sharing its name as a prefix, such
// as a database's -journal file) are left out; empty entries are ignored.
func Changes(dir string, exclude ...string) ([]string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	var skip []string
	for _, e := range exclude {
		if e == "" {
			continue
		}
		if abs, err := filepath.Abs(e); err == nil {
			skip = append(skip, abs)
		}
	}

	var paths []string
	for path, s := range status {
		if s.Worktree == git.Unmodified && s.Staging == git.Unmodified {
			continue
		}
		if excluded(filepath.Join(root, filepath.FromSlash(path)), skip) {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

func excluded(path string, skip []string) bool {
	for _, s := range skip {
		if strings.HasPrefix(path, s) {
			return true
		}
	}
	return false
}
