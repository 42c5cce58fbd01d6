// Package publish pushes a built site to a hosting branch, replacing the
// CI-side "deploy to pages" step with a first-class component.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/josch/gallerize/internal/config"
)

// ErrNoChanges signals that the built site is identical to what the hosting
// branch already carries; nothing was committed or pushed.
var ErrNoChanges = errors.New("site unchanged, nothing to publish")

// Publisher pushes built sites to the configured hosting branch.
type Publisher struct {
	cfg *config.PublishConfig
}

// New creates a Publisher. cfg must have URL and Branch set (config.Load
// defaults the branch).
func New(cfg *config.PublishConfig) *Publisher {
	return &Publisher{cfg: cfg}
}

// Publish replaces the hosting branch's contents with siteDir and pushes.
// The commit message carries the build ID for traceability.
func (p *Publisher) Publish(ctx context.Context, siteDir, buildID string) error {
	workDir, err := os.MkdirTemp("", "gallerize-publish-*")
	if err != nil {
		return fmt.Errorf("create publish worktree: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			slog.Warn("Failed to clean publish worktree", "path", workDir, "error", err)
		}
	}()

	repo, err := p.prepareWorktree(ctx, workDir)
	if err != nil {
		return err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	if err := clearWorktree(workDir); err != nil {
		return fmt.Errorf("clear worktree: %w", err)
	}
	if err := copyTree(siteDir, workDir); err != nil {
		return fmt.Errorf("copy site into worktree: %w", err)
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("stage site: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("worktree status: %w", err)
	}
	if status.IsClean() {
		return ErrNoChanges
	}

	_, err = wt.Commit(fmt.Sprintf("Publish site (build %s)", buildID), &git.CommitOptions{
		Author: &object.Signature{Name: "gallerize", Email: "gallerize@localhost", When: time.Now()},
	})
	if err != nil {
		return fmt.Errorf("commit site: %w", err)
	}

	refSpec := gitconfig.RefSpec(fmt.Sprintf("+HEAD:refs/heads/%s", p.cfg.Branch))
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       p.auth(),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("push %s: %w", p.cfg.Branch, err)
	}

	slog.Info("Site published", "url", p.cfg.URL, "branch", p.cfg.Branch, "build_id", buildID)
	return nil
}

// prepareWorktree clones the hosting branch when it exists; otherwise it
// falls back to the default branch, and for empty remotes starts a fresh
// repository wired to origin.
func (p *Publisher) prepareWorktree(ctx context.Context, workDir string) (*git.Repository, error) {
	repo, err := git.PlainCloneContext(ctx, workDir, false, &git.CloneOptions{
		URL:           p.cfg.URL,
		ReferenceName: plumbing.NewBranchReferenceName(p.cfg.Branch),
		SingleBranch:  true,
		Auth:          p.auth(),
	})
	if err == nil {
		return repo, nil
	}

	slog.Debug("Hosting branch not cloneable, trying default branch", "branch", p.cfg.Branch, "error", err)

	repo, err = git.PlainCloneContext(ctx, workDir, false, &git.CloneOptions{
		URL:  p.cfg.URL,
		Auth: p.auth(),
	})
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return nil, fmt.Errorf("clone %s: %w", p.cfg.URL, err)
	}

	repo, err = git.PlainInit(workDir, false)
	if err != nil {
		return nil, fmt.Errorf("init publish repository: %w", err)
	}
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{p.cfg.URL}}); err != nil {
		return nil, fmt.Errorf("add origin remote: %w", err)
	}
	return repo, nil
}

func (p *Publisher) auth() transport.AuthMethod {
	if p.cfg.Auth == nil {
		return nil
	}
	switch p.cfg.Auth.Type {
	case "token":
		// Any non-empty username works for token auth over HTTPS.
		return &githttp.BasicAuth{Username: "gallerize", Password: p.cfg.Auth.Token}
	case "basic":
		return &githttp.BasicAuth{Username: p.cfg.Auth.Username, Password: p.cfg.Auth.Password}
	default:
		return nil
	}
}

// clearWorktree removes everything under dir except the .git directory.
func clearWorktree(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Name() == ".git" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// copyTree recursively copies src into dst, preserving file modes.
func copyTree(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, srcInfo.Mode()); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = srcFile.Close()
	}()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		_ = dstFile.Close()
	}()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return err
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.Chmod(dst, srcInfo.Mode())
}
