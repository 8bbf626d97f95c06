// Package git publishes a task's changes as a pushed branch.
package git

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/slok/agentbox/internal/log"
	"github.com/slok/agentbox/internal/model"
	"github.com/slok/agentbox/internal/sandbox"
)

// PublishRequest has everything needed to publish the sandbox workspace as
// a branch on the task's repository.
type PublishRequest struct {
	// SandboxID is the sandbox holding the checkout.
	SandboxID string
	// WorkDir is the repository checkout directory inside the sandbox.
	WorkDir string
	// Repo is the repository clone URL.
	Repo string
	// Branch is the branch name to create and push.
	Branch string
	// CommitMessage is the commit message for the task's changes.
	CommitMessage string
	// Token is an optional access token injected into https remote URLs.
	// It is never logged.
	Token string
}

func (r *PublishRequest) validate() error {
	if r.SandboxID == "" {
		return fmt.Errorf("sandbox id is required: %w", model.ErrNotValid)
	}
	if r.WorkDir == "" {
		return fmt.Errorf("work dir is required: %w", model.ErrNotValid)
	}
	if r.Repo == "" {
		return fmt.Errorf("repo is required: %w", model.ErrNotValid)
	}
	if r.Branch == "" {
		return fmt.Errorf("branch is required: %w", model.ErrNotValid)
	}
	if r.CommitMessage == "" {
		r.CommitMessage = "Task changes"
	}
	return nil
}

// Publisher knows how to clone a repository into a sandbox and publish the
// resulting changes as a branch.
type Publisher interface {
	Clone(ctx context.Context, sandboxID, repo, workDir, token string) error
	Publish(ctx context.Context, req PublishRequest) error
}

// ExecPublisherConfig is the configuration for ExecPublisher.
type ExecPublisherConfig struct {
	Engine sandbox.Engine
	// Identity used for the task commits.
	AuthorName  string
	AuthorEmail string
	Logger      log.Logger
}

func (c *ExecPublisherConfig) defaults() error {
	if c.Engine == nil {
		return fmt.Errorf("engine is required")
	}
	if c.AuthorName == "" {
		c.AuthorName = "agentbox"
	}
	if c.AuthorEmail == "" {
		c.AuthorEmail = "agentbox@localhost"
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "git.ExecPublisher"})
	return nil
}

// ExecPublisher publishes by running the git CLI inside the sandbox.
type ExecPublisher struct {
	engine      sandbox.Engine
	authorName  string
	authorEmail string
	logger      log.Logger
}

// NewExecPublisher creates a new exec based publisher.
func NewExecPublisher(cfg ExecPublisherConfig) (*ExecPublisher, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &ExecPublisher{
		engine:      cfg.Engine,
		authorName:  cfg.AuthorName,
		authorEmail: cfg.AuthorEmail,
		logger:      cfg.Logger,
	}, nil
}

// Clone clones the repository into the sandbox work dir.
func (p *ExecPublisher) Clone(ctx context.Context, sandboxID, repo, workDir, token string) error {
	remote, err := remoteURL(repo, token)
	if err != nil {
		return fmt.Errorf("invalid repo url: %w", err)
	}

	p.logger.WithCtxValues(ctx).Infof("Cloning repository into sandbox %s", sandboxID)

	if err := p.run(ctx, sandboxID, "", "git", "clone", remote, workDir); err != nil {
		return fmt.Errorf("could not clone repository: %w", err)
	}

	return nil
}

// Publish commits everything in the work dir and pushes it as the task
// branch.
func (p *ExecPublisher) Publish(ctx context.Context, req PublishRequest) error {
	if err := req.validate(); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	remote, err := remoteURL(req.Repo, req.Token)
	if err != nil {
		return fmt.Errorf("invalid repo url: %w", err)
	}

	logger := p.logger.WithCtxValues(ctx).WithValues(log.Kv{"branch": req.Branch})

	steps := [][]string{
		{"git", "config", "user.name", p.authorName},
		{"git", "config", "user.email", p.authorEmail},
		{"git", "checkout", "-B", req.Branch},
		{"git", "add", "-A"},
	}
	for _, step := range steps {
		if err := p.run(ctx, req.SandboxID, req.WorkDir, step...); err != nil {
			return fmt.Errorf("could not prepare branch: %w", err)
		}
	}

	// Committing with nothing staged fails, that's a valid empty run.
	if err := p.run(ctx, req.SandboxID, req.WorkDir, "git", "commit", "-m", req.CommitMessage); err != nil {
		clean, cleanErr := p.workTreeClean(ctx, req.SandboxID, req.WorkDir)
		if cleanErr == nil && clean {
			logger.Infof("No changes to commit, pushing branch as is")
		} else {
			return fmt.Errorf("could not commit changes: %w", err)
		}
	}

	if err := p.run(ctx, req.SandboxID, req.WorkDir, "git", "push", remote, req.Branch); err != nil {
		return fmt.Errorf("could not push branch: %w", err)
	}

	logger.Infof("Published branch %s", req.Branch)

	return nil
}

func (p *ExecPublisher) workTreeClean(ctx context.Context, sandboxID, workDir string) (bool, error) {
	out := &strings.Builder{}
	res, err := p.engine.Exec(ctx, sandboxID, []string{"git", "status", "--porcelain"}, model.ExecOpts{
		WorkingDir: workDir,
		Stdout:     out,
	})
	if err != nil {
		return false, err
	}
	if res.ExitCode != 0 {
		return false, fmt.Errorf("git status exited with code %d", res.ExitCode)
	}
	return strings.TrimSpace(out.String()) == "", nil
}

func (p *ExecPublisher) run(ctx context.Context, sandboxID, workDir string, command ...string) error {
	stderr := &strings.Builder{}
	res, err := p.engine.Exec(ctx, sandboxID, command, model.ExecOpts{
		WorkingDir: workDir,
		Stderr:     stderr,
	})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s exited with code %d: %s", command[0], res.ExitCode, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// remoteURL injects the token into https repo URLs. SSH URLs are returned
// untouched, auth there is the sandbox's problem.
func remoteURL(repo, token string) (string, error) {
	if token == "" || !strings.HasPrefix(repo, "https://") {
		return repo, nil
	}

	u, err := url.Parse(repo)
	if err != nil {
		return "", err
	}
	u.User = url.UserPassword("x-access-token", token)

	return u.String(), nil
}
