package modules

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// Publish step names, in pipeline order.
const (
	StepBranch  = "branch"
	StepStage   = "stage"
	StepCommit  = "commit"
	StepPropose = "propose"
	StepMerge   = "merge"
	StepRestore = "restore"
)

// StepStatus records the outcome of one publish step.
type StepStatus struct {
	Step   string `json:"step"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// PublishRequest carries everything the publisher needs for one module.
type PublishRequest struct {
	Name        string
	Description string
	Functions   []string
	Paths       []string
}

// Publisher drives the version-control workflow that persists a promoted
// module. Implementations never return an error: every step is attempted and
// its outcome reported, because publication is advisory.
type Publisher interface {
	Publish(ctx context.Context, req PublishRequest) []StepStatus
}

// CommandRunner executes one external command. Tests substitute a stub.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// GitPublisher publishes modules through git and the gh CLI: open a branch
// named after the module, stage and commit the module file plus registry,
// propose the change as a PR, merge it, and return to the main line.
type GitPublisher struct {
	repoDir    string
	mainBranch string
	runner     CommandRunner
}

// NewGitPublisher creates a publisher rooted at repoDir.
func NewGitPublisher(repoDir string) *GitPublisher {
	return &GitPublisher{
		repoDir:    repoDir,
		mainBranch: "main",
		runner:     execRunner{},
	}
}

// WithRunner substitutes the command runner. Used by tests.
func (p *GitPublisher) WithRunner(r CommandRunner) *GitPublisher {
	p.runner = r
	return p
}

// WithMainBranch overrides the branch restored after publishing.
func (p *GitPublisher) WithMainBranch(branch string) *GitPublisher {
	if branch != "" {
		p.mainBranch = branch
	}
	return p
}

// Publish runs the pipeline as an explicit state machine. Each step is
// attempted and captured independently; the merge step is only meaningful
// when the proposal succeeded.
func (p *GitPublisher) Publish(ctx context.Context, req PublishRequest) []StepStatus {
	branchName := "module/" + req.Name
	commitMsg := fmt.Sprintf("Add %s module: %s", req.Name, req.Description)
	prBody := fmt.Sprintf("Auto-generated module.\n\n%s\n\nFunctions: %s",
		req.Description, strings.Join(req.Functions, ", "))

	var steps []StepStatus
	record := func(step string, err error) bool {
		status := StepStatus{Step: step, OK: err == nil}
		if err != nil {
			status.Detail = err.Error()
			log.Warn().Str("step", step).Err(err).Msg("Publish step failed")
		}
		steps = append(steps, status)
		return status.OK
	}

	_, err := p.runner.Run(ctx, p.repoDir, "git", "checkout", "-b", branchName)
	record(StepBranch, err)

	stageArgs := append([]string{"add"}, req.Paths...)
	_, err = p.runner.Run(ctx, p.repoDir, "git", stageArgs...)
	record(StepStage, err)

	_, err = p.runner.Run(ctx, p.repoDir, "git", "commit", "-m", commitMsg)
	record(StepCommit, err)

	_, err = p.runner.Run(ctx, p.repoDir, "gh", "pr", "create", "--title", commitMsg, "--body", prBody)
	proposed := record(StepPropose, err)

	if proposed {
		_, err = p.runner.Run(ctx, p.repoDir, "gh", "pr", "merge", "--merge", "--delete-branch")
		record(StepMerge, err)
	} else {
		record(StepMerge, fmt.Errorf("skipped: proposal failed"))
	}

	_, err = p.runner.Run(ctx, p.repoDir, "git", "checkout", p.mainBranch)
	record(StepRestore, err)

	return steps
}
