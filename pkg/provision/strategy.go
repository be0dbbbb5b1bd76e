package provision

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Request describes one acquisition: fetch URL into ArchivePath, then unpack
// it into WorkDir so that Target appears.
type Request struct {
	URL         string
	ArchivePath string
	WorkDir     string
	Target      string
	Timeout     time.Duration
}

// Strategy is one way of fetching and unpacking the release archive.
type Strategy interface {
	Name() string
	FetchAndExtract(ctx context.Context, req Request) error
}

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s failed: %w\nOutput: %s", name, err, strings.TrimSpace(string(output)))
	}
	return output, nil
}

// CommandStrategy downloads with an external tool and unpacks with unzip.
type CommandStrategy struct {
	name  string
	args  func(req Request) []string
	run   Runner
	unzip string
}

// Curl returns the curl strategy.
func Curl(run Runner) *CommandStrategy {
	return &CommandStrategy{
		name: "curl",
		args: func(req Request) []string {
			return []string{"-fsSL", "--max-time", seconds(req.Timeout), "-o", req.ArchivePath, req.URL}
		},
		run:   runnerOrDefault(run),
		unzip: "unzip",
	}
}

// Wget returns the wget strategy.
func Wget(run Runner) *CommandStrategy {
	return &CommandStrategy{
		name: "wget",
		args: func(req Request) []string {
			return []string{"-q", "-T", seconds(req.Timeout), "-O", req.ArchivePath, req.URL}
		},
		run:   runnerOrDefault(run),
		unzip: "unzip",
	}
}

// Name returns the tool name.
func (s *CommandStrategy) Name() string { return s.name }

// FetchAndExtract runs the download tool and then unzip.
func (s *CommandStrategy) FetchAndExtract(ctx context.Context, req Request) error {
	if _, err := s.run(ctx, s.name, s.args(req)...); err != nil {
		return atStage(StageFetch, err)
	}
	if _, err := s.run(ctx, s.unzip, "-o", "-q", req.ArchivePath, "-d", req.WorkDir); err != nil {
		return atStage(StageExtract, err)
	}
	return nil
}

func runnerOrDefault(run Runner) Runner {
	if run == nil {
		return ExecRunner
	}
	return run
}

func seconds(d time.Duration) string {
	s := int(d.Seconds())
	if s < 1 {
		s = 1
	}
	return strconv.Itoa(s)
}
