package loader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Source is an agent source file read from disk.
type Source struct {
	Path string
	Text []byte
}

// Compiler turns one source into a loadable artifact at artifactPath.
type Compiler interface {
	Compile(ctx context.Context, src Source, artifactPath string) error
}

// GoPluginCompiler builds each source as a Go plugin with the go toolchain.
// WorkDir must sit inside a module that can resolve the agentenv package.
type GoPluginCompiler struct {
	GoBinary   string
	WorkDir    string
	BuildFlags []string
	Timeout    time.Duration
}

// Compile writes src into a scratch package under WorkDir and runs
// `go build -buildmode=plugin`.
func (c GoPluginCompiler) Compile(ctx context.Context, src Source, artifactPath string) error {
	goBinary := c.GoBinary
	if goBinary == "" {
		goBinary = "go"
	}
	workDir := c.WorkDir
	if workDir == "" {
		workDir = "."
	}
	out, err := filepath.Abs(artifactPath)
	if err != nil {
		return fmt.Errorf("resolve artifact path: %w", err)
	}

	buildDir, err := os.MkdirTemp(workDir, ".agentrt-build-")
	if err != nil {
		return fmt.Errorf("create build dir: %w", err)
	}
	defer os.RemoveAll(buildDir)

	name := filepath.Base(src.Path)
	if filepath.Ext(name) != ".go" {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ".go"
	}
	if err := os.WriteFile(filepath.Join(buildDir, name), src.Text, 0o644); err != nil {
		return fmt.Errorf("stage source: %w", err)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	args := []string{"build", "-buildmode=plugin", "-o", out}
	args = append(args, c.BuildFlags...)
	args = append(args, "./"+filepath.Base(buildDir))

	command := exec.CommandContext(ctx, goBinary, args...)
	command.Dir = workDir
	var stderr bytes.Buffer
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return fmt.Errorf("go build %s: %v, stderr=%s", src.Path, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
