// Package loader compiles agent sources, persists the artifacts and runs
// the entry module exactly once.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	xerrors "github.com/nuyoahch/agent-runtime/internal/errors"
	"github.com/nuyoahch/agent-runtime/internal/metrics"
	"github.com/nuyoahch/agent-runtime/pkg/agentenv"
	"github.com/nuyoahch/agent-runtime/pkg/logger"
)

const (
	// DefaultEntryName is the base name of the entry source.
	DefaultEntryName = "agent"
	// ArtifactExt is the extension of compiled artifacts.
	ArtifactExt = ".so"
	// EntrySymbol is the exported symbol invoked in the entry module.
	EntrySymbol = "Run"
)

// ErrAlreadyRan is returned by every RunAgent call after the first.
var ErrAlreadyRan = errors.New("agent already ran in this process")

// Options configures a Loader.
type Options struct {
	Compiler Compiler
	Opener   Opener
	// OutputDir receives artifacts. Empty means the executable's directory.
	OutputDir string
	EntryName string
	Logger    *slog.Logger
	// OnCompiled is called once every source has been compiled.
	OnCompiled func(artifacts []string)
}

// Loader runs one agent.
type Loader struct {
	opts Options
	log  *slog.Logger

	mu  sync.Mutex
	ran bool
}

// New builds a loader, filling defaults.
func New(opts Options) *Loader {
	if opts.Compiler == nil {
		opts.Compiler = GoPluginCompiler{}
	}
	if opts.Opener == nil {
		opts.Opener = GoPluginOpener{}
	}
	if opts.EntryName == "" {
		opts.EntryName = DefaultEntryName
	}
	log := opts.Logger
	if log == nil {
		log = logger.Named("loader")
	}
	return &Loader{opts: opts, log: log}
}

// ArtifactName strips directories and swaps the extension for ArtifactExt.
func ArtifactName(sourcePath string) string {
	base := filepath.Base(sourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ArtifactExt
}

func (l *Loader) isEntry(sourcePath string) bool {
	base := filepath.Base(sourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base)) == l.opts.EntryName
}

func (l *Loader) outputDir() (string, error) {
	if l.opts.OutputDir != "" {
		return l.opts.OutputDir, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	return filepath.Dir(exe), nil
}

// RunAgent reads every source, compiles each to an artifact and only then
// opens the entry artifact and invokes its Run symbol. Any read or compile
// failure aborts before any agent code is loaded.
func (l *Loader) RunAgent(ctx context.Context, entryFiles []string, env *agentenv.Env) error {
	l.mu.Lock()
	if l.ran {
		l.mu.Unlock()
		return ErrAlreadyRan
	}
	l.ran = true
	l.mu.Unlock()

	sources := make([]Source, 0, len(entryFiles))
	for _, path := range entryFiles {
		text, err := os.ReadFile(path)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeAgentCompileFailed, err, "read agent source "+path)
		}
		sources = append(sources, Source{Path: path, Text: text})
	}

	outDir, err := l.outputDir()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeAgentCompileFailed, err, "resolve output directory")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return xerrors.Wrap(xerrors.CodeAgentCompileFailed, err, "create output directory")
	}

	var (
		artifacts []string
		entry     string
	)
	for _, src := range sources {
		artifact := filepath.Join(outDir, ArtifactName(src.Path))
		start := time.Now()
		if err := l.opts.Compiler.Compile(ctx, src, artifact); err != nil {
			return xerrors.Wrap(xerrors.CodeAgentCompileFailed, err, "compile "+src.Path)
		}
		metrics.AgentCompileDuration.Observe(time.Since(start).Seconds())
		l.log.Debug("compiled agent source", "source", src.Path, "artifact", artifact)
		artifacts = append(artifacts, artifact)
		if l.isEntry(src.Path) {
			entry = artifact
		}
	}
	if l.opts.OnCompiled != nil {
		l.opts.OnCompiled(artifacts)
	}

	if entry == "" {
		return xerrors.New(xerrors.CodeAgentLoadFailed, fmt.Sprintf("no entry source named %q among %d files", l.opts.EntryName, len(entryFiles)))
	}
	module, err := l.opts.Opener.Open(entry)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeAgentLoadFailed, err, "open "+entry)
	}
	symbol, err := module.Lookup(EntrySymbol)
	if err != nil {
		l.log.Warn("entry module exports no Run symbol; nothing to invoke", "artifact", entry)
		return nil
	}
	return invoke(ctx, symbol, env)
}

func invoke(ctx context.Context, symbol any, env *agentenv.Env) (err error) {
	var run agentenv.RunFunc
	switch fn := symbol.(type) {
	case func(context.Context, *agentenv.Env) error:
		run = fn
	case *func(context.Context, *agentenv.Env) error:
		if fn != nil {
			run = *fn
		}
	case agentenv.RunFunc:
		run = fn
	case *agentenv.RunFunc:
		if fn != nil {
			run = *fn
		}
	case *agentenv.Agent:
		if fn != nil && *fn != nil {
			run = (*fn).Run
		}
	case agentenv.Agent:
		run = fn.Run
	}
	if run == nil {
		return xerrors.New(xerrors.CodeAgentLoadFailed, fmt.Sprintf("Run symbol has unsupported type %T", symbol))
	}

	defer func() {
		if r := recover(); r != nil {
			err = xerrors.New(xerrors.CodeAgentRunFailed, fmt.Sprintf("agent panicked: %v", r))
		}
	}()
	if err := run(ctx, env); err != nil {
		return xerrors.Wrap(xerrors.CodeAgentRunFailed, err, "agent run")
	}
	return nil
}
