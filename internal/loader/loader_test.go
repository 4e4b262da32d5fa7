package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	xerrors "github.com/nuyoahch/agent-runtime/internal/errors"
	"github.com/nuyoahch/agent-runtime/pkg/agentenv"
)

type fakeCompiler struct {
	compiled []string
	fail     string
}

func (c *fakeCompiler) Compile(_ context.Context, src Source, artifact string) error {
	if filepath.Base(src.Path) == c.fail {
		return errors.New("syntax error")
	}
	c.compiled = append(c.compiled, filepath.Base(src.Path))
	return os.WriteFile(artifact, src.Text, 0o644)
}

type fakeModule map[string]any

func (m fakeModule) Lookup(symbol string) (any, error) {
	if v, ok := m[symbol]; ok {
		return v, nil
	}
	return nil, errors.New("symbol " + symbol + " not found")
}

type fakeOpener struct {
	opened  []string
	modules map[string]fakeModule
}

func (o *fakeOpener) Open(path string) (Module, error) {
	o.opened = append(o.opened, filepath.Base(path))
	if m, ok := o.modules[filepath.Base(path)]; ok {
		return m, nil
	}
	return fakeModule{}, nil
}

type threadOnly struct{}

func (threadOnly) ThreadID() string { return "t1" }

func writeSources(t *testing.T, names ...string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, "src", name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("package main // "+name), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		paths = append(paths, path)
	}
	return dir, paths
}

func TestArtifactName(t *testing.T) {
	cases := map[string]string{
		"agent.go":          "agent.so",
		"/tmp/x/helpers.go": "helpers.so",
		"nested/agent.src":  "agent.so",
		"noext":             "noext.so",
	}
	for in, want := range cases {
		if got := ArtifactName(in); got != want {
			t.Fatalf("ArtifactName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRunAgentInvokesOnlyEntryModule(t *testing.T) {
	dir, paths := writeSources(t, "a.go", "agent.go", "b.go")
	outDir := filepath.Join(dir, "out")

	invoked := 0
	compiler := &fakeCompiler{}
	opener := &fakeOpener{modules: map[string]fakeModule{
		"agent.so": {EntrySymbol: func(ctx context.Context, env *agentenv.Env) error {
			invoked++
			if env.ThreadID() != "t1" {
				t.Errorf("unexpected env thread %s", env.ThreadID())
			}
			return nil
		}},
	}}
	var compiledArtifacts []string
	l := New(Options{
		Compiler:   compiler,
		Opener:     opener,
		OutputDir:  outDir,
		OnCompiled: func(a []string) { compiledArtifacts = a },
	})

	if err := l.RunAgent(context.Background(), paths, agentenv.New(threadOnly{})); err != nil {
		t.Fatalf("RunAgent: %v", err)
	}
	if strings.Join(compiler.compiled, ",") != "a.go,agent.go,b.go" {
		t.Fatalf("expected all sources compiled in order, got %v", compiler.compiled)
	}
	for _, name := range []string{"a.so", "agent.so", "b.so"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Fatalf("artifact %s not persisted: %v", name, err)
		}
	}
	if len(compiledArtifacts) != 3 {
		t.Fatalf("OnCompiled saw %v", compiledArtifacts)
	}
	if len(opener.opened) != 1 || opener.opened[0] != "agent.so" {
		t.Fatalf("expected only agent.so opened, got %v", opener.opened)
	}
	if invoked != 1 {
		t.Fatalf("entry invoked %d times", invoked)
	}
}

func TestRunAgentMissingSourceLoadsNothing(t *testing.T) {
	dir, paths := writeSources(t, "agent.go", "b.go")
	paths = append(paths[:1], filepath.Join(dir, "src", "missing.go"), paths[1])

	compiler := &fakeCompiler{}
	opener := &fakeOpener{}
	l := New(Options{Compiler: compiler, Opener: opener, OutputDir: filepath.Join(dir, "out")})

	err := l.RunAgent(context.Background(), paths, agentenv.New(threadOnly{}))
	if !xerrors.HasCode(err, xerrors.CodeAgentCompileFailed) {
		t.Fatalf("expected AGENT_COMPILE_FAILED, got %v", err)
	}
	if len(compiler.compiled) != 0 || len(opener.opened) != 0 {
		t.Fatalf("nothing should be compiled or loaded: compiled=%v opened=%v", compiler.compiled, opener.opened)
	}
}

func TestRunAgentCompileFailureLoadsNothing(t *testing.T) {
	dir, paths := writeSources(t, "agent.go", "b.go")
	opener := &fakeOpener{}
	l := New(Options{Compiler: &fakeCompiler{fail: "b.go"}, Opener: opener, OutputDir: filepath.Join(dir, "out")})

	err := l.RunAgent(context.Background(), paths, agentenv.New(threadOnly{}))
	if !xerrors.HasCode(err, xerrors.CodeAgentCompileFailed) {
		t.Fatalf("expected AGENT_COMPILE_FAILED, got %v", err)
	}
	if len(opener.opened) != 0 {
		t.Fatalf("entry must not load after a compile failure, opened %v", opener.opened)
	}
}

func TestRunAgentRunsOnce(t *testing.T) {
	dir, paths := writeSources(t, "agent.go")
	l := New(Options{Compiler: &fakeCompiler{}, Opener: &fakeOpener{}, OutputDir: filepath.Join(dir, "out")})

	if err := l.RunAgent(context.Background(), paths, agentenv.New(threadOnly{})); err != nil {
		t.Fatalf("first RunAgent: %v", err)
	}
	if err := l.RunAgent(context.Background(), paths, agentenv.New(threadOnly{})); !errors.Is(err, ErrAlreadyRan) {
		t.Fatalf("expected ErrAlreadyRan, got %v", err)
	}
}

type structAgent struct{ calls *int }

func (a structAgent) Run(context.Context, *agentenv.Env) error {
	*a.calls++
	return nil
}

func TestInvokeAcceptsEntryShapes(t *testing.T) {
	calls := 0
	fn := func(context.Context, *agentenv.Env) error { calls++; return nil }
	runFunc := agentenv.RunFunc(fn)
	var agent agentenv.Agent = structAgent{calls: &calls}

	for _, symbol := range []any{fn, &fn, runFunc, &runFunc, agent, &agent} {
		if err := invoke(context.Background(), symbol, nil); err != nil {
			t.Fatalf("invoke %T: %v", symbol, err)
		}
	}
	if calls != 6 {
		t.Fatalf("expected 6 calls, got %d", calls)
	}
	if err := invoke(context.Background(), 42, nil); !xerrors.HasCode(err, xerrors.CodeAgentLoadFailed) {
		t.Fatalf("expected AGENT_LOAD_FAILED for bad symbol, got %v", err)
	}
}

func TestInvokeRecoversPanics(t *testing.T) {
	boom := func(context.Context, *agentenv.Env) error { panic("boom") }
	err := invoke(context.Background(), boom, nil)
	if !xerrors.HasCode(err, xerrors.CodeAgentRunFailed) || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected recovered AGENT_RUN_FAILED, got %v", err)
	}
}

func TestRunAgentMissingRunSymbolIsNotInvoked(t *testing.T) {
	dir, paths := writeSources(t, "agent.go")
	opener := &fakeOpener{modules: map[string]fakeModule{"agent.so": {"Other": 1}}}
	l := New(Options{Compiler: &fakeCompiler{}, Opener: opener, OutputDir: filepath.Join(dir, "out")})

	if err := l.RunAgent(context.Background(), paths, agentenv.New(threadOnly{})); err != nil {
		t.Fatalf("missing Run symbol should not fail: %v", err)
	}
}
