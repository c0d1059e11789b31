package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ByLCY/storybook/config"
	"github.com/ByLCY/storybook/pipeline"
	canvasrenderer "github.com/ByLCY/storybook/renderer/canvas"
	fpdfrenderer "github.com/ByLCY/storybook/renderer/fpdf"
	"github.com/ByLCY/storybook/state"
)

func buildContext(t *testing.T) context.Context {
	t.Helper()
	ctx := state.ContextWithEnv(context.Background())
	env := state.EnvFromContext(ctx)
	cfg, err := config.LoadConfiguration("")
	if err != nil {
		t.Fatalf("unable to load default configuration: %v", err)
	}
	env.Cfg, env.Log = cfg, zap.NewNop()
	return ctx
}

func TestRunBuildDestinationExists(t *testing.T) {
	dir := t.TempDir()
	story := filepath.Join(dir, "story.txt")
	if err := os.WriteFile(story, []byte("Once upon a time.\n\nThe end."), 0o644); err != nil {
		t.Fatalf("unable to write story: %v", err)
	}
	dst := filepath.Join(dir, "book.pdf")
	args := []string{"build", "--story", story, "--title", "Fox", dst}

	if err := buildCommand().Run(buildContext(t), args); err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if fi, err := os.Stat(dst); err != nil || fi.Size() == 0 {
		t.Fatalf("expected non empty PDF at %s: %v", dst, err)
	}

	err := buildCommand().Run(buildContext(t), args)
	var be *pipeline.BuildError
	if !errors.As(err, &be) || be.Stage != pipeline.StageWrite || !errors.Is(err, os.ErrExist) {
		t.Fatalf("expected write stage error for existing destination, got %v", err)
	}
	if n := strings.Count(err.Error(), "write:"); n != 1 {
		t.Fatalf("stage reported %d times: %v", n, err)
	}

	if err := buildCommand().Run(buildContext(t), append([]string{"build", "--overwrite"}, args[1:]...)); err != nil {
		t.Fatalf("build with overwrite failed: %v", err)
	}
}

func TestNewBackend(t *testing.T) {
	log := zap.NewNop()

	for _, tc := range []struct {
		backend string
		check   func(any) bool
	}{
		{"", func(b any) bool { _, ok := b.(*canvasrenderer.Renderer); return ok }},
		{"canvas", func(b any) bool { _, ok := b.(*canvasrenderer.Renderer); return ok }},
		{"fpdf", func(b any) bool { _, ok := b.(*fpdfrenderer.Renderer); return ok }},
	} {
		b, err := newBackend(config.DocumentConfig{Backend: tc.backend}, t.TempDir(), log)
		if err != nil {
			t.Fatalf("backend %q: unexpected error: %v", tc.backend, err)
		}
		if !tc.check(b) {
			t.Fatalf("backend %q: unexpected type %T", tc.backend, b)
		}
	}

	if _, err := newBackend(config.DocumentConfig{Backend: "latex"}, "", log); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
