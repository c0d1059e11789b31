package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/ByLCY/storybook/config"
	"github.com/ByLCY/storybook/imagery"
	"github.com/ByLCY/storybook/pipeline"
	"github.com/ByLCY/storybook/profile"
	"github.com/ByLCY/storybook/renderer"
	canvasrenderer "github.com/ByLCY/storybook/renderer/canvas"
	fpdfrenderer "github.com/ByLCY/storybook/renderer/fpdf"
	"github.com/ByLCY/storybook/state"
)

func buildCommand() *cli.Command {
	return &cli.Command{
		Name:         "build",
		Usage:        "Builds PDF story book",
		OnUsageError: usageErrorHandler,
		Action:       runBuild,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "story", Aliases: []string{"s"}, Usage: "read story text from `FILE` (plain text, UTF-8)"},
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "book `TITLE`"},
			&cli.StringFlag{Name: "author", Aliases: []string{"a"}, Usage: "book `AUTHOR`"},
			&cli.StringFlag{Name: "cover", Usage: "cover image `FILE`"},
			&cli.StringSliceFlag{Name: "image", Aliases: []string{"i"}, Usage: "illustration `FILE`, may be repeated, order is kept"},
			&cli.StringFlag{Name: "images", Usage: "use all images from `DIRECTORY` as illustrations, sorted by name"},
			&cli.StringFlag{Name: "backend", Usage: "rendering `BACKEND` (canvas or fpdf), overrides configuration"},
			&cli.StringFlag{Name: "profile", Aliases: []string{"p"}, Usage: "apply layout profile from `FILE`, overrides configuration"},
			&cli.StringFlag{Name: "layout-json", Usage: "write computed layout to `FILE` for inspection"},
			&cli.BoolFlag{Name: "overwrite", Aliases: []string{"ow"}, Usage: "overwrite destination file if it exists"},
		},
		ArgsUsage: "[DESTINATION]",
		CustomHelpTemplate: fmt.Sprintf(`%s
DESTINATION:
    path to output file or directory
    if it is a directory (or absent - current working directory) file name
    is derived from book title using configured output name template
`, cli.CommandHelpTemplate),
	}
}

func runBuild(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("build")
	env.Overwrite = cmd.Bool("overwrite")

	storyFile := cmd.String("story")
	if len(storyFile) == 0 {
		return errors.New("no story has been specified")
	}
	if storyFile, err = filepath.Abs(storyFile); err != nil {
		return err
	}

	title := strings.TrimSpace(cmd.String("title"))
	if len(title) == 0 {
		title = strings.TrimSuffix(filepath.Base(storyFile), filepath.Ext(storyFile))
		log.Warn("No title specified, using story file name", zap.String("title", title))
	}

	doc := env.Cfg.Document
	settings, err := doc.Settings()
	if err != nil {
		return fmt.Errorf("unable to prepare layout settings: %w", err)
	}
	if p := cmd.String("profile"); len(p) > 0 {
		doc.Profile = p
	}
	if len(doc.Profile) > 0 {
		if err := profile.Load(doc.Profile, &settings); err != nil {
			return fmt.Errorf("unable to apply profile: %w", err)
		}
		log.Debug("Profile applied", zap.String("profile", doc.Profile))
	}

	if b := cmd.String("backend"); len(b) > 0 {
		doc.Backend = b
	}
	backend, err := newBackend(doc, filepath.Dir(storyFile), log)
	if err != nil {
		return err
	}

	images := cmd.StringSlice("image")
	if dir := cmd.String("images"); len(dir) > 0 {
		found, err := imagery.Scan(dir)
		if err != nil {
			return fmt.Errorf("unable to scan illustrations: %w", err)
		}
		log.Debug("Illustrations found", zap.String("dir", dir), zap.Int("count", len(found)))
		images = append(images, found...)
	}

	dst, err := destination(cmd, doc.OutputNameTemplate, title)
	if err != nil {
		return err
	}
	log.Info("Building story book", zap.String("story", storyFile), zap.String("backend", doc.Backend),
		zap.Int("illustrations", len(images)), zap.String("to", dst))

	artifact, err := pipeline.Run(ctx, pipeline.Request{
		Title:  title,
		Author: cmd.String("author"),
		Story:  pipeline.StoryFile(storyFile),
		Art:    pipeline.ArtFiles{Cover: cmd.String("cover"), Images: images, Log: log},
	}, pipeline.Options{
		Settings:   settings,
		Backend:    backend,
		Logger:     log,
		LayoutJSON: cmd.String("layout-json"),
	})
	if err != nil {
		return err
	}
	if err := pipeline.WriteArtifact(dst, artifact.PDF, env.Overwrite); err != nil {
		return err
	}
	log.Info("Story book written", zap.String("file", dst), zap.Int("pages", len(artifact.Result.Pages)),
		zap.Duration("elapsed", env.Uptime()))
	return nil
}

// newBackend creates renderer selected by configuration. Relative font
// sources not coming from profile are resolved against baseDir.
func newBackend(doc config.DocumentConfig, baseDir string, log *zap.Logger) (renderer.Backend, error) {
	dpi := float64(doc.Illustrations.DPI)
	switch doc.Backend {
	case "", "canvas":
		return canvasrenderer.NewRendererWithOptions(canvasrenderer.Options{
			BaseDir:  baseDir,
			Logger:   log,
			ImageDPI: dpi,
		}), nil
	case "fpdf":
		return fpdfrenderer.New(fpdfrenderer.Options{
			BaseDir:  baseDir,
			Logger:   log,
			CoreFont: doc.CoreFont,
			ImageDPI: dpi,
		}), nil
	}
	return nil, fmt.Errorf("unknown rendering backend %q", doc.Backend)
}

// destination returns output file path. When argument is absent or points
// to existing directory file name is produced from title.
func destination(cmd *cli.Command, template, title string) (string, error) {
	dst := cmd.Args().Get(0)
	if cmd.Args().Len() > 1 {
		return "", fmt.Errorf("malformed command line, too many destinations: %v", cmd.Args().Slice()[1:])
	}
	if len(dst) == 0 {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("unable to get working directory: %w", err)
		}
		dst = wd
	}
	dst, err := filepath.Abs(dst)
	if err != nil {
		return "", err
	}
	if fi, err := os.Stat(dst); err == nil && fi.IsDir() {
		return filepath.Join(dst, pipeline.OutputName(template, title)), nil
	}
	return dst, nil
}
