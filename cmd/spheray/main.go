// Command spheray renders an SDF scene to a PNG file.
//
// Usage:
//
//	spheray -config spheray.toml -load castle -spawn union,difference \
//	    -w 1280 -h 720 -frames 2 -o out.png [-backend cpu|gpu|auto] \
//	    [-preset balanced] [-save name] [-watch] [-v]
//
// With -watch the config file is watched after the first image is written;
// every change is applied and the image rewritten until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/gogpu/spheray"
	"github.com/gogpu/spheray/config"
	"github.com/gogpu/spheray/prim"
)

type flags struct {
	config  string
	load    string
	save    string
	spawn   string
	width   int
	height  int
	frames  int
	output  string
	backend string
	preset  string
	watch   bool
	verbose bool
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.config, "config", "", "TOML or YAML config file")
	flag.StringVar(&f.load, "load", "", "saved scene to load")
	flag.StringVar(&f.save, "save", "", "save the scene under this name after spawning")
	flag.StringVar(&f.spawn, "spawn", "", "comma separated operations to spawn (union, difference, intersection)")
	flag.IntVar(&f.width, "w", 1280, "native width")
	flag.IntVar(&f.height, "h", 720, "native height")
	flag.IntVar(&f.frames, "frames", 1, "frames to render before writing the image")
	flag.StringVar(&f.output, "o", "spheray.png", "output PNG")
	flag.StringVar(&f.backend, "backend", "", "cpu, gpu or auto (overrides config)")
	flag.StringVar(&f.preset, "preset", "", "ultra, quality, balanced or performance (overrides config)")
	flag.BoolVar(&f.watch, "watch", false, "re-render whenever the config file changes")
	flag.BoolVar(&f.verbose, "v", false, "debug logging")
	flag.Parse()
	return f
}

func main() {
	f := parseFlags()

	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	spheray.SetLogger(logger)

	if err := run(f, logger); err != nil {
		logger.Error("spheray failed", "err", err)
		os.Exit(1)
	}
}

func loadConfig(f flags) (*config.Config, error) {
	c := config.Default()
	if f.config != "" {
		var err error
		if c, err = config.Load(f.config); err != nil {
			return nil, err
		}
	}
	if f.backend != "" {
		c.Backend = f.backend
	}
	if f.preset != "" {
		c.Preset = f.preset
	}
	return c, c.Validate()
}

func parseOps(list string) ([]prim.Operation, error) {
	var ops []prim.Operation
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		op, err := prim.ParseOperation(name)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func run(f flags, logger *slog.Logger) error {
	if f.frames < 1 {
		return fmt.Errorf("-frames must be at least 1, got %d", f.frames)
	}
	ops, err := parseOps(f.spawn)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	opts, err := spheray.ConfigOptions(cfg)
	if err != nil {
		return err
	}
	eng, err := spheray.New(nil, opts...)
	if err != nil {
		return err
	}
	defer eng.Close()

	if f.load != "" {
		if err := eng.Load(f.load); err != nil {
			return fmt.Errorf("load %q: %w", f.load, err)
		}
	}
	for _, op := range ops {
		if _, err := eng.Spawn(op); err != nil {
			return err
		}
	}
	if f.save != "" {
		if err := eng.Save(f.save); err != nil {
			return fmt.Errorf("save %q: %w", f.save, err)
		}
	}

	if err := renderTo(eng, f); err != nil {
		return err
	}
	logger.Info("image written", "path", f.output, "size", fmt.Sprintf("%dx%d", f.width, f.height),
		"backend", eng.Backend(), "low", eng.Pipeline().LowSize())

	if !f.watch {
		return nil
	}
	if f.config == "" {
		return errors.New("-watch needs -config")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	logger.Info("watching config", "path", f.config)
	return config.Watch(ctx, f.config, func(c *config.Config, err error) {
		if err != nil {
			logger.Warn("config reload failed", "err", err)
			return
		}
		eng.Reconfigure(c)
		if err := renderTo(eng, f); err != nil {
			logger.Warn("render after reload failed", "err", err)
			return
		}
		logger.Info("image rewritten", "path", f.output)
	})
}

func renderTo(eng *spheray.Engine, f flags) error {
	for i := 0; i < f.frames; i++ {
		eng.Update()
		if err := eng.Render(f.width, f.height); err != nil {
			return err
		}
	}
	img := eng.Pipeline().LastFrame()
	if img == nil {
		return errors.New("no frame rendered")
	}
	out, err := os.Create(f.output)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
