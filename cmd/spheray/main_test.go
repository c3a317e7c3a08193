package main

import (
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/spheray/config"
	"github.com/gogpu/spheray/prim"
)

func TestParseOps(t *testing.T) {
	ops, err := parseOps("union, difference,,intersection")
	if err != nil {
		t.Fatalf("parseOps() error = %v", err)
	}
	want := []prim.Operation{prim.Union, prim.Difference, prim.Intersection}
	if len(ops) != len(want) {
		t.Fatalf("parseOps() = %v, want %v", ops, want)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("parseOps()[%d] = %v, want %v", i, ops[i], want[i])
		}
	}
	if _, err := parseOps("xor"); err == nil {
		t.Error("parseOps(xor) succeeded")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	c, err := loadConfig(flags{backend: "cpu", preset: "performance"})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if c.Backend != config.BackendCPU {
		t.Errorf("Backend = %q, want cpu", c.Backend)
	}
	if c.Render.Scale != config.Performance.Scale() {
		t.Errorf("Scale = %v, want %v", c.Render.Scale, config.Performance.Scale())
	}
	if _, err := loadConfig(flags{preset: "cinematic"}); err == nil {
		t.Error("loadConfig() accepted an unknown preset")
	}
}

func TestRunWritesPNG(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "spheray.yaml")
	body := "backend: cpu\nsave_dir: " + filepath.Join(dir, "saves") + "\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out.png")
	f := flags{
		config: cfgPath, spawn: "difference", save: "demo",
		width: 48, height: 32, frames: 2, output: out,
	}
	if err := run(f, slog.New(slog.DiscardHandler)); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	file, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	img, err := png.Decode(file)
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	if b := img.Bounds(); b.Dx() != 48 || b.Dy() != 32 {
		t.Errorf("image bounds = %v, want 48x32", b)
	}
	if _, err := os.Stat(filepath.Join(dir, "saves", "demo.json")); err != nil {
		t.Errorf("saved scene missing: %v", err)
	}
}
