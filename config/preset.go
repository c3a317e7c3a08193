package config

import (
	"fmt"
	"strings"
)

// Preset is a named render scale.
type Preset int

// Quality presets, from sharpest to fastest.
const (
	UltraQuality Preset = iota
	Quality
	Balanced
	Performance
)

var presets = [...]struct {
	name  string
	scale float32
}{
	UltraQuality: {"ultra_quality", 1.3},
	Quality:      {"quality", 1.5},
	Balanced:     {"balanced", 1.7},
	Performance:  {"performance", 2.0},
}

// Scale returns the divisor applied to the native resolution.
func (p Preset) Scale() float32 {
	if p < UltraQuality || p > Performance {
		return presets[UltraQuality].scale
	}
	return presets[p].scale
}

func (p Preset) String() string {
	if p < UltraQuality || p > Performance {
		return fmt.Sprintf("Preset(%d)", int(p))
	}
	return presets[p].name
}

// ParsePreset accepts a preset name in any case, with '_', '-' or ' '
// between words or none at all. "ultra" is short for ultra_quality.
func ParsePreset(name string) (Preset, error) {
	key := strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(name)))
	if key == "ultra" {
		return UltraQuality, nil
	}
	for i, p := range presets {
		if strings.ReplaceAll(p.name, "_", "") == key {
			return Preset(i), nil
		}
	}
	return UltraQuality, fmt.Errorf("%w: preset %q", ErrInvalid, name)
}
