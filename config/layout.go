package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/warp/attainment-dashboard/sheet"
)

// ErrUnknownPreset is returned for a layout name that is neither a preset nor a file.
var ErrUnknownPreset = errors.New("unknown layout preset")

// layoutFile is the on-disk shape. Preset selects the base layout that the
// remaining keys override.
type layoutFile struct {
	Preset string `toml:"preset"`
}

// Preset returns a built-in layout by name.
func Preset(name string) (sheet.Layout, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default", "english", "en":
		return sheet.DefaultLayout(), nil
	case "portuguese", "pt", "pt-br":
		return sheet.PortugueseLayout(), nil
	}
	return sheet.Layout{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
}

// LoadLayout reads a TOML layout file. Keys absent from the file keep the
// preset's values.
func LoadLayout(path string) (sheet.Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return sheet.Layout{}, fmt.Errorf("reading layout: %w", err)
	}

	var head layoutFile
	if err := toml.Unmarshal(data, &head); err != nil {
		return sheet.Layout{}, fmt.Errorf("parsing layout: %w", err)
	}

	layout, err := Preset(head.Preset)
	if err != nil {
		return sheet.Layout{}, err
	}
	if err := toml.Unmarshal(data, &layout); err != nil {
		return sheet.Layout{}, fmt.Errorf("parsing layout: %w", err)
	}

	if err := layout.Validate(); err != nil {
		return sheet.Layout{}, err
	}
	return layout, nil
}

// ResolveLayout accepts either a preset name or a path to a TOML file.
func ResolveLayout(nameOrPath string) (sheet.Layout, error) {
	if strings.HasSuffix(strings.ToLower(nameOrPath), ".toml") {
		return LoadLayout(nameOrPath)
	}
	if _, err := os.Stat(nameOrPath); nameOrPath != "" && err == nil {
		return LoadLayout(nameOrPath)
	}
	return Preset(nameOrPath)
}
