package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var (
	// ErrUnknownKey is returned for a setting no consumer understands.
	ErrUnknownKey = errors.New("vis: unrecognized key")
	// ErrNoModels is returned when a settings file lists no model.
	ErrNoModels = errors.New("vis: no model filename specified")
)

// Settings is a parsed .vis file. Budgets are in MiB.
type Settings struct {
	Models []string
	// Transforms maps a model index to the path of its matrix file.
	Transforms map[uint32]string
	// Aux maps a model index to its auxiliary data path.
	Aux map[uint32]string

	RAM      int
	VRAM     int
	Upload   int
	FrameDiv int
	LODError float64

	// Render holds renderer-only settings verbatim.
	Render map[string]string
}

// renderKeys are accepted but only meaningful to a renderer.
var renderKeys = map[string]bool{
	"width": true, "height": true, "near": true, "far": true, "fov": true,
	"splatting": true, "gamma_correction": true, "info": true, "speed": true,
	"pvs_cull": true, "lod_point_scale": true, "aux_point_size": true,
	"aux_focal_length": true, "provenance": true, "show_normals": true,
	"show_accuracy": true, "show_radius_deviation": true,
	"show_output_sensitivity": true, "show_sparse": true, "show_views": true,
	"show_octrees": true, "channel": true, "enable_lighting": true,
	"use_material_color": true, "material_diffuse_r": true,
	"material_diffuse_g": true, "material_diffuse_b": true,
	"material_specular_r": true, "material_specular_g": true,
	"material_specular_b": true, "material_specular_exponent": true,
	"ambient_light_color_r": true, "ambient_light_color_g": true,
	"ambient_light_color_b": true, "point_light_color_r": true,
	"point_light_color_g": true, "point_light_color_b": true,
	"point_light_intensity": true, "background_color_r": true,
	"background_color_g": true, "background_color_b": true, "heatmap": true,
	"heatmap_min": true, "heatmap_max": true, "heatmap_min_r": true,
	"heatmap_min_g": true, "heatmap_min_b": true, "heatmap_max_r": true,
	"heatmap_max_g": true, "heatmap_max_b": true, "json": true, "pvs": true,
	"background_image": true, "use_view_tf": true, "view_tf": true,
}

// DefaultSettings returns the values used for keys a file omits.
func DefaultSettings() *Settings {
	return &Settings{
		Transforms: make(map[uint32]string),
		Aux:        make(map[uint32]string),
		Render:     make(map[string]string),
		RAM:        4096,
		VRAM:       2048,
		Upload:     32,
		FrameDiv:   1,
		LODError:   2.5,
	}
}

// LoadVisFile parses the settings file at path.
func LoadVisFile(path string) (*Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := ParseVis(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return s, nil
}

// ParseVis parses settings. Lines shorter than two bytes and lines starting
// with '#' are ignored. A line without a colon names a model; "key: value"
// sets a budget; "@<id> tf: path" and "@<id> aux: path" attach per-model
// data.
func ParseVis(r io.Reader) (*Settings, error) {
	s := DefaultSettings()
	sc := bufio.NewScanner(r)
	lineNo := 0

	for sc.Scan() {
		lineNo++
		line := sc.Text()

		if len(line) < 2 || line[0] == '#' {
			continue
		}

		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}

			id := uint32(len(s.Models))
			s.Models = append(s.Models, fields[0])
			s.Transforms[id] = ""
			s.Aux[id] = ""

			continue
		}

		key := strings.TrimSpace(line[:colon])
		value := strings.TrimSpace(line[colon+1:])

		if strings.HasPrefix(key, "@") {
			if err := s.setModelKey(key, value); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}

			continue
		}

		if err := s.set(key, value); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}

	if err := sc.Err(); err != nil {
		return nil, err
	}

	if len(s.Models) == 0 {
		return nil, ErrNoModels
	}

	return s, nil
}

func (s *Settings) setModelKey(key, value string) error {
	fields := strings.Fields(key[1:])
	if len(fields) != 2 {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	id := uint32(atoi(fields[0]))

	switch fields[1] {
	case "tf":
		s.Transforms[id] = value
	case "aux":
		s.Aux[id] = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKey, fields[1])
	}

	return nil
}

func (s *Settings) set(key, value string) error {
	switch key {
	case "ram":
		s.RAM = max(atoi(value), 8)
	case "vram":
		s.VRAM = max(atoi(value), 8)
	case "upload":
		s.Upload = max(atoi(value), 8)
	case "frame_div":
		s.FrameDiv = max(atoi(value), 1)
	case "lod_error":
		s.LODError = min(max(atof(value), 0), 10)
	default:
		if !renderKeys[key] {
			return fmt.Errorf("%w: %q", ErrUnknownKey, key)
		}

		s.Render[key] = value
	}

	return nil
}

// Apply copies the budgets of s into c.
func (s *Settings) Apply(c *Config) {
	c.Stream.CacheSize = fmt.Sprintf("%dMiB", s.RAM)
	c.Stream.UploadPerFrame = fmt.Sprintf("%dMiB", s.Upload)

	c.Models = make([]ModelConfig, 0, len(s.Models))
	for _, m := range s.Models {
		c.Models = append(c.Models, ModelConfig{Path: m, Key: m})
	}
}

// atoi parses a leading integer like C's atoi: garbage yields 0.
func atoi(s string) int {
	s = strings.TrimSpace(s)
	end := 0

	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && (s[end] == '-' || s[end] == '+')) {
		end++
	}

	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}

	return n
}

func atof(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}

	return f
}
