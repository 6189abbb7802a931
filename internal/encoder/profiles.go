package encoder

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile names one encoding target. Historically this service grew several
// drifted encode paths; the profile table is now the single source of truth
// for codec flags.
type Profile struct {
	Name      string `yaml:"name"`
	Container string `yaml:"container"`
	Codec     string `yaml:"codec"`
	PixelFmt  string `yaml:"pixel_format"`
	Bitrate   string `yaml:"bitrate"`
	CRF       int    `yaml:"crf"`
	Preset    string `yaml:"preset"`
	Faststart bool   `yaml:"faststart"`
	// MinFrameRate floors the output rate for containers that render
	// poorly at very low rates.
	MinFrameRate float64  `yaml:"min_frame_rate"`
	ExtraArgs    []string `yaml:"extra_args"`
}

const (
	// ProfileStream is the in-browser playback variant.
	ProfileStream = "stream"
	// ProfileHQ is the high-bitrate download variant.
	ProfileHQ = "hq"
	// ProfileWebM is the high-quality variant for platforms preferring
	// open containers.
	ProfileWebM = "webm"
)

// DefaultProfiles returns the built-in profile table.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		ProfileStream: {
			Name:      ProfileStream,
			Container: "mp4",
			Codec:     "libx264",
			PixelFmt:  "yuv420p",
			Bitrate:   "1M",
			Preset:    "fast",
			Faststart: true,
		},
		ProfileHQ: {
			Name:      ProfileHQ,
			Container: "mp4",
			Codec:     "libx264",
			PixelFmt:  "yuv420p",
			CRF:       18,
			Preset:    "slow",
			Faststart: true,
		},
		ProfileWebM: {
			Name:         ProfileWebM,
			Container:    "webm",
			Codec:        "libvpx-vp9",
			PixelFmt:     "yuv420p",
			CRF:          30,
			Bitrate:      "0",
			MinFrameRate: 2,
		},
	}
}

type profileFile struct {
	Profiles map[string]Profile `yaml:"profiles"`
}

// LoadProfiles returns the default table with any entries from the YAML file
// at path merged over it. An empty path returns the defaults unchanged.
func LoadProfiles(path string) (map[string]Profile, error) {
	profiles := DefaultProfiles()
	if path == "" {
		return profiles, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("encoder: read profiles: %w", err)
	}
	var file profileFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("encoder: parse profiles: %w", err)
	}
	for name, p := range file.Profiles {
		if p.Name == "" {
			p.Name = name
		}
		profiles[name] = p
	}
	return profiles, nil
}
