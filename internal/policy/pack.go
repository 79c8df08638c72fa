package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Pack is a shareable bundle of blacklist phrases, optionally raising the
// minimum security level.
type Pack struct {
	Name           string   `yaml:"name"`
	Description    string   `yaml:"description"`
	PackVersion    string   `yaml:"version"`
	Author         string   `yaml:"author"`
	MinLevel       string   `yaml:"min_security_level"`
	Blacklist      []string `yaml:"blacklist"`
	TrustedSources []string `yaml:"trusted_sources"`
}

// PackInfo is a summary of a pack for listing.
type PackInfo struct {
	Name        string
	Description string
	Version     string
	Author      string
	Enabled     bool
	Path        string
	EntryCount  int
	Err         error
}

// LoadPacks reads all .yaml files from packsDir and merges them into base.
// Blacklist entries and trusted sources are unioned in file order. The most
// restrictive level wins. Files whose name starts with "_" are listed but
// not applied.
func LoadPacks(packsDir string, base ShieldConfig) (ShieldConfig, []PackInfo, error) {
	var infos []PackInfo

	entries, err := os.ReadDir(packsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil, nil
		}
		return base, nil, err
	}

	result := base.Clone()

	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}

		path := filepath.Join(packsDir, entry.Name())
		baseName := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		enabled := !strings.HasPrefix(baseName, "_")

		pack, err := loadPack(path)
		if err != nil {
			infos = append(infos, PackInfo{Name: baseName, Enabled: enabled, Path: path, Err: err})
			continue
		}

		info := PackInfo{
			Name:        pack.Name,
			Description: pack.Description,
			Version:     pack.PackVersion,
			Author:      pack.Author,
			Enabled:     enabled,
			Path:        path,
			EntryCount:  len(pack.Blacklist),
		}
		if info.Name == "" {
			info.Name = baseName
		}
		infos = append(infos, info)

		if enabled {
			mergePackInto(&result, pack)
		}
	}

	return result, infos, nil
}

func loadPack(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse pack %s: %w", path, err)
	}
	if pack.MinLevel != "" {
		if _, err := ParseLevel(pack.MinLevel); err != nil {
			return nil, fmt.Errorf("pack %s: %w", path, err)
		}
	}
	return &pack, nil
}

func mergePackInto(target *ShieldConfig, pack *Pack) {
	target.CustomBlacklist = union(target.CustomBlacklist, pack.Blacklist)
	target.TrustedSources = union(target.TrustedSources, pack.TrustedSources)

	if pack.MinLevel != "" {
		l, _ := ParseLevel(pack.MinLevel)
		if l.restrictiveness() > target.SecurityLevel.restrictiveness() {
			target.SecurityLevel = l
		}
	}
}

func union(dst, src []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range src {
		if !seen[s] {
			dst = append(dst, s)
			seen[s] = true
		}
	}
	return dst
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
