package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk policy document. Every field is optional; absent
// fields leave the running policy unchanged.
type File struct {
	SecurityLevel    *string  `yaml:"security_level"`
	CustomBlacklist  []string `yaml:"custom_blacklist"`
	TrustedSources   []string `yaml:"trusted_sources"`
	EntropyThreshold *float64 `yaml:"entropy_threshold"`
	MaxInputLength   *int     `yaml:"max_input_length"`
	AutoBlock        *bool    `yaml:"auto_block"`
}

// LoadFile reads a local policy file. A missing file yields an empty update.
// Unlike remote policy, an invalid security level here is an error: the
// file is under the operator's control.
func LoadFile(path string) (Update, error) {
	if path == "" {
		return Update{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Update{}, nil
		}
		return Update{}, err
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Update{}, fmt.Errorf("failed to parse policy %s: %w", path, err)
	}
	return f.toUpdate()
}

func (f File) toUpdate() (Update, error) {
	var u Update
	if f.SecurityLevel != nil {
		l, err := ParseLevel(*f.SecurityLevel)
		if err != nil {
			return Update{}, err
		}
		u.SecurityLevel = &l
	}
	if f.CustomBlacklist != nil {
		u.CustomBlacklist, u.SetBlacklist = f.CustomBlacklist, true
	}
	if f.TrustedSources != nil {
		u.TrustedSources, u.SetTrusted = f.TrustedSources, true
	}
	if f.EntropyThreshold != nil {
		if *f.EntropyThreshold <= 0 {
			return Update{}, fmt.Errorf("entropy_threshold must be positive, got %v", *f.EntropyThreshold)
		}
		u.EntropyThreshold = f.EntropyThreshold
	}
	if f.MaxInputLength != nil {
		if !ValidMaxInputLength(*f.MaxInputLength) {
			return Update{}, fmt.Errorf("max_input_length must be between 1 and %d, got %d", MaxInputLengthLimit, *f.MaxInputLength)
		}
		u.MaxInputLength = f.MaxInputLength
	}
	u.AutoBlock = f.AutoBlock
	return u, nil
}
