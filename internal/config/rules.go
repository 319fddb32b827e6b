package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// RulesFile is a YAML file carrying cleaner rule lines:
//
//	preserve:
//	  - "bin/* lib/**"
//	  - README
//
// Each entry is one whitespace separated rule line.
type RulesFile struct {
	Preserve []string `yaml:"preserve" json:"preserve"`
	Remove   []string `yaml:"remove" json:"remove"`
}

// LoadRules reads a rules file. An empty file yields no rules.
func LoadRules(path string) (*RulesFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open rules file: %v", ErrInvalid, err)
	}
	defer f.Close()

	return decodeRules(f)
}

func decodeRules(r io.Reader) (*RulesFile, error) {
	rf := &RulesFile{}
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(rf); err != nil {
		if errors.Is(err, io.EOF) {
			return rf, nil
		}
		return nil, fmt.Errorf("%w: decode rules yaml: %v", ErrInvalid, err)
	}
	return rf, nil
}
