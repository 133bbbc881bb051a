package allowlist

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"betIndexer/internal/codec"
	"betIndexer/internal/model"
)

// File reads contracts from a YAML document:
//
//	contracts:
//	  - address: 0x04f1...
//	    active: true
//
// Entries without an active field are active.
type File struct {
	Path string
}

type fileDoc struct {
	Contracts []struct {
		Address string `yaml:"address"`
		Active  *bool  `yaml:"active"`
	} `yaml:"contracts"`
}

func (f File) Load(_ context.Context) ([]model.TrackedContract, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read allowlist file: %w", err)
	}

	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse allowlist file: %w", err)
	}

	out := make([]model.TrackedContract, 0, len(doc.Contracts))
	for i, entry := range doc.Contracts {
		addr, err := codec.ParseFelt(entry.Address)
		if err != nil {
			return nil, fmt.Errorf("contracts[%d]: invalid address %q: %w", i, entry.Address, err)
		}
		active := entry.Active == nil || *entry.Active
		out = append(out, model.TrackedContract{Address: addr, Active: active})
	}
	return out, nil
}
