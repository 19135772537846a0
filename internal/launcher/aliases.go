package launcher

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type aliasFile struct {
	Aliases map[string]Descriptor `yaml:"aliases"`
}

// ParseAliases decodes an alias table document:
//
//	aliases:
//	  calculator:
//	    command: gnome-calculator
//	  code:
//	    command: code
//	    args: ["--new-window"]
func ParseAliases(data []byte) (Table, error) {
	var f aliasFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return Table{}, nil
		}
		return nil, fmt.Errorf("decode aliases: %w", err)
	}

	t := make(Table, len(f.Aliases))
	for name, d := range f.Aliases {
		key := normalizeName(name)
		if key == "" {
			return nil, errors.New("alias with empty name")
		}
		if strings.TrimSpace(d.Command) == "" {
			return nil, fmt.Errorf("alias %q: command is required", key)
		}
		t[key] = d
	}
	return t, nil
}

// LoadAliases reads and parses the alias file at path.
func LoadAliases(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aliases %s: %w", path, err)
	}
	return ParseAliases(data)
}
