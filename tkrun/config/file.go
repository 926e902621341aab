// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// decodeFile decodes the config file at path into c. Settings absent from
// the file are left untouched.
func decodeFile(path string, c *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	switch ext := filepath.Ext(path); ext {
	case ".toml":
		md, err := toml.Decode(string(data), c)
		if err != nil {
			return fmt.Errorf("parsing %q: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown settings in %q: %v", path, undecoded)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil {
			return fmt.Errorf("parsing %q: %w", path, err)
		}
	default:
		return fmt.Errorf("config file %q: unknown extension %q, must be .toml, .yaml or .yml", path, ext)
	}
	return nil
}

// mergeFile returns a copy of c with the settings in the file at path
// applied, except for the flags named in explicit.
func (c *Config) mergeFile(path string, explicit map[string]bool) (*Config, error) {
	merged := c.Clone()
	if err := decodeFile(path, merged); err != nil {
		return nil, err
	}

	src := reflect.ValueOf(c).Elem()
	dst := reflect.ValueOf(merged).Elem()
	st := src.Type()
	for i := 0; i < st.NumField(); i++ {
		name, ok := st.Field(i).Tag.Lookup("flag")
		if ok && explicit[name] {
			dst.Field(i).Set(src.Field(i))
		}
	}
	merged.ConfigFile = c.ConfigFile
	return merged, nil
}
