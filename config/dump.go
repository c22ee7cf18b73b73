// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package config

import (
	"io"
	"reflect"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Redacted replaces secret values in Settings.
const Redacted = "REDACTED"

var secretKeys = map[string]bool{
	"storage.connection_string": true,
	"loganalytics.shared_key":   true,
}

// Settings returns cfg as nested maps keyed like the config file, with
// secrets replaced by Redacted.
func (c *Config) Settings() map[string]any {
	return settings(reflect.ValueOf(*c))
}

func settings(val reflect.Value, parts ...string) map[string]any {
	out := map[string]any{}
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := keyName(f)
		key := append(append([]string(nil), parts...), tag)
		fv := val.Field(i)
		if f.Type.Kind() == reflect.Struct {
			out[tag] = settings(fv, key...)
			continue
		}
		v := fv.Interface()
		if d, ok := v.(time.Duration); ok {
			v = d.String()
		}
		if secretKeys[strings.Join(key, ".")] && !fv.IsZero() {
			v = Redacted
		}
		out[tag] = v
	}
	return out
}

// WriteYAML writes Settings to w in config file form.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c.Settings()); err != nil {
		return err
	}
	return enc.Close()
}
