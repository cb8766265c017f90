// Package export renders flattened config values as downloadable files.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/alfredjeanlab/envtree/internal/model"
	"github.com/alfredjeanlab/envtree/internal/resolve"
)

// Format selects the rendering of an export.
type Format string

const (
	FormatEnv         Format = "env"
	FormatJSON        Format = "json"
	FormatJSONGrouped Format = "json-grouped"
)

// Formats lists every supported format.
var Formats = []Format{FormatEnv, FormatJSON, FormatJSONGrouped}

// ParseFormat maps a user-supplied name onto a Format. The empty string
// selects env.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatEnv:
		return FormatEnv, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatJSONGrouped, "json_grouped", "jsongrouped":
		return FormatJSONGrouped, nil
	}
	return "", model.Invalid("format", fmt.Sprintf("unknown format %q", s))
}

// DefaultFilename is the file name used when the caller does not pick one.
func (f Format) DefaultFilename() string {
	if f == FormatEnv {
		return ".env"
	}
	return "secrets.json"
}

// ContentType is the HTTP media type of the rendered body.
func (f Format) ContentType() string {
	if f == FormatEnv {
		return "text/plain; charset=utf-8"
	}
	return "application/json"
}

// Render produces the export body for flat in the given format.
// Hidden values are always included.
func Render(flat resolve.FlatValues, f Format) ([]byte, error) {
	switch f {
	case FormatEnv:
		return renderEnv(flat)
	case FormatJSON:
		return renderJSON(flat)
	case FormatJSONGrouped:
		return renderJSONGrouped(flat)
	}
	return nil, model.Invalid("format", fmt.Sprintf("unknown format %q", f))
}

func renderEnv(flat resolve.FlatValues) ([]byte, error) {
	var b bytes.Buffer
	for _, key := range resolve.Keys(flat) {
		line, err := envLine(key, flat[key].Value)
		if err != nil {
			return nil, fmt.Errorf("render env %s: %w", key, err)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.Bytes(), nil
}

// envLine renders one assignment through godotenv. Null values are written
// bare. godotenv prints integers in canonical form, so digit strings it
// would alter, such as "007", are quoted verbatim instead.
func envLine(key string, v *string) (string, error) {
	if v == nil {
		return key + "=", nil
	}
	if n, err := strconv.Atoi(*v); err == nil && strconv.Itoa(n) != *v {
		return fmt.Sprintf(`%s="%s"`, key, *v), nil
	}
	return godotenv.Marshal(map[string]string{key: *v})
}

func renderJSON(flat resolve.FlatValues) ([]byte, error) {
	out := make(map[string]*string, len(flat))
	for k, v := range flat {
		out[k] = v.Value
	}
	return marshal(out)
}

// renderJSONGrouped nests grouped properties under their group name and
// leaves ungrouped ones at the top level.
func renderJSONGrouped(flat resolve.FlatValues) ([]byte, error) {
	out := make(map[string]any, len(flat))
	groups := make(map[string]map[string]*string)
	for k, v := range flat {
		if v.Group == nil || *v.Group == "" {
			out[k] = v.Value
			continue
		}
		g := groups[*v.Group]
		if g == nil {
			g = make(map[string]*string)
			groups[*v.Group] = g
		}
		g[k] = v.Value
	}
	for name, g := range groups {
		if _, clash := out[name]; clash {
			return nil, model.Invalid("group", fmt.Sprintf("group %q collides with a property of the same name", name))
		}
		out[name] = g
	}
	return marshal(out)
}

// marshal encodes v with tab indentation. Map keys are sorted by encoding/json.
func marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return append(data, '\n'), nil
}
