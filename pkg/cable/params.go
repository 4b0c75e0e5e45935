package cable

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Params carries driver options given as key=value pairs, e.g. "vid=0x0d28"
// or "port=/dev/ttyUSB0". Keys are case-insensitive.
type Params map[string]string

// ParseParams converts "key=value" strings into Params. A bare key is stored
// with an empty value.
func ParseParams(args []string) (Params, error) {
	p := make(Params, len(args))
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		key, value, _ := strings.Cut(arg, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return nil, fmt.Errorf("cable: malformed parameter %q", arg)
		}
		p[key] = strings.TrimSpace(value)
	}
	return p, nil
}

// Has reports whether key was given.
func (p Params) Has(key string) bool {
	_, ok := p[strings.ToLower(key)]
	return ok
}

// String returns the value for key or def.
func (p Params) String(key, def string) string {
	if v, ok := p[strings.ToLower(key)]; ok && v != "" {
		return v
	}
	return def
}

// Int parses key as an integer (decimal, 0x hex or 0b binary).
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[strings.ToLower(key)]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("cable: parameter %s: %w", key, err)
	}
	return int(n), nil
}

// Uint16 parses key as a 16-bit value, used for USB identifiers.
func (p Params) Uint16(key string, def uint16) (uint16, error) {
	v, ok := p[strings.ToLower(key)]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("cable: parameter %s: %w", key, err)
	}
	return uint16(n), nil
}

// Strings returns the parameters in key=value form, sorted by key.
func (p Params) Strings() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if p[k] == "" {
			out = append(out, k)
			continue
		}
		out = append(out, k+"="+p[k])
	}
	return out
}
