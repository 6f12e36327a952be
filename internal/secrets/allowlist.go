package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"

	"github.com/BurntSushi/toml"
)

// ErrInvalidAllowlist indicates an allowlist file could not be used.
var ErrInvalidAllowlist = errors.New("invalid allowlist")

// Allowlist excludes paths and content from detection.
//
//	[allowlist]
//	paths = ['''testdata/.*''']
//	regexes = ['''EXAMPLE[A-Z0-9]+''']
type Allowlist struct {
	Paths   []string `toml:"paths"`
	Regexes []string `toml:"regexes"`
}

// LoadAllowlist reads a TOML allowlist. A missing file yields an empty list.
func LoadAllowlist(path string) (*Allowlist, error) {
	var doc struct {
		Allowlist Allowlist `toml:"allowlist"`
	}
	if path == "" {
		return &Allowlist{}, nil
	}
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Allowlist{}, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAllowlist, path, err)
	}
	for _, p := range append(append([]string(nil), doc.Allowlist.Paths...), doc.Allowlist.Regexes...) {
		if _, err := regexp.Compile(p); err != nil {
			return nil, fmt.Errorf("%w: pattern %q in %s: %v", ErrInvalidAllowlist, p, path, err)
		}
	}
	return &doc.Allowlist, nil
}

// Merge returns the union of a and b.
func (a *Allowlist) Merge(b *Allowlist) *Allowlist {
	out := &Allowlist{}
	for _, l := range []*Allowlist{a, b} {
		if l == nil {
			continue
		}
		out.Paths = append(out.Paths, l.Paths...)
		out.Regexes = append(out.Regexes, l.Regexes...)
	}
	return out
}
