package dc

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"os"
	"sort"
)

// Registry is the loaded, immutable schema: every class indexed by both
// name and wire number, plus the 32-bit hash published to clients during
// handshake so they can verify schema compatibility (§4.3).
type Registry struct {
	byName   map[string]*Class
	byNumber map[uint16]*Class
	hash     uint32
}

// ClassByName looks up a class by its declared name.
func (r *Registry) ClassByName(name string) (*Class, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// ClassByNumber looks up a class by its assigned wire number.
func (r *Registry) ClassByNumber(number uint16) (*Class, bool) {
	c, ok := r.byNumber[number]
	return c, ok
}

// Hash returns the 32-bit schema hash computed over every loaded file's
// bytes, in load order.
func (r *Registry) Hash() uint32 { return r.hash }

// Classes returns every loaded class ordered by assigned wire number, for
// documentation endpoints such as the admin catalog.
func (r *Registry) Classes() []*Class {
	out := make([]*Class, 0, len(r.byNumber))
	for _, c := range r.byNumber {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// LoadFiles reads and parses every schema file in paths, in order, assigning
// each class a stable sequential number as it is encountered and computing
// the combined hash over the concatenated file contents. A schema load
// failure is fatal for the process per §7.
func LoadFiles(paths []string) (*Registry, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("dc: no schema files provided")
	}

	reg := &Registry{
		byName:   make(map[string]*Class),
		byNumber: make(map[uint16]*Class),
	}

	hasher := crc32.NewIEEE()
	var nextNumber uint16

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("dc: reading schema file %s: %w", path, err)
		}
		if _, err := hasher.Write(data); err != nil {
			return nil, fmt.Errorf("dc: hashing schema file %s: %w", path, err)
		}

		classes, err := parseSchema(path, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		for _, class := range classes {
			if _, exists := reg.byName[class.Name]; exists {
				return nil, fmt.Errorf("dc: duplicate class %s in %s", class.Name, path)
			}
			class.Number = nextNumber
			nextNumber++
			reg.byName[class.Name] = class
			reg.byNumber[class.Number] = class
		}
	}

	reg.hash = hasher.Sum32()
	return reg, nil
}

// LoadSources parses pre-read schema sources directly, keyed by a label
// used only for error messages. Exposed primarily for tests that want to
// avoid touching the filesystem.
func LoadSources(sources map[string]string) (*Registry, error) {
	reg := &Registry{
		byName:   make(map[string]*Class),
		byNumber: make(map[uint16]*Class),
	}
	hasher := crc32.NewIEEE()
	var nextNumber uint16

	labels := make([]string, 0, len(sources))
	for label := range sources {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		src := sources[label]
		if _, err := hasher.Write([]byte(src)); err != nil {
			return nil, err
		}
		classes, err := parseSchema(label, bytes.NewReader([]byte(src)))
		if err != nil {
			return nil, err
		}
		for _, class := range classes {
			if _, exists := reg.byName[class.Name]; exists {
				return nil, fmt.Errorf("dc: duplicate class %s in %s", class.Name, label)
			}
			class.Number = nextNumber
			nextNumber++
			reg.byName[class.Name] = class
			reg.byNumber[class.Number] = class
		}
	}
	reg.hash = hasher.Sum32()
	return reg, nil
}
