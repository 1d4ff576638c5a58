package genesis

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"agrichain/crypto"
)

// Spec is the genesis file: a set of initial balances.
//
//	alloc:
//	  agri1...: "1000000"
//	  0x01...: 2500
type Spec struct {
	Alloc map[string]string `yaml:"alloc"`

	balances []Allocation
}

// Allocation is one decoded genesis credit.
type Allocation struct {
	Holder [20]byte
	Amount uint64
}

// LoadSpec reads and validates a YAML genesis file.
func LoadSpec(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseSpec decodes and validates a YAML genesis document.
func ParseSpec(raw []byte) (*Spec, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

func (s *Spec) validate() error {
	seen := make(map[[20]byte]string, len(s.Alloc))
	balances := make([]Allocation, 0, len(s.Alloc))
	for raw, value := range s.Alloc {
		holder, err := crypto.ParseIdentity(raw)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", raw, err)
		}
		if prior, ok := seen[holder]; ok {
			return fmt.Errorf("alloc %q duplicates %q", raw, prior)
		}
		seen[holder] = raw
		amount, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return fmt.Errorf("alloc %q: invalid amount %q", raw, value)
		}
		balances = append(balances, Allocation{Holder: holder, Amount: amount})
	}
	sort.Slice(balances, func(i, j int) bool {
		return bytes.Compare(balances[i].Holder[:], balances[j].Holder[:]) < 0
	})
	s.balances = balances
	return nil
}

// Allocations returns the validated credits sorted by holder.
func (s *Spec) Allocations() []Allocation {
	if s == nil {
		return nil
	}
	return append([]Allocation(nil), s.balances...)
}
