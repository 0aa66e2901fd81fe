package config

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

// Dump is a card image as saved after a read pass and loaded for a write pass.
type Dump struct {
	UID    string      `yaml:"uid"`
	Layout string      `yaml:"layout,omitempty"`
	Keys   []DumpKeys  `yaml:"keys,omitempty"`
	Blocks []DumpBlock `yaml:"blocks"`
}

type DumpKeys struct {
	Sector int    `yaml:"sector"`
	KeyA   string `yaml:"key_a,omitempty"`
	KeyB   string `yaml:"key_b,omitempty"`
}

type DumpBlock struct {
	Block   int    `yaml:"block"`
	KeyType string `yaml:"key_type,omitempty"`
	Data    string `yaml:"data"`
}

// LoadDump reads and validates a dump file.
func LoadDump(path string) (*Dump, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dump: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var d Dump
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("parse dump yaml: %w", err)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Save writes the dump as YAML.
func (d *Dump) Save(path string) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode dump: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode dump: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

func (d *Dump) validate() error {
	if _, err := hex.DecodeString(strings.TrimSpace(d.UID)); err != nil || strings.TrimSpace(d.UID) == "" {
		return fmt.Errorf("dump.uid must be hex")
	}
	if _, err := ParseLayout(d.Layout); err != nil {
		return fmt.Errorf("dump.layout: %w", err)
	}
	for i, k := range d.Keys {
		if k.KeyA != "" {
			if _, err := mfclassic.ParseKey(k.KeyA); err != nil {
				return fmt.Errorf("dump.keys[%d].key_a: %w", i, err)
			}
		}
		if k.KeyB != "" {
			if _, err := mfclassic.ParseKey(k.KeyB); err != nil {
				return fmt.Errorf("dump.keys[%d].key_b: %w", i, err)
			}
		}
	}
	for i, b := range d.Blocks {
		if _, err := parseBlockData(b.Data); err != nil {
			return fmt.Errorf("dump.blocks[%d].data: %w", i, err)
		}
		if b.KeyType != "" {
			if _, err := mfclassic.ParseKeyType(b.KeyType); err != nil {
				return fmt.Errorf("dump.blocks[%d].key_type: %w", i, err)
			}
		}
	}
	return nil
}

// KeyPairs returns the dump's keys by sector.
func (d *Dump) KeyPairs() map[int]mfclassic.KeyPair {
	out := make(map[int]mfclassic.KeyPair, len(d.Keys))
	for _, k := range d.Keys {
		var p mfclassic.KeyPair
		if k.KeyA != "" {
			p = p.With(mfclassic.KeyA, mfclassic.MustParseKey(k.KeyA))
		}
		if k.KeyB != "" {
			p = p.With(mfclassic.KeyB, mfclassic.MustParseKey(k.KeyB))
		}
		out[k.Sector] = out[k.Sector].Merge(p)
	}
	return out
}

// BlockData is one decoded dump block.
type BlockData struct {
	Block   int
	Data    []byte
	KeyType mfclassic.KeyType
}

// BlockData decodes the dump's blocks. Key type defaults to A.
func (d *Dump) BlockData() []BlockData {
	out := make([]BlockData, 0, len(d.Blocks))
	for _, b := range d.Blocks {
		data, _ := parseBlockData(b.Data)
		kt := mfclassic.KeyA
		if b.KeyType != "" {
			kt, _ = mfclassic.ParseKeyType(b.KeyType)
		}
		out = append(out, BlockData{Block: b.Block, Data: data, KeyType: kt})
	}
	return out
}
