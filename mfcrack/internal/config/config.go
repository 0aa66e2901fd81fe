package config

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

type ValidationMode int

const (
	ValidationCrack ValidationMode = iota
	ValidationRead
	ValidationWrite
	ValidationEmulator
)

type Config struct {
	Runtime      RuntimeConfig      `yaml:"runtime"`
	Attack       AttackConfig       `yaml:"attack"`
	BruteForce   BruteForceConfig   `yaml:"bruteforce"`
	Nonce        NonceConfig        `yaml:"nonce"`
	Dictionaries DictionariesConfig `yaml:"dictionaries"`
	Write        WriteConfig        `yaml:"write"`
	Output       OutputConfig       `yaml:"output"`
	Emulator     EmulatorConfig     `yaml:"emulator"`
}

type RuntimeConfig struct {
	ReaderIndex *int `yaml:"reader_index"`
	// Layout forces the card size (mini, 1k, 2k, 4k). Empty means detect.
	Layout string `yaml:"layout"`
}

type AttackConfig struct {
	Method         string `yaml:"method"`
	Sectors        []int  `yaml:"sectors"`
	ConnectRetries int    `yaml:"connect_retries"`
	ConnectBackoff string `yaml:"connect_backoff"`
}

type BruteForceConfig struct {
	Strategy string `yaml:"strategy"`
	Budget   string `yaml:"budget"`
}

type NonceConfig struct {
	Probes int    `yaml:"probes"`
	Depth  string `yaml:"depth"`
}

type DictionariesConfig struct {
	Dir            string   `yaml:"dir"`
	MasterKeyFiles []string `yaml:"master_key_files"`
}

type WriteConfig struct {
	DumpFile string `yaml:"dump_file"`
}

type OutputConfig struct {
	DumpFile string `yaml:"dump_file"`
}

// EmulatorConfig describes the simulated card used with -emulator.
type EmulatorConfig struct {
	UID     string           `yaml:"uid"`
	Layout  string           `yaml:"layout"`
	Sectors []EmulatedSector `yaml:"sectors"`
	Blocks  []EmulatedBlock  `yaml:"blocks"`
}

type EmulatedSector struct {
	Sector *int   `yaml:"sector"`
	KeyA   string `yaml:"key_a"`
	KeyB   string `yaml:"key_b"`
}

type EmulatedBlock struct {
	Block *int   `yaml:"block"`
	Data  string `yaml:"data"`
}

func Load(path string) (*Config, error) {
	return LoadWithMode(path, ValidationCrack)
}

func LoadWithMode(path string, mode ValidationMode) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.resolvePaths(path)
	if err := cfg.ValidateWithMode(mode); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	return c.ValidateWithMode(ValidationCrack)
}

func (c *Config) ValidateWithMode(mode ValidationMode) error {
	if err := c.validateCommon(); err != nil {
		return err
	}

	switch mode {
	case ValidationCrack, ValidationRead:
		return c.validateReader()
	case ValidationWrite:
		if err := c.validateReader(); err != nil {
			return err
		}
		return c.validateWrite()
	case ValidationEmulator:
		return c.validateEmulator()
	default:
		return fmt.Errorf("unsupported validation mode: %d", mode)
	}
}

func (c *Config) validateCommon() error {
	if c.Runtime.Layout != "" {
		if _, err := ParseLayout(c.Runtime.Layout); err != nil {
			return fmt.Errorf("config.runtime.layout: %w", err)
		}
	}
	if c.Attack.ConnectRetries < 0 {
		return fmt.Errorf("config.attack.connect_retries must be >= 0")
	}
	if _, err := parseDuration(c.Attack.ConnectBackoff); err != nil {
		return fmt.Errorf("config.attack.connect_backoff: %w", err)
	}
	for _, s := range c.Attack.Sectors {
		if s < 0 || s >= mfclassic.Layout4K.Sectors {
			return fmt.Errorf("config.attack.sectors: sector %d out of range", s)
		}
	}
	if _, err := parseDuration(c.BruteForce.Budget); err != nil {
		return fmt.Errorf("config.bruteforce.budget: %w", err)
	}
	if c.Nonce.Probes < 0 {
		return fmt.Errorf("config.nonce.probes must be >= 0")
	}
	switch strings.ToLower(c.Nonce.Depth) {
	case "", "default", "quick", "deep":
	default:
		return fmt.Errorf("config.nonce.depth must be default, quick or deep")
	}
	if c.Dictionaries.Dir != "" {
		info, err := os.Stat(c.Dictionaries.Dir)
		if err != nil {
			return fmt.Errorf("config.dictionaries.dir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("config.dictionaries.dir must point to a directory")
		}
	}
	for i, p := range c.Dictionaries.MasterKeyFiles {
		if err := validateReadableFile(p, fmt.Sprintf("config.dictionaries.master_key_files[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateReader() error {
	if c.Runtime.ReaderIndex == nil {
		return fmt.Errorf("config.runtime.reader_index is required")
	}
	if *c.Runtime.ReaderIndex < 0 {
		return fmt.Errorf("config.runtime.reader_index must be >= 0")
	}
	return nil
}

func (c *Config) validateWrite() error {
	if strings.TrimSpace(c.Write.DumpFile) == "" {
		return fmt.Errorf("config.write.dump_file is required")
	}
	return validateReadableFile(c.Write.DumpFile, "config.write.dump_file")
}

func (c *Config) validateEmulator() error {
	e := c.Emulator
	if strings.TrimSpace(e.UID) == "" {
		return fmt.Errorf("config.emulator.uid is required")
	}
	uid, err := hex.DecodeString(strings.TrimSpace(e.UID))
	if err != nil || (len(uid) != 4 && len(uid) != 7) {
		return fmt.Errorf("config.emulator.uid must be 4 or 7 bytes of hex")
	}
	layout := mfclassic.Layout1K
	if e.Layout != "" {
		if layout, err = ParseLayout(e.Layout); err != nil {
			return fmt.Errorf("config.emulator.layout: %w", err)
		}
	}
	for i, s := range e.Sectors {
		field := fmt.Sprintf("config.emulator.sectors[%d]", i)
		if s.Sector == nil {
			return fmt.Errorf("%s.sector is required", field)
		}
		if !layout.ValidSector(*s.Sector) {
			return fmt.Errorf("%s.sector %d out of range for %s", field, *s.Sector, layout)
		}
		for name, v := range map[string]string{"key_a": s.KeyA, "key_b": s.KeyB} {
			if v == "" {
				continue
			}
			if _, err := mfclassic.ParseKey(v); err != nil {
				return fmt.Errorf("%s.%s: %w", field, name, err)
			}
		}
	}
	for i, b := range e.Blocks {
		field := fmt.Sprintf("config.emulator.blocks[%d]", i)
		if b.Block == nil {
			return fmt.Errorf("%s.block is required", field)
		}
		if !layout.ValidBlock(*b.Block) {
			return fmt.Errorf("%s.block %d out of range for %s", field, *b.Block, layout)
		}
		if _, err := parseBlockData(b.Data); err != nil {
			return fmt.Errorf("%s.data: %w", field, err)
		}
	}
	return nil
}

// ConnectBackoff returns the parsed backoff, or zero when unset.
func (c *Config) ConnectBackoff() time.Duration {
	d, _ := parseDuration(c.Attack.ConnectBackoff)
	return d
}

// BruteForceBudget returns the parsed budget, or zero when unset.
func (c *Config) BruteForceBudget() time.Duration {
	d, _ := parseDuration(c.BruteForce.Budget)
	return d
}

// ForcedLayout returns the configured layout, if any.
func (c *Config) ForcedLayout() mfclassic.Layout {
	l, _ := ParseLayout(c.Runtime.Layout)
	return l
}

// NewSimCard builds the emulated card from the emulator section.
func (c *Config) NewSimCard() (*mfclassic.SimCard, error) {
	if err := c.validateEmulator(); err != nil {
		return nil, err
	}
	e := c.Emulator
	uid, _ := hex.DecodeString(strings.TrimSpace(e.UID))
	layout := mfclassic.Layout1K
	if e.Layout != "" {
		layout, _ = ParseLayout(e.Layout)
	}
	sim := mfclassic.NewSimCard(uid, layout)
	for _, s := range e.Sectors {
		var a, b *mfclassic.Key
		if s.KeyA != "" {
			k := mfclassic.MustParseKey(s.KeyA)
			a = &k
		}
		if s.KeyB != "" {
			k := mfclassic.MustParseKey(s.KeyB)
			b = &k
		}
		sim.SetSectorKeys(*s.Sector, a, b)
	}
	for _, b := range e.Blocks {
		data, _ := parseBlockData(b.Data)
		sim.SetBlock(*b.Block, data)
	}
	return sim, nil
}

// ParseLayout maps mini, 1k, 2k or 4k to a Layout.
func ParseLayout(s string) (mfclassic.Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return mfclassic.Layout{}, nil
	case "mini":
		return mfclassic.LayoutMini, nil
	case "1k":
		return mfclassic.Layout1K, nil
	case "2k":
		return mfclassic.Layout2K, nil
	case "4k":
		return mfclassic.Layout4K, nil
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return mfclassic.LayoutForSectors(n)
	}
	return mfclassic.Layout{}, fmt.Errorf("unknown layout %q (want mini, 1k, 2k, 4k or a sector count)", s)
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return d, nil
}

func parseBlockData(s string) ([]byte, error) {
	data, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	if err != nil {
		return nil, err
	}
	if len(data) != mfclassic.BlockSize {
		return nil, fmt.Errorf("expected %d bytes, got %d", mfclassic.BlockSize, len(data))
	}
	return data, nil
}

func (c *Config) resolvePaths(configPath string) {
	configDir := filepath.Dir(configPath)
	c.Dictionaries.Dir = resolvePath(configDir, c.Dictionaries.Dir)
	for i, p := range c.Dictionaries.MasterKeyFiles {
		c.Dictionaries.MasterKeyFiles[i] = resolvePath(configDir, p)
	}
	c.Write.DumpFile = resolvePath(configDir, c.Write.DumpFile)
	c.Output.DumpFile = resolvePath(configDir, c.Output.DumpFile)
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}

func validateReadableFile(path string, field string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s must point to a file, got directory", field)
	}
	return nil
}
