package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/eddyslarez/lectorNFCV2-sub000/mfcrack/internal/config"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/attack"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/bruteforce"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/keycorpus"
	"github.com/eddyslarez/lectorNFCV2-sub000/pkg/mfclassic"
)

const configFileName = "config.yaml"

func main() {
	verbose := flag.Bool("v", false, "enable debug logging")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	configFlag := flag.String("config", "", "config file (default: config.yaml next to the executable)")
	modeFlag := flag.String("mode", "crack", "crack, read or write")
	methodFlag := flag.String("method", "", "dictionary, mkf32, hardnested, nonce, bruteforce or combined (menu when omitted)")
	emulator := flag.Bool("emulator", false, "attack the card described in the emulator config section instead of a reader")
	outFlag := flag.String("out", "", "write the read dump to this YAML file (overrides output.dump_file)")
	noProgress := flag.Bool("no-progress", false, "disable the progress bar")
	flag.Parse()

	// Configure slog
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if *logFormat == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	}

	mode, err := attack.ParseMode(*modeFlag)
	if err != nil {
		log.Fatalf("invalid -mode: %v", err)
	}

	// Load config
	configPath := *configFlag
	if configPath == "" {
		configPath, err = defaultConfigPath()
		if err != nil {
			log.Fatalf("resolve config path failed: %v", err)
		}
	}
	fmt.Printf("Using config: %s\n", configPath)

	cfg, err := config.LoadWithMode(configPath, validationMode(mode, *emulator))
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	method, err := chooseMethod(*methodFlag, cfg.Attack.Method)
	if err != nil {
		log.Fatalf("invalid method: %v", err)
	}

	runCfg, err := attackConfig(cfg, mode, method)
	if err != nil {
		log.Fatalf("attack config invalid: %v", err)
	}

	corpus, err := loadCorpus(cfg)
	if err != nil {
		log.Fatalf("key dictionaries invalid: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tag, err := openTag(ctx, cfg, *emulator)
	if err != nil {
		log.Fatalf("open card failed: %v", err)
	}
	defer tag.Close()

	var bar *progress
	if !*noProgress && term.IsTerminal(int(os.Stderr.Fd())) {
		bar = newProgress()
	}
	orch := attack.New(tag, runCfg,
		attack.WithCorpus(corpus),
		attack.WithObserver(func(s attack.Status) {
			if bar != nil {
				bar.update(s)
			}
		}),
	)

	fmt.Printf("Running %s in %s mode...\n", method, mode)
	rep, runErr := orch.Run(ctx)
	if bar != nil {
		bar.finish()
	}

	printReport(os.Stdout, rep)

	if out := dumpPath(*outFlag, cfg.Output.DumpFile); out != "" && mode != attack.ModeWrite && len(rep.Blocks) > 0 {
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			log.Fatalf("create dump directory failed: %v", err)
		}
		if err := dumpFromReport(rep).Save(out); err != nil {
			log.Fatalf("save dump failed: %v", err)
		}
		fmt.Printf("Dump saved to %s\n", out)
	}

	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		fmt.Println("Attack cancelled; partial results shown above.")
		os.Exit(130)
	default:
		log.Fatalf("attack failed: %v", runErr)
	}
}

func validationMode(mode attack.Mode, emulator bool) config.ValidationMode {
	switch {
	case emulator:
		return config.ValidationEmulator
	case mode == attack.ModeWrite:
		return config.ValidationWrite
	case mode == attack.ModeRead:
		return config.ValidationRead
	}
	return config.ValidationCrack
}

// chooseMethod prefers the flag, then the config, then an interactive menu.
// Without a terminal it falls back to the combined attack.
func chooseMethod(flagValue, configValue string) (attack.Method, error) {
	if v := strings.TrimSpace(flagValue); v != "" {
		return attack.ParseMethod(v)
	}
	if v := strings.TrimSpace(configValue); v != "" {
		return attack.ParseMethod(v)
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return attack.MethodCombined, nil
	}
	items := make([]string, len(attack.Methods))
	for i, m := range attack.Methods {
		items[i] = methodLabel(m)
	}
	idx := selectMenu("Select attack method:", items)
	if idx < 0 {
		return 0, fmt.Errorf("no method selected")
	}
	return attack.Methods[idx], nil
}

func methodLabel(m attack.Method) string {
	switch m {
	case attack.MethodDictionary:
		return "dictionary  - known and generated keys"
	case attack.MethodMKF32:
		return "mkf32       - UID based key derivation"
	case attack.MethodHardnested:
		return "hardnested  - correlation attack from a known key"
	case attack.MethodNonce:
		return "nonce       - nonce sampling and analysis"
	case attack.MethodBruteForce:
		return "bruteforce  - time boxed key search"
	case attack.MethodCombined:
		return "combined    - all of the above in order"
	}
	return m.String()
}

func attackConfig(cfg *config.Config, mode attack.Mode, method attack.Method) (attack.Config, error) {
	rc := attack.Config{
		Mode:             mode,
		Method:           method,
		Sectors:          cfg.Attack.Sectors,
		ConnectRetries:   cfg.Attack.ConnectRetries,
		ConnectBackoff:   cfg.ConnectBackoff(),
		BruteForceBudget: cfg.BruteForceBudget(),
		NonceProbes:      cfg.Nonce.Probes,
	}
	if s := cfg.BruteForce.Strategy; s != "" {
		strategy, err := bruteforce.ParseStrategy(s)
		if err != nil {
			return rc, err
		}
		rc.BruteForceStrategy = strategy
	} else {
		rc.BruteForceStrategy = bruteforce.Hybrid
	}
	switch strings.ToLower(cfg.Nonce.Depth) {
	case "quick":
		rc.NonceDepth = attack.NonceQuick
	case "deep":
		rc.NonceDepth = attack.NonceDeep
	}

	if mode == attack.ModeWrite {
		dump, err := config.LoadDump(cfg.Write.DumpFile)
		if err != nil {
			return rc, err
		}
		rc.Keys = dump.KeyPairs()
		for _, b := range dump.BlockData() {
			rc.Dump = append(rc.Dump, attack.BlockData{Block: b.Block, Data: b.Data, KeyType: b.KeyType})
		}
		fmt.Printf("Loaded %d blocks and keys for %d sectors from %s\n", len(rc.Dump), len(rc.Keys), cfg.Write.DumpFile)
	}
	return rc, nil
}

// loadCorpus adds the user dictionaries and AN10922 master keys to the built-in corpus.
func loadCorpus(cfg *config.Config) (*keycorpus.Corpus, error) {
	corpus := keycorpus.New()
	if dir := cfg.Dictionaries.Dir; dir != "" {
		files, err := mfclassic.LoadAllKeyFiles(dir)
		if err != nil {
			return nil, err
		}
		var keys []mfclassic.Key
		for _, f := range files {
			slog.Debug("dictionary loaded", "file", f.Name, "keys", len(f.Keys))
			keys = append(keys, f.Keys...)
		}
		fmt.Printf("User dictionaries: %d files, %d keys\n", len(files), len(keys))
		corpus = corpus.WithUserKeys(keys)
	}
	var masters [][]byte
	for _, p := range cfg.Dictionaries.MasterKeyFiles {
		k, err := mfclassic.LoadKeyHexFile(p)
		if err != nil {
			return nil, fmt.Errorf("master key file %s: %w", p, err)
		}
		masters = append(masters, k)
	}
	if len(masters) > 0 {
		corpus = corpus.WithMasterKeys(masters)
	}
	return corpus, nil
}

func openTag(ctx context.Context, cfg *config.Config, emulator bool) (*mfclassic.Reader, error) {
	if emulator {
		sim, err := cfg.NewSimCard()
		if err != nil {
			return nil, err
		}
		fmt.Printf("Emulator card: UID %s, %s\n", strings.ToUpper(cfg.Emulator.UID), sim.Layout())
		return mfclassic.NewReader(mfclassic.StaticDialer(sim), cfg.ForcedLayout()), nil
	}

	idx := *cfg.Runtime.ReaderIndex
	readers, err := mfclassic.ListReaders()
	if err != nil {
		return nil, err
	}
	if idx >= len(readers) {
		return nil, fmt.Errorf("reader index %d out of range (%d readers)", idx, len(readers))
	}
	fmt.Printf("Using reader [%d]: %s\n", idx, readers[idx])
	fmt.Println("Waiting for card...")
	if err := mfclassic.WaitForCard(ctx, idx); err != nil {
		return nil, err
	}
	return mfclassic.NewReader(mfclassic.PCSCDialer(idx), cfg.ForcedLayout()), nil
}

func dumpPath(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func defaultConfigPath() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", err
	}
	exeConfigPath := filepath.Join(filepath.Dir(exePath), configFileName)
	if fileExists(exeConfigPath) {
		return exeConfigPath, nil
	}

	// Fallback for `go run`, where the executable is placed in a temp directory.
	cwd, err := os.Getwd()
	if err != nil {
		return exeConfigPath, nil
	}
	cwdConfigPath := filepath.Join(cwd, configFileName)
	if fileExists(cwdConfigPath) {
		return cwdConfigPath, nil
	}
	return exeConfigPath, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
