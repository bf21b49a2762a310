// Package main derives a bytecode template from two known-genuine deployments
// and lints configured templates for unmasked PUSH32 operands.
//
// Derive a template:
//
//	generate-mask -id morpho-chainlink-oracle-v2 -chain mainnet -a 0x... -b 0x...
//
// Lint templates:
//
//	generate-mask -check [-templates templates.json]
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"

	"github.com/archon-research/stl/oracle-scanner/internal/adapters/outbound/chainreader"
	"github.com/archon-research/stl/oracle-scanner/internal/domain/entity"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/blockchain"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/bytecode"
	"github.com/archon-research/stl/oracle-scanner/internal/pkg/env"
	"github.com/archon-research/stl/oracle-scanner/internal/ports/outbound"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

type cliConfig struct {
	check         bool
	templatesPath string

	id        string
	chainID   entity.ChainID
	a, b      common.Address
	normalize bool
	fill      byte
	source    string
}

func parseFlags(args []string) (cliConfig, error) {
	fs := flag.NewFlagSet("generate-mask", flag.ContinueOnError)
	check := fs.Bool("check", false, "Lint templates for unmasked PUSH32 operands instead of deriving one")
	templatesPath := fs.String("templates", "", "Template JSON file to lint (default: embedded templates)")
	id := fs.String("id", "", "Template ID")
	chain := fs.String("chain", "mainnet", "Chain name or ID the deployments live on")
	a := fs.String("a", "", "First genuine deployment")
	b := fs.String("b", "", "Second genuine deployment")
	normalize := fs.Bool("normalize", false, "Strip the metadata trailer and zero PUSH32 operands before diffing")
	fill := fs.String("fill", "", "Fill byte for masked offsets, as two hex digits (default: 00)")
	source := fs.String("source", "", "Free-form provenance note stored with the template")
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	cfg := cliConfig{
		check:         *check,
		templatesPath: *templatesPath,
		id:            *id,
		normalize:     *normalize,
		source:        *source,
	}
	if cfg.check {
		return cfg, nil
	}

	if cfg.id == "" {
		return cliConfig{}, fmt.Errorf("template ID not provided (use -id flag)")
	}
	chainID, err := entity.ParseChainID(*chain)
	if err != nil {
		return cliConfig{}, fmt.Errorf("invalid -chain: %w", err)
	}
	cfg.chainID = chainID

	for _, p := range []struct {
		flag  string
		value string
		dst   *common.Address
	}{{"a", *a, &cfg.a}, {"b", *b, &cfg.b}} {
		if !common.IsHexAddress(p.value) {
			return cliConfig{}, fmt.Errorf("-%s must be a hex address, got %q", p.flag, p.value)
		}
		*p.dst = common.HexToAddress(p.value)
	}
	if cfg.a == cfg.b {
		return cliConfig{}, fmt.Errorf("-a and -b must be different deployments")
	}

	if *fill != "" {
		raw, err := hex.DecodeString(*fill)
		if err != nil || len(raw) != 1 {
			return cliConfig{}, fmt.Errorf("-fill must be one hex byte, got %q", *fill)
		}
		cfg.fill = raw[0]
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := parseFlags(args)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: env.ParseLogLevel(slog.LevelInfo),
	}))

	if cfg.check {
		templates, err := loadTemplates(cfg.templatesPath)
		if err != nil {
			return err
		}
		return checkTemplates(templates, out)
	}

	network, ok := blockchain.GetNetworkConfig(cfg.chainID)
	if !ok {
		return fmt.Errorf("no network configuration for chain %s", cfg.chainID)
	}
	client, err := ethclient.DialContext(ctx, network.RPCURL())
	if err != nil {
		return fmt.Errorf("connecting to %s RPC: %w", cfg.chainID, err)
	}
	defer client.Close()

	logger.Info("deriving template", "id", cfg.id, "chain", cfg.chainID, "a", cfg.a.Hex(), "b", cfg.b.Hex())
	encoded, err := deriveTemplate(ctx, chainreader.NewReader(client), cfg)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(encoded))
	return err
}

// deriveTemplate reads both deployments and returns the JSON template entry.
func deriveTemplate(ctx context.Context, code outbound.CodeReader, cfg cliConfig) ([]byte, error) {
	read := func(addr common.Address) (string, error) {
		raw, err := code.CodeAt(ctx, addr)
		if err != nil {
			return "", fmt.Errorf("reading code of %s: %w", addr.Hex(), err)
		}
		if len(raw) == 0 {
			return "", fmt.Errorf("%s has no code", addr.Hex())
		}
		s := "0x" + hex.EncodeToString(raw)
		if cfg.normalize {
			s = bytecode.Normalize(s)
		}
		return s, nil
	}

	a, err := read(cfg.a)
	if err != nil {
		return nil, err
	}
	b, err := read(cfg.b)
	if err != nil {
		return nil, err
	}

	mask, err := bytecode.DeriveMask(a, b)
	if err != nil {
		return nil, fmt.Errorf("deriving mask: %w", err)
	}
	if cfg.fill != 0 {
		mask.Fill = cfg.fill
		mask.Common = mask.Apply(a)
	}

	source := cfg.source
	if source == "" {
		source = fmt.Sprintf("%s %s %s", cfg.chainID, cfg.a.Hex(), cfg.b.Hex())
	}
	return bytecode.MarshalTemplate(bytecode.Template{
		ID:        cfg.id,
		Mask:      mask,
		Normalize: cfg.normalize,
	}, source)
}

// checkTemplates reports every template whose common bytecode still carries an
// unmasked PUSH32 operand. Normalized templates are skipped since
// normalization zeroes those operands before matching.
func checkTemplates(templates *bytecode.TemplateSet, out io.Writer) error {
	problems := 0
	for _, id := range templates.Configured() {
		t, _ := templates.Get(id)
		if !t.Mask.IsSet() {
			fmt.Fprintf(out, "%s: not configured\n", id)
			continue
		}
		if t.Normalize {
			fmt.Fprintf(out, "%s: normalized, skipped\n", id)
			continue
		}
		findings := bytecode.UnmaskedPush32(t.Mask)
		if len(findings) == 0 {
			fmt.Fprintf(out, "%s: ok (%d masked offsets)\n", id, len(t.Mask.Offsets))
			continue
		}
		problems += len(findings)
		for _, f := range findings {
			kind := "unmasked"
			if f.Partial {
				kind = "partially masked"
			}
			fmt.Fprintf(out, "%s: %s PUSH32 at offset %d: %s\n", id, kind, f.Offset, f.Operand)
		}
	}
	if problems > 0 {
		return fmt.Errorf("%d PUSH32 operands not covered by their template mask", problems)
	}
	return nil
}

func loadTemplates(path string) (*bytecode.TemplateSet, error) {
	if path == "" {
		return bytecode.DefaultTemplates()
	}
	return bytecode.LoadTemplateFile(path)
}
