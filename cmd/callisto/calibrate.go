package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"orderdesk-hq/callisto/pkg/committee"
	"orderdesk-hq/callisto/pkg/config"
	"orderdesk-hq/callisto/pkg/security/secrets"
)

var (
	goldenFile string
	weightsOut string
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Score committee providers against a golden set and write weights",
	Long: `Calibrate runs every configured provider over a golden set of evidence
packs with known-correct mappings, scores per-provider accuracy and writes
a normalized weight vector for the committee's weighted consensus.

The golden set is a YAML list of {pack, expected} entries. Run this
offline; the engine hot-reloads the weights file when watching is on.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCalibration(cmd.Context())
	},
}

func init() {
	calibrateCmd.Flags().StringVar(&goldenFile, "golden", "golden.yaml", "golden set file")
	calibrateCmd.Flags().StringVar(&weightsOut, "out", "weights.yaml", "output weights file")
	rootCmd.AddCommand(calibrateCmd)
}

func runCalibration(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if len(cfg.Committee.Pool) == 0 {
		return fmt.Errorf("no committee providers configured")
	}

	data, err := os.ReadFile(goldenFile)
	if err != nil {
		return fmt.Errorf("failed to read golden set: %w", err)
	}
	var golden []committee.GoldenCase
	if err := yaml.Unmarshal(data, &golden); err != nil {
		return fmt.Errorf("failed to parse golden set: %w", err)
	}
	if len(golden) == 0 {
		return fmt.Errorf("golden set is empty")
	}

	secretSource := secrets.NewManager(cfg.Secrets.CacheTTL, secrets.NewEnvProvider(""))

	pool := make([]committee.Provider, 0, len(cfg.Committee.Pool))
	for _, pc := range cfg.Committee.Pool {
		p, err := committee.NewHTTPProvider(committee.ProviderConfig{
			Name:         pc.Name,
			Family:       pc.Family,
			BaseURL:      pc.BaseURL,
			Model:        pc.Model,
			APIKeySecret: pc.APIKeySecret,
			Timeout:      pc.Timeout,
		}, secretSource)
		if err != nil {
			return err
		}
		pool = append(pool, p)
	}

	// Every provider reviews every golden pack.
	results := map[string][]*committee.ProviderResult{}
	for _, p := range pool {
		for i, g := range golden {
			result, err := p.Review(ctx, g.Pack)
			if err != nil {
				fmt.Fprintf(os.Stderr, "provider %s, case %d: %v\n", p.Name(), i, err)
				results[p.Name()] = append(results[p.Name()], nil)
				continue
			}
			results[p.Name()] = append(results[p.Name()], result)
		}
	}

	weights := committee.Calibrate(pool, results, golden)

	out, err := yaml.Marshal(map[string]any{"weights": weights})
	if err != nil {
		return err
	}
	if err := os.WriteFile(weightsOut, out, 0o644); err != nil {
		return fmt.Errorf("failed to write weights file: %w", err)
	}

	fmt.Printf("calibrated %d providers over %d golden cases\n", len(pool), len(golden))
	for name, w := range weights {
		fmt.Printf("  %-24s %.3f\n", name, w)
	}
	fmt.Printf("weights written to %s\n", weightsOut)
	return nil
}
