package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/tabwarden/internal/clock"
	"github.com/goodtune/tabwarden/internal/config"
	"github.com/goodtune/tabwarden/internal/domain"
	"github.com/goodtune/tabwarden/internal/ledger"
	"github.com/goodtune/tabwarden/internal/policy"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check URL",
	Short: "Check what would happen for a URL right now",
	Long: `Check how TabWarden would classify a URL against the stored rules and
today's usage ledger: blocked, over its daily limit, limited with budget left,
or not tracked at all.`,
	Example: `  tabwarden check https://www.youtube.com/watch?v=abc
  tabwarden -c config.yaml check twitter.com`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	rawURL := args[0]
	// Bare domains are fine as input; give them a scheme so parsing works.
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create a quiet logger for check mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	limits, err := store.Rules().GetLimits(ctx)
	if err != nil {
		return fmt.Errorf("failed to load limit rules: %w", err)
	}
	blocks, err := store.Rules().GetBlocks(ctx)
	if err != nil {
		return fmt.Errorf("failed to load block rules: %w", err)
	}
	usage, err := store.Usage().GetUsage(ctx)
	if err != nil {
		return fmt.Errorf("failed to load usage ledger: %w", err)
	}

	matcher, err := domain.NewMatcher(cfg.Tracking.DomainCacheSize)
	if err != nil {
		return err
	}
	gate, err := policy.GateByName(cfg.Tracking.Gate)
	if err != nil {
		return err
	}

	clk := clock.RealClock{}
	led := ledger.New(clk)
	led.Load(usage)

	engine := policy.NewEngine(matcher, gate, clk, logger)
	engine.SetRules(limits, blocks)

	tab := policy.TabState{TabID: 0, URL: rawURL, Active: true, WindowFocused: true}
	dec := engine.Classify(tab, led)

	printCheckResult(rawURL, dec)

	return nil
}

// printCheckResult prints the check result with colors
func printCheckResult(rawURL string, dec policy.Decision) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("TRACKING POLICY CHECK")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("URL:        %s\n", rawURL)
	if dec.Domain != "" {
		fmt.Printf("Domain:     %s\n", dec.Domain)
	}
	fmt.Println()

	cyan.Print("Decision:   ")
	switch dec.State {
	case policy.StateBlocked:
		red.Println("BLOCKED")
		fmt.Println("            → The tab would be redirected to the block page")
	case policy.StateLimitedOver:
		red.Println("LIMIT EXCEEDED")
		fmt.Printf("            → %s of %s used today\n",
			formatSeconds(dec.UsedSeconds), formatSeconds(dec.LimitSeconds))
		fmt.Println("            → The tab would be redirected to the limit page")
	case policy.StateLimitedUnder:
		yellow.Println("LIMITED")
		fmt.Printf("            → Rule: %s (%d min/day)\n", dec.Rule.Domain, dec.Rule.LimitMinutes)
		fmt.Printf("            → %s used, %s remaining today\n",
			formatSeconds(dec.UsedSeconds), formatSeconds(dec.RemainingSeconds))
	default:
		green.Println("NOT TRACKED")
		fmt.Println("            → No rule covers this domain")
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}

func formatSeconds(s int) string {
	if s < 60 {
		return fmt.Sprintf("%ds", s)
	}
	return fmt.Sprintf("%dm%02ds", s/60, s%60)
}
