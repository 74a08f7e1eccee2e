package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var banksCmd = &cobra.Command{
	Use:   "banks",
	Short: "List the known banks with tiers and learned stats",
	Long: `List every bank the registry knows, including overlays loaded from
BANKS_YAML / BANKS_XLSX, with recognition tier, success count, and match
patterns.

Examples:
  bankctl banks
  BANKS_YAML=./banks.yaml bankctl banks`,
	Args: cobra.NoArgs,
	RunE: withApp(runBanks),
}

var correctCmd = &cobra.Command{
	Use:   "correct <text>",
	Short: "Resolve raw bank-name text to its canonical name",
	Long: `Run the bank-name corrector over raw text the way an extraction would.

Examples:
  bankctl correct "gtb"
  bankctl correct "opay digital services ltd"`,
	Args: cobra.MinimumNArgs(1),
	RunE: withApp(runCorrect),
}

func runBanks(_ context.Context, a *app, _ []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BANK\tTIER\tSUCCESS\tPATTERNS")
	for _, p := range a.registry.Patterns() {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			p.CanonicalName, p.Tier.String(), p.SuccessCount, strings.Join(p.MatchPatterns, ", "))
	}
	return w.Flush()
}

func runCorrect(_ context.Context, a *app, args []string) error {
	raw := strings.Join(args, " ")
	canonical, matched := a.corrector.Correct(raw)
	if !matched {
		return fmt.Errorf("no bank matches %q", raw)
	}
	fmt.Println(canonical)
	return nil
}
