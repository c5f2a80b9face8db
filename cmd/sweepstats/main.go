// sweepstats 对比两次参数扫描的结果文件（JSONL），输出整体统计与
// 逐组合的配对变化，用于判断一次策略调整是否值得上线。
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/pflag"

	"vaultpilot/sweep"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "sweepstats: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		baselinePath  string
		candidatePath string
		top           int
	)
	flags := pflag.NewFlagSet("sweepstats", pflag.ContinueOnError)
	flags.StringVar(&baselinePath, "baseline", "", "baseline sweep results (JSONL)")
	flags.StringVar(&candidatePath, "candidate", "", "candidate sweep results (JSONL)")
	flags.IntVar(&top, "top", 10, "rows in the biggest-change tables")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if baselinePath == "" || candidatePath == "" {
		return fmt.Errorf("--baseline and --candidate are required")
	}
	if top < 1 {
		return fmt.Errorf("--top must be >= 1")
	}

	baseline, err := sweep.Load(baselinePath)
	if err != nil {
		return err
	}
	candidate, err := sweep.Load(candidatePath)
	if err != nil {
		return err
	}
	fmt.Printf("Baseline:  %d results (%s)\n", len(baseline), baselinePath)
	fmt.Printf("Candidate: %d results (%s)\n", len(candidate), candidatePath)

	printOverall(sweep.Summarize(baseline), sweep.Summarize(candidate))
	printComparisons(sweep.ComparePaired(baseline, candidate), top)
	return nil
}

func printOverall(base, cand sweep.Summary) {
	banner("OVERALL PERFORMANCE")

	printSummary("BASELINE", base)
	printSummary("CANDIDATE", cand)

	fmt.Println("\nIMPROVEMENT (candidate - baseline):")
	fmt.Printf("  Vault APY: %+.2f%%\n", cand.Vault.Mean-base.Vault.Mean)
	fmt.Printf("  Hold APY:  %+.2f%%\n", cand.Hold.Mean-base.Hold.Mean)
	fmt.Printf("  Diff APY:  %+.2f%%\n", cand.Diff.Mean-base.Diff.Mean)
}

func printSummary(label string, s sweep.Summary) {
	fmt.Printf("\n%s (%d ok / %d total):\n", label, s.OK, s.Total)
	printSeries("Vault APY", s.Vault)
	printSeries("Hold APY ", s.Hold)
	printSeries("Diff APY ", s.Diff)
}

func printSeries(label string, s sweep.Series) {
	if s.Count == 0 {
		fmt.Printf("  %s: no successful runs\n", label)
		return
	}
	fmt.Printf("  %s: %.2f%% ± %.2f%% (median %.2f%%, range %.2f%% .. %.2f%%)\n",
		label, s.Mean, s.Stddev, s.Median, s.Min, s.Max)
}

func printComparisons(cmps []sweep.Comparison, top int) {
	banner("SAME COMBINATION COMPARISONS")
	fmt.Printf("\nFound %d matching combinations\n", len(cmps))
	if len(cmps) == 0 {
		return
	}

	byGain := append([]sweep.Comparison(nil), cmps...)
	sort.Slice(byGain, func(i, j int) bool { return byGain[i].VaultChange > byGain[j].VaultChange })

	fmt.Printf("\nTOP %d BIGGEST VAULT APY IMPROVEMENTS:\n", top)
	printRows(byGain, top)

	byAbs := append([]sweep.Comparison(nil), cmps...)
	sort.Slice(byAbs, func(i, j int) bool { return byAbs[i].AbsVaultChange > byAbs[j].AbsVaultChange })

	fmt.Printf("\nTOP %d BIGGEST ABSOLUTE VAULT APY CHANGES:\n", top)
	printRows(byAbs, top)

	vaultChanges := make([]float64, len(cmps))
	diffChanges := make([]float64, len(cmps))
	improved := 0
	for i, c := range cmps {
		vaultChanges[i] = c.VaultChange
		diffChanges[i] = c.DiffChange
		if c.VaultChange > 0 {
			improved++
		}
	}
	vs := sweep.Describe(vaultChanges)
	ds := sweep.Describe(diffChanges)

	fmt.Printf("\nCHANGE STATISTICS (%d matching combinations):\n", len(cmps))
	fmt.Printf("  Vault APY change: %+.2f%% ± %.2f%% (%.2f%% .. %.2f%%)\n", vs.Mean, vs.Stddev, vs.Min, vs.Max)
	fmt.Printf("  Diff APY change:  %+.2f%% ± %.2f%% (%.2f%% .. %.2f%%)\n", ds.Mean, ds.Stddev, ds.Min, ds.Max)
	fmt.Printf("  Improved vault APY: %d/%d (%.1f%%)\n", improved, len(cmps), 100*float64(improved)/float64(len(cmps)))
}

func printRows(cmps []sweep.Comparison, top int) {
	if top > len(cmps) {
		top = len(cmps)
	}
	for i := 0; i < top; i++ {
		c := cmps[i]
		fmt.Printf("%3d. %s\n", i+1, c.Key)
		fmt.Printf("     Vault APY: %.2f%% -> %.2f%% (%+.2f%%)\n", c.Baseline.Vault, c.Candidate.Vault, c.VaultChange)
		fmt.Printf("     Diff APY:  %.2f%% -> %.2f%% (%+.2f%%)\n", c.Baseline.Diff, c.Candidate.Diff, c.DiffChange)
		fmt.Printf("     Charm: wide=%g base=%g | DLV: above=%g below=%g\n",
			c.Charm.WideThreshold, c.Charm.BaseThreshold,
			c.DLV.DeviationThresholdAbove, c.DLV.DeviationThresholdBelow)
	}
}

func banner(title string) {
	fmt.Println()
	fmt.Println("============================================================")
	fmt.Println(title)
	fmt.Println("============================================================")
}
