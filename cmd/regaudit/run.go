package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kaura24/regaudit/internal/observability"
	"github.com/kaura24/regaudit/internal/raster"
	"github.com/kaura24/regaudit/internal/types"
)

var (
	runSources []string
	runMode    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Audit a register end to end from local page images",
	Long: `Submit and execute one audit run against pre-rendered page images in a
local directory, printing the outcome. A run that needs human review prints
its escalation packet and can be finished later with 'regaudit hitl'.`,
	RunE: runAudit,
}

func init() {
	runCmd.Flags().StringSliceVar(&runSources, "source", nil, "Directory of page images (repeatable)")
	runCmd.Flags().StringVar(&runMode, "mode", string(types.ModeMultiAgent), "Execution mode: FAST or MULTI_AGENT")
	runCmd.MarkFlagRequired("source") //nolint:errcheck
	rootCmd.AddCommand(runCmd)
}

func runAudit(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	c, err := build(ctx, raster.DirRasterizer{})
	if err != nil {
		return err
	}
	defer c.close()

	sources := make([]types.SourceRef, 0, len(runSources))
	for _, dir := range runSources {
		sources = append(sources, types.SourceRef{URI: dir, Kind: "image_dir"})
	}

	run, err := c.orc.CreateRun(ctx, sources, types.ExecutionMode(runMode))
	if err != nil {
		return err
	}
	fmt.Printf("Run %s created (%s)\n", run.ID, run.Mode)

	if err := c.orc.ExecuteRun(ctx, run.ID, ""); err != nil {
		return fmt.Errorf("execution failed: %w", err)
	}

	run, err = c.repo.GetRun(ctx, run.ID)
	if err != nil {
		return err
	}
	printer := observability.NewPrinter(os.Stdout)

	if c.cfg.Verbose {
		var doc types.NormalizedDoc
		for _, stage := range []string{types.StageNormalizer, types.StageFastExtractor} {
			if err := c.repo.GetArtifactInto(ctx, run.ID, stage, types.ArtifactNormalizedDoc, &doc); err == nil {
				printer.PrintNormalizedDoc(&doc)
				break
			}
		}
		var report types.ValidationReport
		for _, stage := range []string{types.StageValidator, types.StageFastExtractor} {
			if err := c.repo.GetArtifactInto(ctx, run.ID, stage, types.ArtifactValidation, &report); err == nil {
				printer.PrintValidationReport(&report)
				break
			}
		}
	}

	switch run.Status {
	case types.StatusCompleted:
		var answer types.AnswerSet
		for _, stage := range []string{types.StageAnalyst, types.StageFastExtractor} {
			if err := c.repo.GetArtifactInto(ctx, run.ID, stage, types.ArtifactAnswerSet, &answer); err == nil {
				printer.PrintAnswerSet(&answer)
				break
			}
		}
		return nil
	case types.StatusHITL:
		packet, err := c.repo.GetPacketByRun(ctx, run.ID)
		if err != nil {
			return err
		}
		printer.PrintHITLPacket(packet)
		fmt.Printf("\nResolve with: regaudit hitl resolve %s --decision <accept|correct|reject>\n", packet.ID)
		return nil
	case types.StatusRejected:
		return fmt.Errorf("run rejected: %s", run.Error)
	default:
		return fmt.Errorf("run finished with status %s: %s", run.Status, run.Error)
	}
}
