package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kaura24/regaudit/internal/observability"
	"github.com/kaura24/regaudit/internal/raster"
	"github.com/kaura24/regaudit/internal/types"
)

var (
	resolveDecision string
	resolvePayload  string
	resolveBy       string
	resolveNote     string
)

var hitlCmd = &cobra.Command{
	Use:   "hitl",
	Short: "Review and resume escalated runs",
}

var hitlShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print the escalation packet for a suspended run",
	Args:  cobra.ExactArgs(1),
	RunE:  runHITLShow,
}

var hitlResolveCmd = &cobra.Command{
	Use:   "resolve <packet-id>",
	Short: "Record a reviewer decision on an escalation packet",
	Args:  cobra.ExactArgs(1),
	RunE:  runHITLResolve,
}

var hitlResumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Continue a suspended run after its packet is resolved",
	Args:  cobra.ExactArgs(1),
	RunE:  runHITLResume,
}

func init() {
	hitlResolveCmd.Flags().StringVar(&resolveDecision, "decision", "", "accept, correct, or reject")
	hitlResolveCmd.Flags().StringVar(&resolvePayload, "payload", "", "Path to corrected document JSON (decision correct)")
	hitlResolveCmd.Flags().StringVar(&resolveBy, "by", "", "Reviewer identity")
	hitlResolveCmd.Flags().StringVar(&resolveNote, "note", "", "Reviewer note")
	hitlResolveCmd.MarkFlagRequired("decision") //nolint:errcheck

	hitlCmd.AddCommand(hitlShowCmd, hitlResolveCmd, hitlResumeCmd)
	rootCmd.AddCommand(hitlCmd)
}

func runHITLShow(cmd *cobra.Command, args []string) error {
	runID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid run id: %w", err)
	}
	c, err := build(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer c.close()

	packet, err := c.repo.GetPacketByRun(cmd.Context(), runID)
	if err != nil {
		return err
	}
	observability.NewPrinter(os.Stdout).PrintHITLPacket(packet)
	return nil
}

func runHITLResolve(cmd *cobra.Command, args []string) error {
	packetID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid packet id: %w", err)
	}
	c, err := build(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer c.close()

	res := types.Resolution{
		Decision:   types.ResolutionDecision(resolveDecision),
		ResolvedBy: resolveBy,
		Note:       resolveNote,
	}
	if resolvePayload != "" {
		data, err := os.ReadFile(resolvePayload)
		if err != nil {
			return fmt.Errorf("failed to read corrected payload: %w", err)
		}
		res.CorrectedPayload = data
	}

	packet, err := c.orc.ResolvePacket(cmd.Context(), packetID, res)
	if err != nil {
		return err
	}
	fmt.Printf("Packet %s resolved (%s). Resume with: regaudit hitl resume %s\n",
		packet.ID, packet.Resolution.Decision, packet.RunID)
	return nil
}

func runHITLResume(cmd *cobra.Command, args []string) error {
	runID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid run id: %w", err)
	}
	c, err := build(cmd.Context(), raster.DirRasterizer{})
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.orc.ResumeRun(cmd.Context(), runID); err != nil {
		return fmt.Errorf("resume failed: %w", err)
	}

	run, err := c.repo.GetRun(cmd.Context(), runID)
	if err != nil {
		return err
	}
	fmt.Printf("Run %s finished with status %s\n", run.ID, run.Status)

	if run.Status == types.StatusCompleted {
		printer := observability.NewPrinter(os.Stdout)
		var answer types.AnswerSet
		for _, stage := range []string{types.StageAnalyst, types.StageFastExtractor} {
			if err := c.repo.GetArtifactInto(cmd.Context(), runID, stage, types.ArtifactAnswerSet, &answer); err == nil {
				printer.PrintAnswerSet(&answer)
				break
			}
		}
	}
	return nil
}
