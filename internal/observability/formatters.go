package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/kaura24/regaudit/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintAssessment outputs the gatekeeper classification verdict.
func (p *Printer) PrintAssessment(a *types.Assessment) {
	if a == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Register:    %t\n", a.IsRegister))
	sb.WriteString(fmt.Sprintf("Type:        %s\n", a.DocumentType))
	sb.WriteString(fmt.Sprintf("Confidence:  %.2f\n", a.Confidence))
	if a.Rationale != "" {
		sb.WriteString("\n")
		sb.WriteString(a.Rationale)
	}

	p.printBox("DOCUMENT ASSESSMENT", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintNormalizedDoc outputs a human-readable summary of the normalized
// register.
func (p *Printer) PrintNormalizedDoc(doc *types.NormalizedDoc) {
	if doc == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Company:  %s\n", doc.Properties.CompanyName))
	if doc.Properties.RegistrationNumber != "" {
		sb.WriteString(fmt.Sprintf("Reg. No:  %s\n", doc.Properties.RegistrationNumber))
	}
	sb.WriteString(fmt.Sprintf("Date:     %s\n", doc.Properties.DocumentDate))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("Shareholders (%d):\n", len(doc.Shareholders)))
	count := min(len(doc.Shareholders), maxItemsToShow)
	for i := 0; i < count; i++ {
		s := doc.Shareholders[i]
		name := s.Name
		if len(name) > 28 {
			name = name[:25] + "..."
		}
		sb.WriteString(fmt.Sprintf("  • %s", name))
		if s.Ratio != nil {
			sb.WriteString(fmt.Sprintf("  %.2f%%", *s.Ratio))
		}
		if s.SuspectName {
			sb.WriteString("  [suspect name]")
		}
		sb.WriteString("\n")
	}
	if len(doc.Shareholders) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(doc.Shareholders)-maxItemsToShow))
	}

	p.printBox("NORMALIZED REGISTER", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintValidationReport outputs the rule-engine findings.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintValidationReport(report *types.ValidationReport) {
	if report == nil {
		return
	}
	if len(report.Triggers) == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "✅ NO FINDINGS")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Status: %s  (%d blockers, %d warnings)\n", report.Status, report.BlockerCount, report.WarningCount))
	sb.WriteString(fmt.Sprintf("Quality score: %.1f\n\n", report.QualityScore))

	for i, t := range report.Triggers {
		marker := "⚠"
		if t.Severity == types.SeverityBlocker {
			marker = "✗"
		}
		msg := t.Message
		if len(msg) > 45 {
			msg = msg[:42] + "..."
		}
		sb.WriteString(fmt.Sprintf("%s %s [%s]\n", marker, t.RuleID, t.Severity))
		sb.WriteString(fmt.Sprintf("  %s\n", msg))
		if i < len(report.Triggers)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("VALIDATION REPORT", sb.String())
}

// PrintAnswerSet outputs the final compliance report.
func (p *Printer) PrintAnswerSet(answer *types.AnswerSet) {
	if answer == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Company:  %s\n", answer.CompanyName))
	sb.WriteString(fmt.Sprintf("Date:     %s\n", answer.DocumentDate))
	sb.WriteString(fmt.Sprintf("Verdict:  %s\n", answer.Verdict))
	sb.WriteString("\n")

	if answer.PrincipalOwner != nil {
		sb.WriteString(fmt.Sprintf("Principal owner: %s", answer.PrincipalOwner.Name))
		if answer.PrincipalOwner.Ratio != nil {
			sb.WriteString(fmt.Sprintf(" (%.2f%%)", *answer.PrincipalOwner.Ratio))
		}
		sb.WriteString("\n")
	}

	if len(answer.BeneficialOwners) > 0 {
		sb.WriteString(fmt.Sprintf("Beneficial owners (%d):\n", len(answer.BeneficialOwners)))
		count := min(len(answer.BeneficialOwners), maxItemsToShow)
		for i := 0; i < count; i++ {
			o := answer.BeneficialOwners[i]
			sb.WriteString(fmt.Sprintf("  • %s", o.Name))
			if o.Ratio != nil {
				sb.WriteString(fmt.Sprintf("  %.2f%%", *o.Ratio))
			}
			if o.FallbackHighest {
				sb.WriteString("  [highest holder, below threshold]")
			}
			sb.WriteString("\n")
		}
		if len(answer.BeneficialOwners) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(answer.BeneficialOwners)-maxItemsToShow))
		}
	}

	if len(answer.Caveats) > 0 {
		sb.WriteString("\nCaveats:\n")
		count := min(len(answer.Caveats), 3)
		for i := 0; i < count; i++ {
			caveat := answer.Caveats[i]
			if len(caveat) > 50 {
				caveat = caveat[:47] + "..."
			}
			sb.WriteString(fmt.Sprintf("  • %s\n", caveat))
		}
		if len(answer.Caveats) > 3 {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(answer.Caveats)-3))
		}
	}

	p.printBox("COMPLIANCE ANSWER SET", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintHITLPacket outputs an escalation packet for the reviewer.
func (p *Printer) PrintHITLPacket(packet *types.HITLPacket) {
	if packet == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Packet:  %s\n", packet.ID))
	sb.WriteString(fmt.Sprintf("Run:     %s\n", packet.RunID))
	sb.WriteString(fmt.Sprintf("Stage:   %s\n", packet.Stage))
	sb.WriteString(fmt.Sprintf("Action:  %s\n", packet.RequiredAction))
	sb.WriteString("\nReason codes:\n")
	for _, code := range packet.ReasonCodes {
		sb.WriteString(fmt.Sprintf("  • %s\n", code))
	}
	if packet.Resolved() {
		sb.WriteString(fmt.Sprintf("\nResolved: %s by %s\n", packet.Resolution.Decision, packet.Resolution.ResolvedBy))
	}

	p.printBox("HUMAN REVIEW REQUIRED", strings.TrimSuffix(sb.String(), "\n"))
}
