package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# State Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	if r.Deployment != "" {
		sb.WriteString(fmt.Sprintf("Deployment: %s\n\n", r.Deployment))
	}
	sb.WriteString(fmt.Sprintf("Entities: %d | Digest: `%s`\n\n", r.Entities, r.Digest))

	// Run
	if run := r.Run; run != nil {
		sb.WriteString("## Run\n\n")
		sb.WriteString("| Metric | Value |\n")
		sb.WriteString("|--------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Events | %d |\n", run.Events))
		sb.WriteString(fmt.Sprintf("| Processed | %d |\n", run.Processed))
		sb.WriteString(fmt.Sprintf("| Duplicates | %d |\n", run.Duplicates))
		sb.WriteString(fmt.Sprintf("| Anomalies | %d |\n", run.Anomalies))
		sb.WriteString(fmt.Sprintf("| Failed | %d |\n", run.Failed))
		sb.WriteString(fmt.Sprintf("| Last Block | %d |\n", run.LastBlock))
		sb.WriteString("\n")
	}

	// Totals
	sb.WriteString("## Trading Stats\n\n")
	if t := r.Totals; t != nil {
		sb.WriteString("| Metric | USD |\n")
		sb.WriteString("|--------|-----|\n")
		sb.WriteString(fmt.Sprintf("| Long OI | %s |\n", t.LongOpenInterest))
		sb.WriteString(fmt.Sprintf("| Short OI | %s |\n", t.ShortOpenInterest))
		sb.WriteString(fmt.Sprintf("| Profit | %s |\n", t.ProfitCumulative))
		sb.WriteString(fmt.Sprintf("| Loss | %s |\n", t.LossCumulative))
		sb.WriteString(fmt.Sprintf("| Liquidated Collateral | %s |\n", t.LiquidatedCollateralCumulative))
	} else {
		sb.WriteString("No trading stats available.\n")
	}
	sb.WriteString("\n")

	if len(r.Periods) > 0 {
		sb.WriteString("### Periodic\n\n")
		sb.WriteString("| Period | Start | Long OI | Short OI | Profit | Loss | Liquidated |\n")
		sb.WriteString("|--------|-------|---------|----------|--------|------|------------|\n")
		for _, p := range r.Periods {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %s | %s | %s |\n",
				p.Period, p.Timestamp, p.LongOpenInterest, p.ShortOpenInterest,
				p.Profit, p.Loss, p.LiquidatedCollateral))
		}
		sb.WriteString("\n")
	}

	// Open interest
	sb.WriteString("## Open Interest by Token\n\n")
	if len(r.OpenInterest) > 0 {
		sb.WriteString("| Token | Long | Short |\n")
		sb.WriteString("|-------|------|-------|\n")
		for _, oi := range r.OpenInterest {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n", oi.Token, oi.Long, oi.Short))
		}
	} else {
		sb.WriteString("No open interest recorded.\n")
	}
	sb.WriteString("\n")

	// Orders
	sb.WriteString("## Orders\n\n")
	if len(r.Orders) > 0 {
		sb.WriteString("| Kind | Open | Cancelled | Executed |\n")
		sb.WriteString("|------|------|-----------|----------|\n")
		for _, o := range r.Orders {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d |\n", o.Kind, o.Open, o.Cancelled, o.Executed))
		}
	} else {
		sb.WriteString("No orders recorded.\n")
	}
	sb.WriteString("\n")

	// Supply
	if len(r.Supply) > 0 {
		sb.WriteString("## Supply\n\n")
		sb.WriteString("| Token | Supply | Minted | Burned | Transfers |\n")
		sb.WriteString("|-------|--------|--------|--------|-----------|\n")
		for _, s := range r.Supply {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %d |\n",
				s.Token, s.Supply, s.MintedCumulative, s.BurnedCumulative, s.TransferCount))
		}
		sb.WriteString("\n")
	}

	// Prices
	if len(r.LastPrices) > 0 {
		sb.WriteString("## Last Prices\n\n")
		sb.WriteString("| Feed | Token | USD | Block | Timestamp |\n")
		sb.WriteString("|------|-------|-----|-------|-----------|\n")
		for _, p := range r.LastPrices {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %d |\n",
				p.Feed, p.Token, p.USD, p.BlockNumber, p.Timestamp))
		}
		sb.WriteString("\n")
	}

	// Verification
	if v := r.Verification; v != nil {
		sb.WriteString("## Verification\n\n")
		if v.Match {
			sb.WriteString("**Replay is deterministic.** Redelivered events had no effect.\n\n")
		} else {
			sb.WriteString(fmt.Sprintf("**State diverged.** Redelivered digest: `%s`\n\n", v.RedeliveredDigest))
			for _, id := range v.Divergent {
				sb.WriteString(fmt.Sprintf("- %s\n", id))
			}
			sb.WriteString("\n")
		}
		if len(v.ConflictingEvents) > 0 {
			sb.WriteString("### Conflicting Events\n\n")
			for _, id := range v.ConflictingEvents {
				sb.WriteString(fmt.Sprintf("- %s\n", id))
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}
