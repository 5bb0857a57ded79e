package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dvloznov/cashflow-engine/internal/anomaly"
	"github.com/dvloznov/cashflow-engine/internal/domain"
	"github.com/dvloznov/cashflow-engine/internal/engine"
	"github.com/dvloznov/cashflow-engine/internal/planstore"
	"github.com/dvloznov/cashflow-engine/internal/recurrence"
	"github.com/dvloznov/cashflow-engine/internal/subscription"
	"github.com/dvloznov/cashflow-engine/internal/timeline"
	"github.com/dvloznov/cashflow-engine/internal/variance"
)

func runEvents(ctx context.Context, inv *invocation) error {
	plan, err := inv.loadPlan(ctx)
	if err != nil {
		return err
	}
	periodID, _ := engine.Resolve(plan, inv.request())
	events := recurrence.Expand(plan, periodID)

	if inv.asJSON {
		return writeJSON(inv.stdout, map[string]interface{}{
			"periodId":   periodID,
			"events":     events,
			"amendments": recurrence.Diff(plan, periodID),
		})
	}

	tw := newTable(inv.stdout, "DATE", "ID", "LABEL", "TYPE", "CATEGORY", "AMOUNT")
	for _, ev := range events {
		row(tw, ev.Date, ev.ID, ev.Label, string(ev.Type), string(ev.Category), ev.Amount.StringFixed(2))
	}
	return tw.Flush()
}

func runTimeline(ctx context.Context, inv *invocation) error {
	plan, err := inv.loadPlan(ctx)
	if err != nil {
		return err
	}
	periodID, asOf := engine.Resolve(plan, inv.request())
	b := timeline.Builder{Plan: plan, AsOf: asOf}

	var rows []domain.TimelineRow
	switch inv.mode {
	case "actuals":
		rows = b.Actuals(periodID)
	case "projected":
		rows = b.Projected(periodID)
	case "hybrid", "":
		rows = b.Hybrid(periodID)
	default:
		return fmt.Errorf("%w: -mode must be actuals, projected or hybrid", errUsage)
	}

	if inv.asJSON {
		return writeJSON(inv.stdout, rows)
	}

	opening := b.OpeningBalance(periodID)
	fmt.Fprintf(inv.stdout, "Period %d (%s), opening balance %s\n\n", periodID, inv.mode, opening.StringFixed(2))
	tw := newTable(inv.stdout, "DATE", "LABEL", "INCOME", "OUTFLOW", "NET", "BALANCE", "")
	for _, r := range rows {
		flag := ""
		if r.Warning {
			flag = "LOW"
		}
		row(tw, r.Date, r.Label, r.Income.StringFixed(2), r.Outflow.StringFixed(2), r.Net.StringFixed(2), r.Balance.StringFixed(2), flag)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if low, ok := timeline.Lowest(rows); ok {
		fmt.Fprintf(inv.stdout, "\nLowest %s on %s, ending %s\n", low.Balance.StringFixed(2), low.Date, timeline.Ending(rows, opening).StringFixed(2))
	}
	return nil
}

func runSummary(ctx context.Context, inv *invocation) error {
	plan, err := inv.loadPlan(ctx)
	if err != nil {
		return err
	}
	periodID, asOf := engine.Resolve(plan, inv.request())
	s := variance.Summarize(plan, periodID, asOf)

	if inv.asJSON {
		return writeJSON(inv.stdout, s)
	}
	printSummary(inv.stdout, s)
	return nil
}

func printSummary(w io.Writer, s variance.Summary) {
	fmt.Fprintf(w, "Period:            %d\n", s.PeriodID)
	fmt.Fprintf(w, "Expected income:   %s\n", s.ExpectedIncome.StringFixed(2))
	fmt.Fprintf(w, "Committed bills:   %s\n", s.CommittedBills.StringFixed(2))
	fmt.Fprintf(w, "Other allocations: %s\n", s.OtherAllocations.StringFixed(2))
	fmt.Fprintf(w, "Remaining:         %s\n", s.Remaining.StringFixed(2))
	fmt.Fprintf(w, "Lowest point:      %s %s\n", s.LowestPoint.Balance.StringFixed(2), s.LowestPoint.Date)
	fmt.Fprintf(w, "Health:            %s\n", s.Health)
	fmt.Fprintf(w, "Income stability:  %s\n", s.IncomeStability)
	fmt.Fprintf(w, "Savings streak:    %d\n", s.SavingsStreak)

	if len(s.Categories) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := newTable(w, "CATEGORY", "BUDGETED", "ACTUAL", "VARIANCE", "STATUS")
	for _, c := range s.Categories {
		row(tw, string(c.Category), c.Budgeted.StringFixed(2), c.Actual.StringFixed(2), c.Variance.StringFixed(2), string(c.Status))
	}
	_ = tw.Flush()
}

func runAnomalies(ctx context.Context, inv *invocation) error {
	plan, err := inv.loadPlan(ctx)
	if err != nil {
		return err
	}
	req := inv.request()
	periodID, _ := engine.Resolve(plan, req)
	found := anomaly.Detect(plan, periodID, req.Anomaly)

	if inv.asJSON {
		return writeJSON(inv.stdout, found)
	}
	if len(found) == 0 {
		fmt.Fprintf(inv.stdout, "No anomalies in period %d.\n", periodID)
		return nil
	}

	tw := newTable(inv.stdout, "CATEGORY", "CURRENT", "AVERAGE", "RATIO", "PERIODS")
	for _, a := range found {
		row(tw, string(a.Category), a.CurrentAmount.StringFixed(2), a.AvgAmount.StringFixed(2), a.Ratio.StringFixed(2)+"x", fmt.Sprint(a.PeriodsUsed))
	}
	return tw.Flush()
}

func runSubscriptions(ctx context.Context, inv *invocation) error {
	plan, err := inv.loadPlan(ctx)
	if err != nil {
		return err
	}
	req := inv.request()
	_, asOf := engine.Resolve(plan, req)
	found := subscription.Detect(engine.History(plan.Transactions, asOf), asOf, req.Subscription)

	if inv.asJSON {
		return writeJSON(inv.stdout, found)
	}
	if len(found) == 0 {
		fmt.Fprintln(inv.stdout, "No subscriptions detected.")
		return nil
	}

	tw := newTable(inv.stdout, "MERCHANT", "FREQUENCY", "AVERAGE", "MONTHLY", "ANNUAL", "CONFIDENCE", "ACTION", "REASON")
	for _, s := range found {
		row(tw, s.MerchantKey, string(s.Frequency), s.AverageAmount.StringFixed(2), s.MonthlyCost.StringFixed(2),
			s.AnnualCost.StringFixed(2), fmt.Sprintf("%d%%", s.Confidence), string(s.Recommendation), s.Reason)
	}
	return tw.Flush()
}

func runAnalyze(ctx context.Context, inv *invocation) error {
	plan, err := inv.loadPlan(ctx)
	if err != nil {
		return err
	}
	result, err := engine.Analyze(ctx, plan, inv.request())
	if err != nil {
		return err
	}
	return writeJSON(inv.stdout, result)
}

func runValidate(ctx context.Context, inv *invocation) error {
	plan, err := inv.loadPlan(ctx)
	if errors.Is(err, planstore.ErrInvalidPlan) {
		fmt.Fprintln(inv.stdout, "Plan is invalid:")
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Fprintf(inv.stdout, "  %s\n", line)
		}
		return errors.New("validation failed")
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(inv.stdout, "Plan is valid: %d periods, %d rules, %d bills, %d transactions.\n",
		len(plan.Periods), len(plan.IncomeRules)+len(plan.OutflowRules), len(plan.Bills), len(plan.Transactions))
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, headers ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	return tw
}

func row(tw *tabwriter.Writer, cells ...string) {
	fmt.Fprintln(tw, strings.Join(cells, "\t"))
}
