package domain

// Cadence is the repeat interval of a recurring rule.
type Cadence string

const (
	CadenceWeekly   Cadence = "weekly"
	CadenceBiweekly Cadence = "biweekly"
	CadenceMonthly  Cadence = "monthly"
)

// Valid reports whether c is a supported cadence.
func (c Cadence) Valid() bool {
	switch c {
	case CadenceWeekly, CadenceBiweekly, CadenceMonthly:
		return true
	}
	return false
}

// Plan is the root aggregate handed to every engine function.
type Plan struct {
	Setup           Setup            `json:"setup"`
	Periods         []Period         `json:"periods"`
	IncomeRules     []Rule           `json:"incomeRules"`
	OutflowRules    []Rule           `json:"outflowRules"`
	Bills           []BillTemplate   `json:"bills"`
	PeriodOverrides []PeriodOverride `json:"periodOverrides,omitempty"`
	EventOverrides  []EventOverride  `json:"eventOverrides,omitempty"`
	Overrides       []Override       `json:"overrides,omitempty"`
	Transactions    []Transaction    `json:"transactions"`
}

// Setup holds plan-wide settings.
type Setup struct {
	SelectedPeriodID   int    `json:"selectedPeriodId"`
	AsOfDate           string `json:"asOfDate"`
	StartingBalance    Money  `json:"startingBalance"`
	ExpectedMinBalance Money  `json:"expectedMinBalance"`
	RollForwardBalance bool   `json:"rollForwardBalance"`
}

// Period is an inclusive [Start, End] budgeting window.
type Period struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// Rule is a recurring income or outflow definition.
type Rule struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Amount   Money    `json:"amount"`
	Cadence  Cadence  `json:"cadence"`
	SeedDate string   `json:"seedDate"`
	Category Category `json:"category"`
	Enabled  bool     `json:"enabled"`
}

// BillTemplate is a fixed monthly bill due on DueDay.
type BillTemplate struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Amount   Money    `json:"amount"`
	DueDay   int      `json:"dueDay"`
	Category Category `json:"category"`
	Enabled  bool     `json:"enabled"`
}

// PeriodOverride adjusts a single period.
type PeriodOverride struct {
	PeriodID        int      `json:"periodId"`
	StartingBalance *Money   `json:"startingBalance,omitempty"`
	DisabledBills   []string `json:"disabledBills,omitempty"`
}

// BillDisabled reports whether billID is switched off for the period.
func (o PeriodOverride) BillDisabled(billID string) bool {
	for _, id := range o.DisabledBills {
		if id == billID {
			return true
		}
	}
	return false
}

// EventOverride amends one generated event, addressed by its synthetic id.
type EventOverride struct {
	EventID  string  `json:"eventId"`
	Amount   *Money  `json:"amount,omitempty"`
	Disabled bool    `json:"disabled,omitempty"`
	Date     *string `json:"date,omitempty"`
}

// Override is an ad-hoc amendment for a rule or bill on a given date.
type Override struct {
	RuleID string `json:"ruleId"`
	Date   string `json:"date"`
	Amount Money  `json:"amount"`
	Label  string `json:"label,omitempty"`
}

// PeriodByID returns the period with the given id.
func (p *Plan) PeriodByID(id int) (Period, bool) {
	i := p.PeriodIndex(id)
	if i < 0 {
		return Period{}, false
	}
	return p.Periods[i], true
}

// PeriodIndex returns the position of the period in Periods, or -1.
func (p *Plan) PeriodIndex(id int) int {
	for i, period := range p.Periods {
		if period.ID == id {
			return i
		}
	}
	return -1
}

// PeriodOverrideFor returns the override registered for a period, if any.
func (p *Plan) PeriodOverrideFor(id int) (PeriodOverride, bool) {
	for _, o := range p.PeriodOverrides {
		if o.PeriodID == id {
			return o, true
		}
	}
	return PeriodOverride{}, false
}

// BillIDs returns the set of bill template ids.
func (p *Plan) BillIDs() map[string]bool {
	ids := make(map[string]bool, len(p.Bills))
	for _, b := range p.Bills {
		ids[b.ID] = true
	}
	return ids
}

// PeriodContaining returns the period whose range includes date.
// Dates are compared as YYYY-MM-DD strings, which sort chronologically.
func (p *Plan) PeriodContaining(date string) (Period, bool) {
	for _, period := range p.Periods {
		if period.Start <= date && date <= period.End {
			return period, true
		}
	}
	return Period{}, false
}
