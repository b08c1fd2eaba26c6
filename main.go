package main

import (
	"fmt"
	"os"

	"github.com/GiGurra/boa/pkg/boa"
)

type Params struct {
	File          string `descr:"Path to the transaction file, optionally prefixed with its format (simple-json:, records-json:, handelsbanken-xlsx:)" positional:"true"`
	User          int    `descr:"User id the transactions belong to" default:"1"`
	AsOf          string `descr:"Reference date for insights and proration (YYYY-MM-DD, default today)" optional:"true"`
	Output        string `descr:"Output format" alts:"table,json" strict:"true" default:"table"`
	Show          string `descr:"Which subscriptions to list" alts:"active,cancelled,all" strict:"true" default:"active"`
	Sort          string `descr:"Sort field" alts:"name,amount,monthly" strict:"true" default:"name"`
	SortDir       string `descr:"Sort direction" alts:"asc,desc" strict:"true" default:"asc"`
	Config        string `descr:"Detection rules file (default ~/.subsmart/config.yaml if present)" optional:"true"`
	DB            string `descr:"SQLite database to keep subscriptions in between runs (default: in memory)" optional:"true"`
	SuggestGroups bool   `descr:"Suggest merchant groups for sparse, similar descriptions" default:"false"`
	Prorate       string `descr:"Merchant key to compute a cancellation refund for" optional:"true"`
	CancelDate    string `descr:"Cancellation date for --prorate (default --as-of)" optional:"true"`
	Cancel        bool   `descr:"With --prorate, also mark the subscription cancelled (needs --db to persist)" default:"false"`
	Insights      bool   `descr:"Show spending insights instead of the subscription list" default:"false"`
	InitConfig    string `descr:"Write a rules file with a category override per detected merchant to this path" optional:"true"`
	Verbose       bool   `descr:"Log detection details to stderr" default:"false"`
}

func main() {
	boa.NewCmdT[Params]("subsmart").
		WithShort("Detect subscriptions from bank transactions").
		WithLong("Imports a bank export, detects recurring weekly, bi-weekly, monthly and yearly charges, " +
			"and reports costs, upcoming payments and cancellation refunds.").
		WithRunFunc(func(params *Params) {
			if err := run(params, os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}).
		Run()
}
