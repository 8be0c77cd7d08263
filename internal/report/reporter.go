package report

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/bank-scrapers/pkg/model"
)

// Reporter writes the line-oriented transaction dump. Accounts and
// transactions are printed in the order received.
type Reporter struct {
	out io.Writer
}

func NewReporter(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

// Report prints one summary line per account followed by its transactions.
func (r *Reporter) Report(result *model.ScrapeResult) error {
	if result == nil {
		return nil
	}
	for _, acct := range result.Accounts {
		if _, err := fmt.Fprintf(r.out, "found %d transactions for account number %s\n",
			len(acct.Transactions), acct.AccountNumber); err != nil {
			return err
		}
		for _, tx := range acct.Transactions {
			if _, err := fmt.Fprintf(r.out,
				"account number: %s| type: %s| id: %s| date: %s| amount: %s| desc: %s| status: %s\n",
				acct.AccountNumber, tx.Type, tx.Identifier, tx.Date,
				FormatAmount(tx.ChargedAmount), tx.Description, tx.Status); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReportToken prints a renewed long-term token for the operator to keep.
func (r *Reporter) ReportToken(token string) error {
	_, err := fmt.Fprintln(r.out, tokenPrefix+token)
	return err
}

// FormatAmount keeps the precision the engine sent, so -42.50 stays -42.50.
func FormatAmount(d decimal.Decimal) string {
	places := -d.Exponent()
	if places < 0 {
		places = 0
	}
	return d.StringFixed(places)
}
