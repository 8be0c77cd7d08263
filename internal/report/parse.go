package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/bank-scrapers/pkg/model"
)

var txLabels = []string{"account number: ", "| type: ", "| id: ", "| date: ", "| amount: ", "| desc: "}

const (
	statusLabel = "| status: "
	tokenPrefix = "renewed long-term token: "
)

// Parse reads a dump written by Report back into accounts. Summary lines, token
// lines and blank lines are skipped; consecutive transactions with the same account
// number are grouped into one account.
func Parse(r io.Reader) ([]model.Account, error) {
	var accounts []model.Account
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "found ") ||
			strings.HasPrefix(line, tokenPrefix) {
			continue
		}
		acct, tx, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if n := len(accounts); n > 0 && accounts[n-1].AccountNumber == acct {
			accounts[n-1].Transactions = append(accounts[n-1].Transactions, tx)
			continue
		}
		accounts = append(accounts, model.Account{AccountNumber: acct, Transactions: []model.Transaction{tx}})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func parseLine(line string) (string, model.Transaction, error) {
	var tx model.Transaction
	if !strings.HasPrefix(line, txLabels[0]) {
		return "", tx, fmt.Errorf("unrecognised line %q", line)
	}

	// The description is free text, so status is located from the end.
	si := strings.LastIndex(line, statusLabel)
	if si < 0 {
		return "", tx, fmt.Errorf("missing status in %q", line)
	}
	tx.Status = line[si+len(statusLabel):]
	rest := line[:si]

	values := make([]string, len(txLabels))
	pos := len(txLabels[0])
	for i := 1; i < len(txLabels); i++ {
		j := strings.Index(rest[pos:], txLabels[i])
		if j < 0 {
			return "", tx, fmt.Errorf("missing %q in %q", strings.TrimSpace(txLabels[i]), line)
		}
		values[i-1] = rest[pos : pos+j]
		pos += j + len(txLabels[i])
	}
	values[len(txLabels)-1] = rest[pos:]

	amount, err := decimal.NewFromString(values[4])
	if err != nil {
		return "", tx, fmt.Errorf("amount %q: %w", values[4], err)
	}
	tx.Type = values[1]
	tx.Identifier = values[2]
	tx.Date = values[3]
	tx.ChargedAmount = amount
	tx.Description = values[5]
	return values[0], tx, nil
}
