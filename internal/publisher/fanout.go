package publisher

import (
	"context"
	"errors"
	"time"

	"github.com/Checker-Finance/bank-scrapers/pkg/model"
)

// TransactionsPublisher is implemented by every outbound transport.
type TransactionsPublisher interface {
	PublishTransactionsScraped(ctx context.Context, company model.CompanyID, accountName string, startDate time.Time, accounts []model.Account) error
}

// Fanout publishes to every transport. A failing transport does not stop the
// others; the failures are joined.
type Fanout []TransactionsPublisher

func (f Fanout) PublishTransactionsScraped(ctx context.Context, company model.CompanyID, accountName string, startDate time.Time, accounts []model.Account) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishTransactionsScraped(ctx, company, accountName, startDate, accounts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
