package secrets

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Checker-Finance/bank-scrapers/internal/metrics"
	"github.com/Checker-Finance/bank-scrapers/pkg/model"
	pkgsecrets "github.com/Checker-Finance/bank-scrapers/pkg/secrets"
)

// AccountResolver loads bank logins from the secrets manager, one secret per
// account, caching them in memory.
//
// Secret naming convention: {env}/{account}/{company}
type AccountResolver struct {
	logger   *zap.Logger
	env      string
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[model.Credentials]
}

func NewAccountResolver(
	logger *zap.Logger,
	env string,
	provider pkgsecrets.Provider,
	cache *pkgsecrets.Cache[model.Credentials],
) *AccountResolver {
	return &AccountResolver{
		logger:   logger,
		env:      env,
		provider: provider,
		cache:    cache,
	}
}

func (r *AccountResolver) cacheKey(company model.CompanyID, account string) string {
	return strings.ToLower(fmt.Sprintf("%s|%s", account, company.Key()))
}

// SecretName builds the secrets manager key for an account.
func (r *AccountResolver) SecretName(company model.CompanyID, account string) string {
	return strings.ToLower(fmt.Sprintf("%s/%s/%s", r.env, account, company.Key()))
}

// Resolve returns validated credentials for one account.
func (r *AccountResolver) Resolve(ctx context.Context, company model.CompanyID, account string) (model.Credentials, error) {
	key := r.cacheKey(company, account)
	if creds, ok := r.cache.Get(key); ok {
		metrics.IncCacheHit("hit")
		return creds, nil
	}
	metrics.IncCacheHit("miss")

	name := r.SecretName(company, account)
	raw, err := r.provider.GetSecret(ctx, name)
	if err != nil {
		r.logger.Warn("secrets.fetch_failed",
			zap.String("key", name),
			zap.Error(err))
		return model.Credentials{}, fmt.Errorf("resolve credentials for %q: %w", account, err)
	}

	creds := model.CredentialsFromSecret(raw)
	if err := creds.Validate(company); err != nil {
		return model.Credentials{}, fmt.Errorf("secret %q: %w", name, err)
	}

	r.cache.Put(key, creds)
	r.logger.Info("secrets.credentials_resolved",
		zap.String("account", account),
		zap.String("company", string(company)))
	return creds, nil
}

// Forget drops a cached login, e.g. after the bank rejected it.
func (r *AccountResolver) Forget(company model.CompanyID, account string) {
	r.cache.Bust(r.cacheKey(company, account))
}

// DiscoverAccounts lists the account names configured for company, sorted.
// Names are taken from the middle segment of "{env}/{account}/{company}".
func (r *AccountResolver) DiscoverAccounts(ctx context.Context, company model.CompanyID) ([]string, error) {
	prefix := strings.ToLower(r.env + "/")
	suffix := "/" + company.Key()

	names, err := r.provider.ListSecrets(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("discover %s accounts: %w", company, err)
	}

	var accounts []string
	for _, name := range names {
		lower := strings.ToLower(name)
		if len(lower) <= len(prefix)+len(suffix) ||
			!strings.HasPrefix(lower, prefix) || !strings.HasSuffix(lower, suffix) {
			continue
		}
		account := lower[len(prefix) : len(lower)-len(suffix)]
		if account != "" && !strings.Contains(account, "/") {
			accounts = append(accounts, account)
		}
	}
	sort.Strings(accounts)

	r.logger.Info("secrets.accounts_discovered",
		zap.String("company", string(company)),
		zap.Int("count", len(accounts)))
	return accounts, nil
}
