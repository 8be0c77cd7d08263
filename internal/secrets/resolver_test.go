package secrets

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/bank-scrapers/pkg/model"
	pkgsecrets "github.com/Checker-Finance/bank-scrapers/pkg/secrets"
)

type fakeProvider struct {
	secrets map[string]map[string]string
	gets    int
	listErr error
}

func (f *fakeProvider) GetSecret(_ context.Context, key string) (map[string]string, error) {
	f.gets++
	s, ok := f.secrets[key]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return s, nil
}

func (f *fakeProvider) ListSecrets(_ context.Context, prefix string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []string
	for k := range f.secrets {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func newResolver(p pkgsecrets.Provider) *AccountResolver {
	return NewAccountResolver(zap.NewNop(), "dev", p, pkgsecrets.NewCache[model.Credentials](time.Minute))
}

func TestResolve_FetchesThenCaches(t *testing.T) {
	p := &fakeProvider{secrets: map[string]map[string]string{
		"dev/family/onezero": {
			"email":            "a@b.c",
			"password":         "pw",
			"phoneNumber":      "+972501234567",
			"otpLongTermToken": "tok",
		},
	}}
	r := newResolver(p)

	creds, err := r.Resolve(context.Background(), model.CompanyOneZero, "Family")
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", creds.Email)
	assert.Equal(t, "tok", creds.OTPLongTermToken)

	_, err = r.Resolve(context.Background(), model.CompanyOneZero, "family")
	require.NoError(t, err)
	assert.Equal(t, 1, p.gets)

	r.Forget(model.CompanyOneZero, "family")
	_, err = r.Resolve(context.Background(), model.CompanyOneZero, "family")
	require.NoError(t, err)
	assert.Equal(t, 2, p.gets)
}

func TestResolve_MissingSecret(t *testing.T) {
	r := newResolver(&fakeProvider{secrets: map[string]map[string]string{}})

	_, err := r.Resolve(context.Background(), model.CompanyMax, "nobody")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nobody")
}

func TestResolve_IncompleteSecretIsNotCached(t *testing.T) {
	p := &fakeProvider{secrets: map[string]map[string]string{
		"dev/main/isracard": {"id": "123", "password": "pw"},
	}}
	r := newResolver(p)

	_, err := r.Resolve(context.Background(), model.CompanyIsracard, "main")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "card6Digits")

	_, _ = r.Resolve(context.Background(), model.CompanyIsracard, "main")
	assert.Equal(t, 2, p.gets)
}

func TestSecretName(t *testing.T) {
	r := newResolver(&fakeProvider{})
	assert.Equal(t, "dev/family/onezero", r.SecretName(model.CompanyOneZero, "Family"))
}

func TestDiscoverAccounts(t *testing.T) {
	p := &fakeProvider{secrets: map[string]map[string]string{
		"dev/zeta/max":         {},
		"dev/alpha/max":        {},
		"dev/alpha/onezero":    {},
		"dev/a/b/max":          {},
		"prod/other/max":       {},
		"dev/max":              {},
		"dev/beta/hapoalim":    {},
		"dev/gamma/maxplus":    {},
		"dev/delta/isracard":   {},
		"dev/epsilon/isracard": {},
	}}
	r := newResolver(p)

	accounts, err := r.DiscoverAccounts(context.Background(), model.CompanyMax)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "zeta"}, accounts)

	accounts, err = r.DiscoverAccounts(context.Background(), model.CompanyIsracard)
	require.NoError(t, err)
	assert.Equal(t, []string{"delta", "epsilon"}, accounts)
}

func TestDiscoverAccounts_ListError(t *testing.T) {
	r := newResolver(&fakeProvider{listErr: errors.New("throttled")})
	_, err := r.DiscoverAccounts(context.Background(), model.CompanyMax)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}
