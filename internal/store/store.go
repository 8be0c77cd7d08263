package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Checker-Finance/bank-scrapers/pkg/model"
)

// Store persists scraped transactions and per-account sync checkpoints.
type Store interface {
	SaveTransactions(ctx context.Context, company model.CompanyID, accountName string, accounts []model.Account) (int, error)
	SetCheckpoint(ctx context.Context, cp model.SyncCheckpoint) error
	GetCheckpoint(ctx context.Context, company model.CompanyID, accountName string) (*model.SyncCheckpoint, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// HybridStore keeps checkpoints in Redis and transactions in Postgres. Either
// side may be absent; writes to a missing backend are no-ops.
type HybridStore struct {
	redis  *redis.Client
	PG     *pgxpool.Pool
	logger *zap.Logger
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewHybrid connects the configured backends. An empty redisAddr or pgURL
// leaves that backend disabled.
func NewHybrid(redisAddr string, redisDB int, redisPass string, pgURL string, pgPoolConfig PGPoolConfig, logger *zap.Logger) (*HybridStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var rdb *redis.Client
	if redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			DB:       redisDB,
			Password: redisPass,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
	}

	var pgPool *pgxpool.Pool
	if pgURL != "" {
		cfg, err := pgxpool.ParseConfig(pgURL)
		if err != nil {
			if rdb != nil {
				_ = rdb.Close()
			}
			return nil, fmt.Errorf("invalid pg config: %w", err)
		}
		if pgPoolConfig.MaxConns > 0 {
			cfg.MaxConns = pgPoolConfig.MaxConns
		}
		if pgPoolConfig.MinConns > 0 {
			cfg.MinConns = pgPoolConfig.MinConns
		}
		if pgPoolConfig.MaxConnLifetime > 0 {
			cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
		}
		if pgPoolConfig.MaxConnIdleTime > 0 {
			cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
		}
		if pgPoolConfig.HealthCheckPeriod > 0 {
			cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
		}
		pgPool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			if rdb != nil {
				_ = rdb.Close()
			}
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	}

	return &HybridStore{redis: rdb, PG: pgPool, logger: logger}, nil
}

// SaveTransactions inserts every transaction not already stored for the
// account and returns how many were new. Rows are keyed by company, account
// number and the engine's identifier.
func (s *HybridStore) SaveTransactions(ctx context.Context, company model.CompanyID, accountName string, accounts []model.Account) (int, error) {
	if s.PG == nil {
		return 0, nil
	}

	inserted := 0
	err := pgx.BeginFunc(ctx, s.PG, func(tx pgx.Tx) error {
		for _, acct := range accounts {
			for _, t := range acct.Transactions {
				tag, err := tx.Exec(ctx, `
					INSERT INTO bank.transactions (
						company, account_name, account_number, identifier,
						txn_type, txn_date, charged_amount, original_amount,
						original_currency, description, memo, status, scraped_at
					)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
					ON CONFLICT (company, account_number, identifier) DO NOTHING
				`, company.Key(), accountName, acct.AccountNumber, TransactionKey(t),
					t.Type, t.Date, t.ChargedAmount, t.OriginalAmount,
					t.OriginalCurrency, t.Description, t.Memo, t.Status)
				if err != nil {
					return err
				}
				inserted += int(tag.RowsAffected())
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("store.pg.insert_transactions_failed",
			zap.String("company", string(company)),
			zap.String("account", accountName),
			zap.Error(err))
		return 0, fmt.Errorf("save transactions: %w", err)
	}
	return inserted, nil
}

// TransactionKey is the dedup key for a transaction. Some portals omit the
// identifier, in which case date, amount and description stand in for it.
func TransactionKey(t model.Transaction) string {
	if t.Identifier != "" {
		return t.Identifier
	}
	return fmt.Sprintf("%s|%s|%s", t.Date, t.ChargedAmount.String(), t.Description)
}

func checkpointKey(company model.CompanyID, accountName string) string {
	return fmt.Sprintf("sync:checkpoint:%s:%s", company.Key(), accountName)
}

// SetCheckpoint records the last successful scrape of an account.
func (s *HybridStore) SetCheckpoint(ctx context.Context, cp model.SyncCheckpoint) error {
	if s.redis == nil {
		return nil
	}
	return s.SetJSON(ctx, checkpointKey(cp.Company, cp.AccountName), cp, 0)
}

// GetCheckpoint returns nil without error when no checkpoint exists.
func (s *HybridStore) GetCheckpoint(ctx context.Context, company model.CompanyID, accountName string) (*model.SyncCheckpoint, error) {
	if s.redis == nil {
		return nil, nil
	}
	var cp model.SyncCheckpoint
	err := s.GetJSON(ctx, checkpointKey(company, accountName), &cp)
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *HybridStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key, data, ttl).Err()
}

func (s *HybridStore) GetJSON(ctx context.Context, key string, dest any) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil && s.PG == nil {
		return fmt.Errorf("no backend configured")
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
	}
	if s.PG != nil {
		if err := s.PG.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
	}
	return nil
}

func (s *HybridStore) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
