package delegation

import (
	"context"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type replayRow struct {
	bun.BaseModel `bun:"table:delegation_replays,alias:dr"`

	Key       string    `bun:"replay_key,pk"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
}

// SQLReplayLedger is a ReplayLedger shared by every process using the same
// database. It lives next to the credential tables of a storage.SQLStore.
type SQLReplayLedger struct {
	db         *bun.DB
	defaultTTL time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// NewSQLReplayLedger prepares the ledger table on db.
func NewSQLReplayLedger(ctx context.Context, db *bun.DB, defaultTTL time.Duration) (*SQLReplayLedger, error) {
	if defaultTTL <= 0 {
		defaultTTL = defaultReplayTTL
	}
	if _, err := db.NewCreateTable().Model((*replayRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, err
	}
	return &SQLReplayLedger{db: db, defaultTTL: defaultTTL, Now: time.Now}, nil
}

// Claim records key unless it is already live.
func (l *SQLReplayLedger) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, errEmptyReplayKey
	}
	if ttl <= 0 {
		ttl = l.defaultTTL
	}
	now := time.Now().UTC()
	if l.Now != nil {
		now = l.Now().UTC()
	}

	var claimed bool
	err := l.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*replayRow)(nil)).
			Where("replay_key = ?", key).
			Where("expires_at <= ?", now).
			Exec(ctx); err != nil {
			return err
		}

		res, err := tx.NewInsert().
			Model(&replayRow{Key: key, ExpiresAt: now.Add(ttl)}).
			On("CONFLICT (replay_key) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		claimed = n == 1
		return nil
	})
	return claimed, err
}

// Release deletes key. Unknown keys are ignored.
func (l *SQLReplayLedger) Release(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errEmptyReplayKey
	}
	_, err := l.db.NewDelete().
		Model((*replayRow)(nil)).
		Where("replay_key = ?", key).
		Exec(ctx)
	return err
}

// Purge deletes expired entries and returns how many were removed.
func (l *SQLReplayLedger) Purge(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	if l.Now != nil {
		now = l.Now().UTC()
	}
	res, err := l.db.NewDelete().
		Model((*replayRow)(nil)).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Compile-time interface satisfaction check.
var _ ReplayLedger = (*SQLReplayLedger)(nil)
