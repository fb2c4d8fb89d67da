package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	"github.com/smartkey-protocol/smartkey-go/pkg/identity"
)

// Supported SQL drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	metaAuthority = "authority"
	metaTotal     = "total"

	balanceRoleOwner = "owner"
	balanceRoleUser  = "user"
)

type credentialRow struct {
	bun.BaseModel `bun:"table:credentials,alias:cr"`

	ID              string    `bun:"id,pk"`
	Owner           string    `bun:"owner_address,notnull"`
	Device          string    `bun:"device_address,notnull,unique"`
	User            string    `bun:"user_address,notnull"`
	State           int       `bun:"state,notnull"`
	HashOwnerDevice string    `bun:"hash_owner_device,notnull"`
	HashUserDevice  string    `bun:"hash_user_device,notnull"`
	DataEngagement  []byte    `bun:"data_engagement"`
	Timestamp       int64     `bun:"session_timestamp,notnull"`
	Timeout         int64     `bun:"session_timeout,notnull"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type balanceRow struct {
	bun.BaseModel `bun:"table:credential_balances,alias:cb"`

	Address string `bun:"address,pk"`
	Role    string `bun:"role,pk"`
	Balance int64  `bun:"balance,notnull"`
}

type metaRow struct {
	bun.BaseModel `bun:"table:store_meta,alias:sm"`

	Name   string `bun:"name,pk"`
	Text   string `bun:"text_value,notnull"`
	Number int64  `bun:"number_value,notnull"`
}

// SQLStore is a Store backed by a SQL database through bun.
// Each mutation runs in its own transaction, counters included.
type SQLStore struct {
	db *bun.DB
}

// OpenSQLStore opens a database with the named driver and prepares the schema.
// For SQLite, ":memory:" gives a private in-memory database.
func OpenSQLStore(ctx context.Context, driver, dsn string, authority identity.Address) (*SQLStore, error) {
	var (
		sqldb   *sql.DB
		dialect schema.Dialect
		err     error
	)

	switch driver {
	case DriverSQLite:
		sqldb, err = sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		// SQLite serialises writers anyway; a single connection also keeps
		// ":memory:" databases from splitting across the pool.
		sqldb.SetMaxOpenConns(1)
		dialect = sqlitedialect.New()
	case DriverPostgres:
		sqldb, err = sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		dialect = pgdialect.New()
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	s, err := NewSQLStore(ctx, bun.NewDB(sqldb, dialect), authority)
	if err != nil {
		sqldb.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore prepares the schema on db. The authority is only used when the
// database has none recorded yet.
func NewSQLStore(ctx context.Context, db *bun.DB, authority identity.Address) (*SQLStore, error) {
	s := &SQLStore{db: db}
	if err := s.migrate(ctx, authority); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// DB returns the underlying bun handle.
func (s *SQLStore) DB() *bun.DB {
	return s.db
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) migrate(ctx context.Context, authority identity.Address) error {
	models := []interface{}{
		(*credentialRow)(nil),
		(*balanceRow)(nil),
		(*metaRow)(nil),
	}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		seed := []metaRow{
			{Name: metaAuthority, Text: authority.Hex()},
			{Name: metaTotal},
		}
		for i := range seed {
			exists, err := tx.NewSelect().
				Model((*metaRow)(nil)).
				Where("name = ?", seed[i].Name).
				Exists(ctx)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if _, err := tx.NewInsert().Model(&seed[i]).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// Create stores a new record.
func (s *SQLStore) Create(ctx context.Context, caller identity.Address, id identity.TokenID, rec Record) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := checkAuthority(ctx, tx, caller); err != nil {
			return err
		}
		exists, err := tx.NewSelect().
			Model((*credentialRow)(nil)).
			Where("id = ?", id.Hex()).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateKey
		}
		if err := rec.Validate(); err != nil {
			return err
		}
		taken, err := tx.NewSelect().
			Model((*credentialRow)(nil)).
			Where("device_address = ?", rec.Device.Hex()).
			Exists(ctx)
		if err != nil {
			return err
		}
		if taken {
			return errDeviceTaken
		}

		row, err := toRow(id, rec)
		if err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return err
		}

		if err := adjustBalance(ctx, tx, rec.Owner, balanceRoleOwner, 1); err != nil {
			return err
		}
		if err := adjustBalance(ctx, tx, rec.User, balanceRoleUser, 1); err != nil {
			return err
		}
		return adjustTotal(ctx, tx, 1)
	})
}

// Update replaces an existing record.
func (s *SQLStore) Update(ctx context.Context, caller identity.Address, id identity.TokenID, rec Record) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := checkAuthority(ctx, tx, caller); err != nil {
			return err
		}
		old, found, err := findRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		if old.Device != rec.Device {
			return ErrImmutableField
		}
		if err := rec.Validate(); err != nil {
			return err
		}

		row, err := toRow(id, rec)
		if err != nil {
			return err
		}
		row.UpdatedAt = time.Now().UTC()
		if _, err := tx.NewUpdate().Model(row).WherePK().Exec(ctx); err != nil {
			return err
		}

		if old.Owner != rec.Owner {
			if err := adjustBalance(ctx, tx, old.Owner, balanceRoleOwner, -1); err != nil {
				return err
			}
			if err := adjustBalance(ctx, tx, rec.Owner, balanceRoleOwner, 1); err != nil {
				return err
			}
		}
		if old.User != rec.User {
			if err := adjustBalance(ctx, tx, old.User, balanceRoleUser, -1); err != nil {
				return err
			}
			if err := adjustBalance(ctx, tx, rec.User, balanceRoleUser, 1); err != nil {
				return err
			}
		}
		return nil
	})
}

// Remove deletes a record.
func (s *SQLStore) Remove(ctx context.Context, caller identity.Address, id identity.TokenID) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := checkAuthority(ctx, tx, caller); err != nil {
			return err
		}
		old, found, err := findRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}

		if _, err := tx.NewDelete().
			Model((*credentialRow)(nil)).
			Where("id = ?", id.Hex()).
			Exec(ctx); err != nil {
			return err
		}

		if err := adjustBalance(ctx, tx, old.Owner, balanceRoleOwner, -1); err != nil {
			return err
		}
		if err := adjustBalance(ctx, tx, old.User, balanceRoleUser, -1); err != nil {
			return err
		}
		return adjustTotal(ctx, tx, -1)
	})
}

// FindByID returns the record or the zero Record.
func (s *SQLStore) FindByID(ctx context.Context, id identity.TokenID) (Record, error) {
	rec, _, err := findRow(ctx, s.db, id)
	return rec, err
}

// FindByDevice returns the id bound to device or the zero id.
func (s *SQLStore) FindByDevice(ctx context.Context, device identity.Address) (identity.TokenID, error) {
	var key string
	err := s.db.NewSelect().
		Model((*credentialRow)(nil)).
		Column("id").
		Where("device_address = ?", device.Hex()).
		Scan(ctx, &key)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.ZeroTokenID, nil
	}
	if err != nil {
		return identity.ZeroTokenID, err
	}
	return identity.ParseTokenID(key)
}

// BalanceOfOwner returns the owner balance.
func (s *SQLStore) BalanceOfOwner(ctx context.Context, addr identity.Address) (uint64, error) {
	return readBalance(ctx, s.db, addr, balanceRoleOwner)
}

// BalanceOfUser returns the user balance.
func (s *SQLStore) BalanceOfUser(ctx context.Context, addr identity.Address) (uint64, error) {
	return readBalance(ctx, s.db, addr, balanceRoleUser)
}

// TotalCount returns the number of records.
func (s *SQLStore) TotalCount(ctx context.Context) (uint64, error) {
	var meta metaRow
	if err := s.db.NewSelect().Model(&meta).Where("name = ?", metaTotal).Scan(ctx); err != nil {
		return 0, err
	}
	return uint64(meta.Number), nil
}

// Authority returns the current authority.
func (s *SQLStore) Authority(ctx context.Context) (identity.Address, error) {
	return readAuthority(ctx, s.db)
}

// TransferAuthority hands the write capability to newAuthority.
func (s *SQLStore) TransferAuthority(ctx context.Context, caller, newAuthority identity.Address) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := checkAuthority(ctx, tx, caller); err != nil {
			return err
		}
		if newAuthority.IsZero() {
			return ErrInvalidAuthority
		}
		_, err := tx.NewUpdate().
			Model((*metaRow)(nil)).
			Set("text_value = ?", newAuthority.Hex()).
			Where("name = ?", metaAuthority).
			Exec(ctx)
		return err
	})
}

func checkAuthority(ctx context.Context, db bun.IDB, caller identity.Address) error {
	authority, err := readAuthority(ctx, db)
	if err != nil {
		return err
	}
	if caller != authority {
		return ErrAccessDenied
	}
	return nil
}

func readAuthority(ctx context.Context, db bun.IDB) (identity.Address, error) {
	var meta metaRow
	if err := db.NewSelect().Model(&meta).Where("name = ?", metaAuthority).Scan(ctx); err != nil {
		return identity.ZeroAddress, err
	}
	return identity.ParseAddress(meta.Text)
}

func readBalance(ctx context.Context, db bun.IDB, addr identity.Address, role string) (uint64, error) {
	var balance int64
	err := db.NewSelect().
		Model((*balanceRow)(nil)).
		Column("balance").
		Where("address = ?", addr.Hex()).
		Where("role = ?", role).
		Scan(ctx, &balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(balance), nil
}

// adjustBalance adds delta to the counter of addr. The unset address is not counted.
func adjustBalance(ctx context.Context, db bun.IDB, addr identity.Address, role string, delta int64) error {
	if addr.IsZero() || delta == 0 {
		return nil
	}
	res, err := db.NewUpdate().
		Model((*balanceRow)(nil)).
		Set("balance = balance + ?", delta).
		Where("address = ?", addr.Hex()).
		Where("role = ?", role).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n > 0 {
		return nil
	}
	if delta < 0 {
		return fmt.Errorf("%s balance of %s would become negative", role, addr)
	}
	_, err = db.NewInsert().
		Model(&balanceRow{Address: addr.Hex(), Role: role, Balance: delta}).
		Exec(ctx)
	return err
}

func adjustTotal(ctx context.Context, db bun.IDB, delta int64) error {
	_, err := db.NewUpdate().
		Model((*metaRow)(nil)).
		Set("number_value = number_value + ?", delta).
		Where("name = ?", metaTotal).
		Exec(ctx)
	return err
}

func findRow(ctx context.Context, db bun.IDB, id identity.TokenID) (Record, bool, error) {
	var row credentialRow
	err := db.NewSelect().Model(&row).Where("id = ?", id.Hex()).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	rec, err := row.toRecord()
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func toRow(id identity.TokenID, rec Record) (*credentialRow, error) {
	engagement, err := encodeEngagement(rec.DataEngagement)
	if err != nil {
		return nil, err
	}
	return &credentialRow{
		ID:              id.Hex(),
		Owner:           rec.Owner.Hex(),
		Device:          rec.Device.Hex(),
		User:            rec.User.Hex(),
		State:           int(rec.State),
		HashOwnerDevice: rec.HashOwnerDevice.Hex(),
		HashUserDevice:  rec.HashUserDevice.Hex(),
		DataEngagement:  engagement,
		Timestamp:       int64(rec.Timestamp),
		Timeout:         int64(rec.Timeout),
	}, nil
}

func (r *credentialRow) toRecord() (Record, error) {
	var (
		rec Record
		err error
	)
	if rec.Owner, err = identity.ParseAddress(r.Owner); err != nil {
		return Record{}, err
	}
	if rec.Device, err = identity.ParseAddress(r.Device); err != nil {
		return Record{}, err
	}
	if rec.User, err = identity.ParseAddress(r.User); err != nil {
		return Record{}, err
	}
	if rec.HashOwnerDevice, err = identity.ParseHash(r.HashOwnerDevice); err != nil {
		return Record{}, err
	}
	if rec.HashUserDevice, err = identity.ParseHash(r.HashUserDevice); err != nil {
		return Record{}, err
	}
	if rec.DataEngagement, err = decodeEngagement(r.DataEngagement); err != nil {
		return Record{}, err
	}
	rec.State = State(r.State)
	rec.Timestamp = uint64(r.Timestamp)
	rec.Timeout = uint64(r.Timeout)
	return rec, nil
}

// Compile-time interface satisfaction check.
var _ Store = (*SQLStore)(nil)
