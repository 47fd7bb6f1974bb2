package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/linkhost/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// timeFormat is fixed width so text timestamps sort chronologically.
const timeFormat = "2006-01-02T15:04:05.000000Z07:00"

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Rebind(query string) string
}

// =============================================================================
// SQLStore
// =============================================================================

// SQLStore implements Store on SQLite or PostgreSQL.
type SQLStore struct {
	db *sqlx.DB
}

// Open connects to the database and checks that migrations have been applied.
// It never creates tables; a missing schema is reported as ErrSchemaMissing.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	db, err := connect(driver, dsn)
	if err != nil {
		return nil, err
	}

	var n int
	if err := db.GetContext(ctx, &n, "SELECT COUNT(*) FROM custom_domains WHERE 1 = 0"); err != nil {
		db.Close()
		return nil, NewStoreError("Open", "", "", err.Error(), ErrSchemaMissing)
	}

	return &SQLStore{db: db}, nil
}

// Migrate applies the embedded migrations. It is run once at deployment time.
func Migrate(driver, dsn string) error {
	db, err := connect(driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := runMigrations(driver, db.DB); err != nil {
		return NewStoreError("Migrate", "", "", err.Error(), ErrMigrationFailed)
	}
	return nil
}

func connect(driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverSQLite:
		if !strings.Contains(dsn, "_foreign_keys") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_foreign_keys=on"
		}
	case DriverPostgres:
	default:
		return nil, NewStoreError("Open", "", "", driver, ErrUnsupportedDriver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, NewStoreError("Open", "", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("Open", "", "", "failed to ping database", ErrConnectionFailed)
	}

	return db, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(driver string, db *sql.DB) error {
	var (
		dbDriver database.Driver
		err      error
	)
	switch driver {
	case DriverSQLite:
		dbDriver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	case DriverPostgres:
		dbDriver, err = migratepgx.WithInstance(db, &migratepgx.Config{})
	default:
		return ErrUnsupportedDriver
	}
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, driver, dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) CreateDomain(ctx context.Context, d *domain.CustomDomain) error {
	return createDomain(ctx, s.db, d)
}

func (s *SQLStore) GetDomain(ctx context.Context, id string) (*domain.CustomDomain, error) {
	return getDomain(ctx, s.db, id)
}

func (s *SQLStore) GetDomainByHostname(ctx context.Context, hostname string) (*domain.CustomDomain, error) {
	return getDomainByHostname(ctx, s.db, hostname)
}

func (s *SQLStore) ListDomainsByOwner(ctx context.Context, ownerID string, opts ListOptions) ([]domain.CustomDomain, error) {
	return listDomainsByOwner(ctx, s.db, ownerID, opts)
}

func (s *SQLStore) ListDomainsByStatus(ctx context.Context, status domain.Status, opts ListOptions) ([]domain.CustomDomain, error) {
	return listDomainsByStatus(ctx, s.db, status, opts)
}

func (s *SQLStore) UpdateDomain(ctx context.Context, id string, patch domain.Patch) (*domain.CustomDomain, error) {
	return updateDomain(ctx, s.db, id, patch)
}

func (s *SQLStore) CreateDistribution(ctx context.Context, dist *domain.Distribution) error {
	return createDistribution(ctx, s.db, dist)
}

func (s *SQLStore) GetDistribution(ctx context.Context, id string) (*domain.Distribution, error) {
	return getDistribution(ctx, s.db, id)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// txSQLStore implements Store within a transaction.
type txSQLStore struct {
	tx *sqlx.Tx
}

func (s *txSQLStore) CreateDomain(ctx context.Context, d *domain.CustomDomain) error {
	return createDomain(ctx, s.tx, d)
}

func (s *txSQLStore) GetDomain(ctx context.Context, id string) (*domain.CustomDomain, error) {
	return getDomain(ctx, s.tx, id)
}

func (s *txSQLStore) GetDomainByHostname(ctx context.Context, hostname string) (*domain.CustomDomain, error) {
	return getDomainByHostname(ctx, s.tx, hostname)
}

func (s *txSQLStore) ListDomainsByOwner(ctx context.Context, ownerID string, opts ListOptions) ([]domain.CustomDomain, error) {
	return listDomainsByOwner(ctx, s.tx, ownerID, opts)
}

func (s *txSQLStore) ListDomainsByStatus(ctx context.Context, status domain.Status, opts ListOptions) ([]domain.CustomDomain, error) {
	return listDomainsByStatus(ctx, s.tx, status, opts)
}

func (s *txSQLStore) UpdateDomain(ctx context.Context, id string, patch domain.Patch) (*domain.CustomDomain, error) {
	return updateDomain(ctx, s.tx, id, patch)
}

func (s *txSQLStore) CreateDistribution(ctx context.Context, dist *domain.Distribution) error {
	return createDistribution(ctx, s.tx, dist)
}

func (s *txSQLStore) GetDistribution(ctx context.Context, id string) (*domain.Distribution, error) {
	return getDistribution(ctx, s.tx, id)
}

func (s *txSQLStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Custom Domain Rows
// =============================================================================

// domainRow represents a custom_domains row joined with its distribution.
type domainRow struct {
	ID                 string  `db:"id"`
	OwnerID            string  `db:"owner_id"`
	DistributionID     *string `db:"distribution_id"`
	Hostname           string  `db:"hostname"`
	Status             string  `db:"status"`
	VerificationMethod string  `db:"verification_method"`
	VerificationToken  string  `db:"verification_token"`
	CFHostnameID       *string `db:"cf_hostname_id"`
	DNSTarget          string  `db:"dns_target"`
	TXTName            *string `db:"txt_name"`
	TXTValue           *string `db:"txt_value"`
	LastError          *string `db:"last_error"`
	LastCheckedAt      *string `db:"last_checked_at"`
	CreatedAt          string  `db:"created_at"`
	UpdatedAt          string  `db:"updated_at"`
	DistOwnerID        *string `db:"dist_owner_id"`
	DistCode           *string `db:"dist_code"`
	DistTitle          *string `db:"dist_title"`
}

// selectDomains joins the distribution with outer-join semantics so that
// unassociated domains, or domains whose distribution is gone, still resolve.
const selectDomains = `
	SELECT
		d.id, d.owner_id, d.distribution_id, d.hostname, d.status,
		d.verification_method, d.verification_token, d.cf_hostname_id,
		d.dns_target, d.txt_name, d.txt_value, d.last_error,
		d.last_checked_at, d.created_at, d.updated_at,
		dist.owner_id AS dist_owner_id, dist.code AS dist_code, dist.title AS dist_title
	FROM custom_domains d
	LEFT JOIN distributions dist ON dist.id = d.distribution_id`

func createDomain(ctx context.Context, exec executor, d *domain.CustomDomain) error {
	query := `
		INSERT INTO custom_domains (
			id, owner_id, distribution_id, hostname, status,
			verification_method, verification_token, cf_hostname_id,
			dns_target, txt_name, txt_value, last_error,
			last_checked_at, created_at, updated_at
		) VALUES (
			:id, :owner_id, :distribution_id, :hostname, :status,
			:verification_method, :verification_token, :cf_hostname_id,
			:dns_target, :txt_name, :txt_value, :last_error,
			:last_checked_at, :created_at, :updated_at
		)`

	row := map[string]any{
		"id":                  d.ID,
		"owner_id":            d.OwnerID,
		"distribution_id":     nullString(d.DistributionID),
		"hostname":            d.Hostname,
		"status":              string(d.Status),
		"verification_method": string(d.VerificationMethod),
		"verification_token":  d.VerificationToken,
		"cf_hostname_id":      nullString(d.CFHostnameID),
		"dns_target":          d.DNSTarget,
		"txt_name":            nullString(d.TXTName),
		"txt_value":           nullString(d.TXTValue),
		"last_error":          nullString(d.LastError),
		"last_checked_at":     formatTimePtr(d.LastCheckedAt),
		"created_at":          formatTime(d.CreatedAt),
		"updated_at":          formatTime(d.UpdatedAt),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		switch {
		case isUniqueViolation(err, "custom_domains.hostname", "hostname"):
			return NewStoreError("CreateDomain", "custom_domain", d.ID, "hostname "+d.Hostname+" already exists", ErrDuplicateHostname)
		case isUniqueViolation(err, "custom_domains.id", "pkey"):
			return NewStoreError("CreateDomain", "custom_domain", d.ID, "custom domain with this ID already exists", ErrDuplicateID)
		case isForeignKeyViolation(err):
			return NewStoreError("CreateDomain", "custom_domain", d.ID, "distribution "+d.DistributionID+" does not exist", ErrForeignKey)
		}
		return NewStoreError("CreateDomain", "custom_domain", d.ID, err.Error(), err)
	}

	return nil
}

func getDomain(ctx context.Context, exec executor, id string) (*domain.CustomDomain, error) {
	var row domainRow
	err := exec.GetContext(ctx, &row, exec.Rebind(selectDomains+` WHERE d.id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetDomain", "custom_domain", id, "custom domain not found", ErrNotFound)
		}
		return nil, NewStoreError("GetDomain", "custom_domain", id, err.Error(), err)
	}

	return rowToDomain(&row)
}

func getDomainByHostname(ctx context.Context, exec executor, hostname string) (*domain.CustomDomain, error) {
	var row domainRow
	err := exec.GetContext(ctx, &row, exec.Rebind(selectDomains+` WHERE d.hostname = ?`), hostname)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetDomainByHostname", "custom_domain", hostname, "custom domain not found", ErrNotFound)
		}
		return nil, NewStoreError("GetDomainByHostname", "custom_domain", hostname, err.Error(), err)
	}

	return rowToDomain(&row)
}

func listDomainsByOwner(ctx context.Context, exec executor, ownerID string, opts ListOptions) ([]domain.CustomDomain, error) {
	opts = opts.Normalize()
	query := exec.Rebind(selectDomains + `
		WHERE d.owner_id = ?
		ORDER BY d.created_at DESC, d.id DESC
		LIMIT ? OFFSET ?`)

	var rows []domainRow
	if err := exec.SelectContext(ctx, &rows, query, ownerID, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListDomainsByOwner", "custom_domain", "", err.Error(), err)
	}

	return rowsToDomains(rows)
}

func listDomainsByStatus(ctx context.Context, exec executor, status domain.Status, opts ListOptions) ([]domain.CustomDomain, error) {
	opts = opts.Normalize()
	query := exec.Rebind(selectDomains + `
		WHERE d.status = ?
		ORDER BY d.updated_at ASC, d.id ASC
		LIMIT ? OFFSET ?`)

	var rows []domainRow
	if err := exec.SelectContext(ctx, &rows, query, string(status), opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListDomainsByStatus", "custom_domain", "", err.Error(), err)
	}

	return rowsToDomains(rows)
}

// updateDomain writes only the fields set in patch and always refreshes updated_at.
func updateDomain(ctx context.Context, exec executor, id string, patch domain.Patch) (*domain.CustomDomain, error) {
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(time.Now())}

	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.LastError != nil {
		sets = append(sets, "last_error = ?")
		args = append(args, nullString(*patch.LastError))
	}
	if patch.LastCheckedAt != nil {
		sets = append(sets, "last_checked_at = ?")
		args = append(args, formatTime(*patch.LastCheckedAt))
	}
	if patch.CFHostnameID != nil && *patch.CFHostnameID != "" {
		sets = append(sets, "cf_hostname_id = ?")
		args = append(args, *patch.CFHostnameID)
	}
	args = append(args, id)

	query := exec.Rebind("UPDATE custom_domains SET " + strings.Join(sets, ", ") + " WHERE id = ?")
	result, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, NewStoreError("UpdateDomain", "custom_domain", id, err.Error(), err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, NewStoreError("UpdateDomain", "custom_domain", id, err.Error(), err)
	}
	if affected == 0 {
		return nil, NewStoreError("UpdateDomain", "custom_domain", id, "custom domain not found", ErrNotFound)
	}

	return getDomain(ctx, exec, id)
}

// =============================================================================
// Distribution Rows
// =============================================================================

type distributionRow struct {
	ID        string `db:"id"`
	OwnerID   string `db:"owner_id"`
	Code      string `db:"code"`
	Title     string `db:"title"`
	CreatedAt string `db:"created_at"`
}

func createDistribution(ctx context.Context, exec executor, dist *domain.Distribution) error {
	query := `
		INSERT INTO distributions (id, owner_id, code, title, created_at)
		VALUES (:id, :owner_id, :code, :title, :created_at)`

	_, err := exec.NamedExecContext(ctx, query, distributionRow{
		ID:        dist.ID,
		OwnerID:   dist.OwnerID,
		Code:      dist.Code,
		Title:     dist.Title,
		CreatedAt: formatTime(time.Now()),
	})
	if err != nil {
		switch {
		case isUniqueViolation(err, "distributions.code", "code"):
			return NewStoreError("CreateDistribution", "distribution", dist.ID, "code "+dist.Code+" already exists", ErrDuplicateCode)
		case isUniqueViolation(err, "distributions.id", "pkey"):
			return NewStoreError("CreateDistribution", "distribution", dist.ID, "distribution with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateDistribution", "distribution", dist.ID, err.Error(), err)
	}
	return nil
}

func getDistribution(ctx context.Context, exec executor, id string) (*domain.Distribution, error) {
	var row distributionRow
	err := exec.GetContext(ctx, &row, exec.Rebind(`SELECT id, owner_id, code, title, created_at FROM distributions WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetDistribution", "distribution", id, "distribution not found", ErrNotFound)
		}
		return nil, NewStoreError("GetDistribution", "distribution", id, err.Error(), err)
	}

	return &domain.Distribution{
		ID:      row.ID,
		OwnerID: row.OwnerID,
		Code:    row.Code,
		Title:   row.Title,
	}, nil
}

// =============================================================================
// Conversion Helpers
// =============================================================================

func rowToDomain(row *domainRow) (*domain.CustomDomain, error) {
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return nil, NewStoreError("rowToDomain", "custom_domain", row.ID, "invalid created_at", err)
	}
	updatedAt, err := parseTime(row.UpdatedAt)
	if err != nil {
		return nil, NewStoreError("rowToDomain", "custom_domain", row.ID, "invalid updated_at", err)
	}

	d := &domain.CustomDomain{
		ID:                 row.ID,
		OwnerID:            row.OwnerID,
		DistributionID:     deref(row.DistributionID),
		Hostname:           row.Hostname,
		Status:             domain.Status(row.Status),
		VerificationMethod: domain.VerificationMethod(row.VerificationMethod),
		VerificationToken:  row.VerificationToken,
		CFHostnameID:       deref(row.CFHostnameID),
		DNSTarget:          row.DNSTarget,
		TXTName:            deref(row.TXTName),
		TXTValue:           deref(row.TXTValue),
		LastError:          deref(row.LastError),
		CreatedAt:          createdAt,
		UpdatedAt:          updatedAt,
	}

	if row.LastCheckedAt != nil && *row.LastCheckedAt != "" {
		t, err := parseTime(*row.LastCheckedAt)
		if err != nil {
			return nil, NewStoreError("rowToDomain", "custom_domain", row.ID, "invalid last_checked_at", err)
		}
		d.LastCheckedAt = &t
	}

	if row.DistCode != nil {
		d.Distribution = &domain.Distribution{
			ID:      d.DistributionID,
			OwnerID: deref(row.DistOwnerID),
			Code:    *row.DistCode,
			Title:   deref(row.DistTitle),
		}
	}

	return d, nil
}

func rowsToDomains(rows []domainRow) ([]domain.CustomDomain, error) {
	domains := make([]domain.CustomDomain, 0, len(rows))
	for i := range rows {
		d, err := rowToDomain(&rows[i])
		if err != nil {
			return nil, err
		}
		domains = append(domains, *d)
	}
	return domains, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// isUniqueViolation matches SQLite's constraint message or the PostgreSQL
// unique_violation code on a constraint whose name contains pgConstraint.
func isUniqueViolation(err error, sqliteColumn, pgConstraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, pgConstraint)
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed: "+sqliteColumn)
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
