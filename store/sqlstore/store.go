// Package sqlstore implements store.Store on gorm for PostgreSQL and SQLite.
//
// PostgreSQL units of work lock the invoice row with SELECT ... FOR UPDATE.
// SQLite has no row locks, so the store serializes its units of work with
// a store-wide mutex instead.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/xraph/reckon/currency"
	"github.com/xraph/reckon/fxrate"
	"github.com/xraph/reckon/id"
	"github.com/xraph/reckon/idempotency"
	"github.com/xraph/reckon/invoice"
	"github.com/xraph/reckon/payment"
	"github.com/xraph/reckon/store"
	"github.com/xraph/reckon/types"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using gorm.
type Store struct {
	db     *gorm.DB
	serial *sync.Mutex
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l.Named("sqlstore") }
}

// WithSerializedTx serializes units of work with an in-process mutex.
// OpenSQLite enables it.
func WithSerializedTx() Option {
	return func(s *Store) { s.serial = &sync.Mutex{} }
}

// New wraps an open gorm database.
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	}
}

// OpenPostgres connects to PostgreSQL.
func OpenPostgres(dsn string, opts ...Option) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("reckon/sqlstore: open postgres: %w", err)
	}
	return New(db, opts...), nil
}

// OpenSQLite opens (or creates) a SQLite database at path. Use
// "file::memory:?cache=shared" for an in-memory database.
func OpenSQLite(path string, opts ...Option) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("reckon/sqlstore: open sqlite: %w", err)
	}
	return New(db, append([]Option{WithSerializedTx()}, opts...)...), nil
}

// DB returns the underlying gorm database for direct access.
func (s *Store) DB() *gorm.DB { return s.db }

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&currencyModel{},
		&fxRateModel{},
		&invoiceModel{},
		&lineItemModel{},
		&paymentModel{},
		&idempotencyModel{},
	)
	if err != nil {
		return fmt.Errorf("reckon/sqlstore: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error, resource, key string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.NotFound(resource, key)
	}
	return fmt.Errorf("reckon/sqlstore: get %s %s: %w", resource, key, err)
}

// ==================== Currency Store ====================

func (s *Store) PutCurrency(ctx context.Context, c *currency.Currency) error {
	m := toCurrencyModel(c)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "symbol", "decimal_places", "active", "updated_at"}),
	}).Create(m).Error
	if err != nil {
		return fmt.Errorf("reckon/sqlstore: put currency %s: %w", c.Code, err)
	}
	return nil
}

func (s *Store) GetCurrency(ctx context.Context, code string) (*currency.Currency, error) {
	var m currencyModel
	if err := s.db.WithContext(ctx).First(&m, "code = ?", code).Error; err != nil {
		return nil, notFound(err, "currency", code)
	}
	return fromCurrencyModel(&m), nil
}

func (s *Store) ListCurrencies(ctx context.Context) ([]*currency.Currency, error) {
	var models []currencyModel
	if err := s.db.WithContext(ctx).Order("code").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("reckon/sqlstore: list currencies: %w", err)
	}
	result := make([]*currency.Currency, len(models))
	for i := range models {
		result[i] = fromCurrencyModel(&models[i])
	}
	return result, nil
}

// ==================== FX rate Store ====================

func (s *Store) CreateRate(ctx context.Context, r *fxrate.Rate) error {
	err := s.db.WithContext(ctx).Create(toFXRateModel(r)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return types.Conflict("fx rate", types.ErrDuplicateRate)
	}
	if err != nil {
		return fmt.Errorf("reckon/sqlstore: create fx rate: %w", err)
	}
	return nil
}

func (s *Store) GetRate(ctx context.Context, rateID id.FXRateID) (*fxrate.Rate, error) {
	var m fxRateModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", rateID.String()).Error; err != nil {
		return nil, notFound(err, "fx rate", rateID.String())
	}
	return fromFXRateModel(&m)
}

func (s *Store) LatestRate(ctx context.Context, base, quote string, asOf time.Time) (*fxrate.Rate, error) {
	var m fxRateModel
	err := s.db.WithContext(ctx).
		Where("base = ? AND quote = ? AND effective_from <= ?", base, quote, asOf).
		Order("effective_from DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &types.NotFoundError{Resource: "fx rate", ID: base + "/" + quote, Cause: types.ErrFXRateNotFound}
	}
	if err != nil {
		return nil, fmt.Errorf("reckon/sqlstore: latest rate %s/%s: %w", base, quote, err)
	}
	return fromFXRateModel(&m)
}

func (s *Store) ListRates(ctx context.Context, base, quote string) ([]*fxrate.Rate, error) {
	q := s.db.WithContext(ctx).Model(&fxRateModel{})
	if base != "" {
		q = q.Where("base = ?", base)
	}
	if quote != "" {
		q = q.Where("quote = ?", quote)
	}

	var models []fxRateModel
	if err := q.Order("base, quote, effective_from").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("reckon/sqlstore: list fx rates: %w", err)
	}
	result := make([]*fxrate.Rate, 0, len(models))
	for i := range models {
		r, err := fromFXRateModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, nil
}

// ==================== Invoice Store ====================

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(toInvoiceModel(inv)).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &types.ConflictError{Resource: "invoice", Reason: "already exists"}
	}
	if err != nil {
		return fmt.Errorf("reckon/sqlstore: create invoice: %w", err)
	}
	return nil
}

func preloadLines(db *gorm.DB) *gorm.DB {
	return db.Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position") })
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	var m invoiceModel
	if err := preloadLines(s.db.WithContext(ctx)).First(&m, "id = ?", invID.String()).Error; err != nil {
		return nil, notFound(err, "invoice", invID.String())
	}
	return fromInvoiceModel(&m)
}

func (s *Store) ListInvoices(ctx context.Context, orgID string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	q := preloadLines(s.db.WithContext(ctx)).Where("organization_id = ?", orgID)
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Currency != "" {
		q = q.Where("currency = ?", opts.Currency)
	}
	if opts.Overdue != nil {
		q = q.Where("overdue = ?", *opts.Overdue)
	}
	for path, want := range opts.Metadata {
		q = q.Where(datatypes.JSONQuery("metadata").Equals(want, strings.Split(path, ".")...))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	var models []invoiceModel
	if err := q.Order("created_at, id").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("reckon/sqlstore: list invoices: %w", err)
	}
	result := make([]*invoice.Invoice, 0, len(models))
	for i := range models {
		inv, err := fromInvoiceModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	return result, nil
}

// ==================== Payment Store ====================

func (s *Store) GetPayment(ctx context.Context, payID id.PaymentID) (*payment.Payment, error) {
	return getPayment(ctx, s.db, payID)
}

func getPayment(ctx context.Context, db *gorm.DB, payID id.PaymentID) (*payment.Payment, error) {
	var m paymentModel
	if err := db.WithContext(ctx).First(&m, "id = ?", payID.String()).Error; err != nil {
		return nil, notFound(err, "payment", payID.String())
	}
	return fromPaymentModel(&m)
}

func (s *Store) ListPayments(ctx context.Context, invID id.InvoiceID) ([]*payment.Payment, error) {
	var models []paymentModel
	err := s.db.WithContext(ctx).
		Where("invoice_id = ?", invID.String()).
		Order("created_at, id").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("reckon/sqlstore: list payments: %w", err)
	}
	result := make([]*payment.Payment, 0, len(models))
	for i := range models {
		p, err := fromPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

// ==================== Idempotency ====================

func (s *Store) PurgeIdempotency(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", before).Delete(&idempotencyModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("reckon/sqlstore: purge idempotency: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ==================== Unit of work ====================

// InTx runs fn in a database transaction. Errors returned by fn pass
// through unchanged; commit failures wrap types.ErrTransactionFailed.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if s.serial != nil {
		s.serial.Lock()
		defer s.serial.Unlock()
	}

	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		fnErr = fn(ctx, &tx{db: gtx})
		return fnErr
	})
	if err != nil && fnErr == nil {
		s.logger.Error("transaction failed", zap.Error(err))
		return fmt.Errorf("reckon/sqlstore: %w: %w", types.ErrTransactionFailed, err)
	}
	return err
}

type tx struct {
	db *gorm.DB
}

func (t *tx) LockInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	var m invoiceModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&m, "id = ?", invID.String()).Error
	if err != nil {
		return nil, notFound(err, "invoice", invID.String())
	}
	if err := t.db.WithContext(ctx).Where("invoice_id = ?", m.ID).Order("position").Find(&m.Lines).Error; err != nil {
		return nil, fmt.Errorf("reckon/sqlstore: load invoice lines: %w", err)
	}
	return fromInvoiceModel(&m)
}

// invoiceMutableColumns are the only invoice columns a unit of work writes.
var invoiceMutableColumns = []string{
	"paid_amount", "balance_amount", "status", "overdue",
	"sent_at", "written_off_at", "write_off_reason", "updated_at",
}

func (t *tx) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m := toInvoiceModel(inv)
	res := t.db.WithContext(ctx).
		Model(&invoiceModel{ID: m.ID}).
		Select(invoiceMutableColumns).
		Updates(m)
	if res.Error != nil {
		return fmt.Errorf("reckon/sqlstore: update invoice: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NotFound("invoice", m.ID)
	}
	return nil
}

func (t *tx) GetPayment(ctx context.Context, payID id.PaymentID) (*payment.Payment, error) {
	return getPayment(ctx, t.db, payID)
}

func (t *tx) InsertPayment(ctx context.Context, p *payment.Payment) error {
	err := t.db.WithContext(ctx).Create(toPaymentModel(p)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &types.ConflictError{Resource: "payment", Reason: "already exists"}
	}
	if err != nil {
		return fmt.Errorf("reckon/sqlstore: insert payment: %w", err)
	}
	return nil
}

func (t *tx) UpdatePayment(ctx context.Context, p *payment.Payment) error {
	m := toPaymentModel(p)
	res := t.db.WithContext(ctx).
		Model(&paymentModel{ID: m.ID}).
		Select("status", "voided_at", "voided_by", "void_reason", "updated_at").
		Updates(m)
	if res.Error != nil {
		return fmt.Errorf("reckon/sqlstore: update payment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NotFound("payment", m.ID)
	}
	return nil
}

// SumPayments adds the amounts in Go so the sum stays exact on SQLite,
// where decimal columns have numeric affinity.
func (t *tx) SumPayments(ctx context.Context, invID id.InvoiceID) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := t.db.WithContext(ctx).
		Model(&paymentModel{}).
		Where("invoice_id = ? AND status <> ?", invID.String(), string(payment.StatusVoid)).
		Pluck("amount", &amounts).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("reckon/sqlstore: sum payments: %w", err)
	}
	return decimal.Sum(decimal.Zero, amounts...), nil
}

func (t *tx) GetIdempotencyRecord(ctx context.Context, k idempotency.Key) (*idempotency.Record, error) {
	var m idempotencyModel
	err := t.db.WithContext(ctx).
		Where("organization_id = ? AND user_id = ? AND route = ? AND idem_key = ?",
			k.OrganizationID, k.UserID, k.Route, k.Key).
		First(&m).Error
	if err != nil {
		return nil, notFound(err, "idempotency record", k.String())
	}
	return fromIdempotencyModel(&m)
}

func (t *tx) PutIdempotencyRecord(ctx context.Context, r *idempotency.Record) error {
	err := t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "organization_id"}, {Name: "user_id"}, {Name: "route"}, {Name: "idem_key"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"id", "request_hash", "response", "created_at", "expires_at"}),
	}).Create(toIdempotencyModel(r)).Error
	if err != nil {
		return fmt.Errorf("reckon/sqlstore: put idempotency record: %w", err)
	}
	return nil
}
