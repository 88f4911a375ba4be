// Package mongo implements store.Store on the official MongoDB driver.
//
// Units of work run in multi-document transactions, so the server must be
// a replica set or sharded cluster. LockInvoice bumps a counter on the
// invoice document; concurrent units of work touching the same invoice hit
// a write conflict and the driver retries the loser from the start.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/xraph/reckon/currency"
	"github.com/xraph/reckon/fxrate"
	"github.com/xraph/reckon/id"
	"github.com/xraph/reckon/idempotency"
	"github.com/xraph/reckon/invoice"
	"github.com/xraph/reckon/payment"
	"github.com/xraph/reckon/store"
	"github.com/xraph/reckon/types"
)

// Collection name constants.
const (
	colCurrencies  = "reckon_currencies"
	colFXRates     = "reckon_fx_rates"
	colInvoices    = "reckon_invoices"
	colPayments    = "reckon_payments"
	colIdempotency = "reckon_idempotency_records"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l.Named("mongo") }
}

// New wraps a connected database handle.
func New(db *mongo.Database, opts ...Option) *Store {
	s := &Store{client: db.Client(), db: db, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect dials uri and returns a store on the named database.
func Connect(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("reckon/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("reckon/mongo: ping: %w", err)
	}
	return New(client.Database(database), opts...), nil
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *mongo.Database { return s.db }

// Migrate creates indexes for all reckon collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("reckon/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

func (s *Store) col(name string) *mongo.Collection { return s.db.Collection(name) }

// ==================== Currency Store ====================

func (s *Store) PutCurrency(ctx context.Context, c *currency.Currency) error {
	m := toCurrencyModel(c)
	_, err := s.col(colCurrencies).ReplaceOne(ctx, bson.M{"_id": m.Code}, m, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("reckon/mongo: put currency %s: %w", c.Code, err)
	}
	return nil
}

func (s *Store) GetCurrency(ctx context.Context, code string) (*currency.Currency, error) {
	var m currencyModel
	if err := s.col(colCurrencies).FindOne(ctx, bson.M{"_id": code}).Decode(&m); err != nil {
		return nil, notFound(err, "currency", code)
	}
	return fromCurrencyModel(&m), nil
}

func (s *Store) ListCurrencies(ctx context.Context) ([]*currency.Currency, error) {
	var models []currencyModel
	if err := findAll(ctx, s.col(colCurrencies), bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}), &models); err != nil {
		return nil, fmt.Errorf("reckon/mongo: list currencies: %w", err)
	}
	result := make([]*currency.Currency, len(models))
	for i := range models {
		result[i] = fromCurrencyModel(&models[i])
	}
	return result, nil
}

// ==================== FX rate Store ====================

func (s *Store) CreateRate(ctx context.Context, r *fxrate.Rate) error {
	_, err := s.col(colFXRates).InsertOne(ctx, toFXRateModel(r))
	if mongo.IsDuplicateKeyError(err) {
		return types.Conflict("fx rate", types.ErrDuplicateRate)
	}
	if err != nil {
		return fmt.Errorf("reckon/mongo: create fx rate: %w", err)
	}
	return nil
}

func (s *Store) GetRate(ctx context.Context, rateID id.FXRateID) (*fxrate.Rate, error) {
	var m fxRateModel
	if err := s.col(colFXRates).FindOne(ctx, bson.M{"_id": rateID.String()}).Decode(&m); err != nil {
		return nil, notFound(err, "fx rate", rateID.String())
	}
	return fromFXRateModel(&m)
}

func (s *Store) LatestRate(ctx context.Context, base, quote string, asOf time.Time) (*fxrate.Rate, error) {
	var m fxRateModel
	err := s.col(colFXRates).FindOne(ctx,
		bson.M{"base": base, "quote": quote, "effective_from": bson.M{"$lte": asOf}},
		options.FindOne().SetSort(bson.D{{Key: "effective_from", Value: -1}}),
	).Decode(&m)
	if isNoDocuments(err) {
		return nil, &types.NotFoundError{Resource: "fx rate", ID: base + "/" + quote, Cause: types.ErrFXRateNotFound}
	}
	if err != nil {
		return nil, fmt.Errorf("reckon/mongo: latest rate %s/%s: %w", base, quote, err)
	}
	return fromFXRateModel(&m)
}

func (s *Store) ListRates(ctx context.Context, base, quote string) ([]*fxrate.Rate, error) {
	filter := bson.M{}
	if base != "" {
		filter["base"] = base
	}
	if quote != "" {
		filter["quote"] = quote
	}

	opts := options.Find().SetSort(bson.D{
		{Key: "base", Value: 1},
		{Key: "quote", Value: 1},
		{Key: "effective_from", Value: 1},
	})
	var models []fxRateModel
	if err := findAll(ctx, s.col(colFXRates), filter, opts, &models); err != nil {
		return nil, fmt.Errorf("reckon/mongo: list fx rates: %w", err)
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
	_, err := s.col(colInvoices).InsertOne(ctx, toInvoiceModel(inv))
	if mongo.IsDuplicateKeyError(err) {
		return &types.ConflictError{Resource: "invoice", Reason: "already exists"}
	}
	if err != nil {
		return fmt.Errorf("reckon/mongo: create invoice: %w", err)
	}
	return nil
}

func (s *Store) GetInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	var m invoiceModel
	if err := s.col(colInvoices).FindOne(ctx, bson.M{"_id": invID.String()}).Decode(&m); err != nil {
		return nil, notFound(err, "invoice", invID.String())
	}
	return fromInvoiceModel(&m)
}

func (s *Store) ListInvoices(ctx context.Context, orgID string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	filter := bson.M{"organization_id": orgID}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if opts.Currency != "" {
		filter["currency"] = opts.Currency
	}
	if opts.Overdue != nil {
		filter["overdue"] = *opts.Overdue
	}
	for path, want := range opts.Metadata {
		filter["metadata."+path] = want
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	var models []invoiceModel
	if err := findAll(ctx, s.col(colInvoices), filter, findOpts, &models); err != nil {
		return nil, fmt.Errorf("reckon/mongo: list invoices: %w", err)
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

func getPayment(ctx context.Context, db *mongo.Database, payID id.PaymentID) (*payment.Payment, error) {
	var m paymentModel
	if err := db.Collection(colPayments).FindOne(ctx, bson.M{"_id": payID.String()}).Decode(&m); err != nil {
		return nil, notFound(err, "payment", payID.String())
	}
	return fromPaymentModel(&m)
}

func (s *Store) ListPayments(ctx context.Context, invID id.InvoiceID) ([]*payment.Payment, error) {
	var models []paymentModel
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if err := findAll(ctx, s.col(colPayments), bson.M{"invoice_id": invID.String()}, opts, &models); err != nil {
		return nil, fmt.Errorf("reckon/mongo: list payments: %w", err)
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
	res, err := s.col(colIdempotency).DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": before}})
	if err != nil {
		return 0, fmt.Errorf("reckon/mongo: purge idempotency: %w", err)
	}
	return res.DeletedCount, nil
}

// ==================== Unit of work ====================

// InTx runs fn in a session transaction. The driver retries fn on transient
// write conflicts, so fn must not keep state across attempts. Errors
// returned by fn pass through unchanged; commit failures wrap
// types.ErrTransactionFailed.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("reckon/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	var fnErr error
	_, err = sess.WithTransaction(ctx, func(sctx context.Context) (any, error) {
		fnErr = fn(sctx, &tx{db: s.db})
		return nil, fnErr
	})
	if err != nil && fnErr == nil {
		s.logger.Error("transaction failed", zap.Error(err))
		return fmt.Errorf("reckon/mongo: %w: %w", types.ErrTransactionFailed, err)
	}
	return err
}

// tx issues every operation with the session-bound context it receives,
// which is what enlists it in the transaction.
type tx struct {
	db *mongo.Database
}

func (t *tx) LockInvoice(ctx context.Context, invID id.InvoiceID) (*invoice.Invoice, error) {
	var m invoiceModel
	err := t.db.Collection(colInvoices).FindOneAndUpdate(ctx,
		bson.M{"_id": invID.String()},
		bson.M{"$inc": bson.M{"lock_seq": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		return nil, notFound(err, "invoice", invID.String())
	}
	return fromInvoiceModel(&m)
}

func (t *tx) UpdateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	m := toInvoiceModel(inv)
	res, err := t.db.Collection(colInvoices).UpdateOne(ctx,
		bson.M{"_id": m.ID},
		bson.M{"$set": bson.M{
			"paid_amount":      m.PaidAmount,
			"balance_amount":   m.BalanceAmount,
			"status":           m.Status,
			"overdue":          m.Overdue,
			"sent_at":          m.SentAt,
			"written_off_at":   m.WrittenOffAt,
			"write_off_reason": m.WriteOffReason,
			"updated_at":       m.UpdatedAt,
		}},
	)
	if err != nil {
		return fmt.Errorf("reckon/mongo: update invoice: %w", err)
	}
	if res.MatchedCount == 0 {
		return types.NotFound("invoice", m.ID)
	}
	return nil
}

func (t *tx) GetPayment(ctx context.Context, payID id.PaymentID) (*payment.Payment, error) {
	return getPayment(ctx, t.db, payID)
}

func (t *tx) InsertPayment(ctx context.Context, p *payment.Payment) error {
	if _, err := t.db.Collection(colPayments).InsertOne(ctx, toPaymentModel(p)); err != nil {
		return fmt.Errorf("reckon/mongo: insert payment: %w", err)
	}
	return nil
}

func (t *tx) UpdatePayment(ctx context.Context, p *payment.Payment) error {
	m := toPaymentModel(p)
	res, err := t.db.Collection(colPayments).UpdateOne(ctx,
		bson.M{"_id": m.ID},
		bson.M{"$set": bson.M{
			"status":      m.Status,
			"voided_at":   m.VoidedAt,
			"voided_by":   m.VoidedBy,
			"void_reason": m.VoidReason,
			"updated_at":  m.UpdatedAt,
		}},
	)
	if err != nil {
		return fmt.Errorf("reckon/mongo: update payment: %w", err)
	}
	if res.MatchedCount == 0 {
		return types.NotFound("payment", m.ID)
	}
	return nil
}

func (t *tx) SumPayments(ctx context.Context, invID id.InvoiceID) (decimal.Decimal, error) {
	var models []paymentModel
	filter := bson.M{"invoice_id": invID.String(), "status": bson.M{"$ne": string(payment.StatusVoid)}}
	opts := options.Find().SetProjection(bson.M{"amount": 1})
	if err := findAll(ctx, t.db.Collection(colPayments), filter, opts, &models); err != nil {
		return decimal.Zero, fmt.Errorf("reckon/mongo: sum payments: %w", err)
	}
	sum := decimal.Zero
	for i := range models {
		d, err := fromD128(models[i].Amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("reckon/mongo: sum payments: %w", err)
		}
		sum = sum.Add(d)
	}
	return sum, nil
}

func (t *tx) GetIdempotencyRecord(ctx context.Context, k idempotency.Key) (*idempotency.Record, error) {
	var m idempotencyModel
	if err := t.db.Collection(colIdempotency).FindOne(ctx, keyFilter(k)).Decode(&m); err != nil {
		return nil, notFound(err, "idempotency record", k.String())
	}
	return fromIdempotencyModel(&m)
}

func (t *tx) PutIdempotencyRecord(ctx context.Context, r *idempotency.Record) error {
	m := toIdempotencyModel(r)
	_, err := t.db.Collection(colIdempotency).ReplaceOne(ctx,
		keyFilter(r.RecordKey()), m, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("reckon/mongo: put idempotency record: %w", err)
	}
	return nil
}

// ==================== Helpers ====================

func findAll(ctx context.Context, c *mongo.Collection, filter any, opts *options.FindOptionsBuilder, out any) error {
	cur, err := c.Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	return cur.All(ctx, out)
}

func notFound(err error, resource, key string) error {
	if isNoDocuments(err) {
		return types.NotFound(resource, key)
	}
	return fmt.Errorf("reckon/mongo: get %s %s: %w", resource, key, err)
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all reckon collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colFXRates: {
			{
				Keys: bson.D{
					{Key: "base", Value: 1},
					{Key: "quote", Value: 1},
					{Key: "effective_from", Value: 1},
				},
				Options: options.Index().SetUnique(true),
			},
		},
		colInvoices: {
			{Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		colPayments: {
			{Keys: bson.D{{Key: "invoice_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colIdempotency: {
			{
				Keys: bson.D{
					{Key: "organization_id", Value: 1},
					{Key: "user_id", Value: 1},
					{Key: "route", Value: 1},
					{Key: "key", Value: 1},
				},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
	}
}
