package store

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotConfigured is returned by every operation when no connection
// string was provided. Callers treat it like any other storage failure:
// log and degrade, never crash.
var ErrNotConfigured = errors.New("store: database not configured")

const defaultDatabase = "aarogya"

// Mongo provides typed access to the document store.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// Config defines connection parameters for the document store.
type Config struct {
	URI               string
	AllowInvalidCerts bool
}

// New connects to MongoDB. An empty URI yields a degraded store whose
// operations all return ErrNotConfigured; connection errors are returned
// so the caller can decide whether to continue.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Mongo, error) {
	s := &Mongo{logger: logger.With("component", "store")}
	if cfg.URI == "" {
		s.logger.Warn("MONGODB_URI not set, persistence disabled")
		return s, nil
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(10 * time.Second)
	if cfg.AllowInvalidCerts {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	s.client = client
	s.db = client.Database(databaseName(cfg.URI))
	return s, nil
}

// databaseName extracts the default database from the connection string,
// falling back to a fixed name when the URI carries no path segment.
func databaseName(uri string) string {
	rest := uri
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+3:]
	}
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return defaultDatabase
	}
	name := rest[slash+1:]
	if q := strings.IndexByte(name, '?'); q >= 0 {
		name = name[:q]
	}
	if name == "" {
		return defaultDatabase
	}
	return name
}

// Configured reports whether a database connection exists.
func (s *Mongo) Configured() bool {
	return s != nil && s.db != nil
}

// Close disconnects from the database.
func (s *Mongo) Close(ctx context.Context) {
	if s.Configured() {
		if err := s.client.Disconnect(ctx); err != nil {
			s.logger.Warn("mongodb disconnect failed", "error", err)
		}
	}
}

// Ping verifies database connectivity.
func (s *Mongo) Ping(ctx context.Context) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	return s.client.Ping(ctx, nil)
}

func (s *Mongo) users() *mongo.Collection     { return s.db.Collection("users") }
func (s *Mongo) chats() *mongo.Collection     { return s.db.Collection("chats") }
func (s *Mongo) summaries() *mongo.Collection { return s.db.Collection("summaries") }

// SaveUser creates or updates a user profile keyed by phone number.
// Chats and payments arrays are initialised only on first insert.
func (s *Mongo) SaveUser(ctx context.Context, profile UserProfile) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	if profile.Phone == "" {
		if _, err := s.users().InsertOne(ctx, profile); err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		return nil
	}

	update := bson.M{
		"$set":         profile,
		"$setOnInsert": bson.M{"chats": []ChatTurn{}, "payments": []PaymentRecord{}},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := s.users().UpdateOne(ctx, bson.M{"phone": profile.Phone}, update, opts); err != nil {
		return fmt.Errorf("upsert user %s: %w", profile.Phone, err)
	}
	return nil
}

// GetUserByPhone returns the user document, or (nil, nil) when absent.
func (s *Mongo) GetUserByPhone(ctx context.Context, phone string) (*User, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}
	var user User
	err := s.users().FindOne(ctx, bson.M{"phone": phone}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user %s: %w", phone, err)
	}
	return &user, nil
}

// AppendChat appends one turn to the user's conversation history.
func (s *Mongo) AppendChat(ctx context.Context, phone string, turn ChatTurn) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	update := bson.M{"$push": bson.M{"chats": turn}}
	opts := options.Update().SetUpsert(true)
	if _, err := s.users().UpdateOne(ctx, bson.M{"phone": phone}, update, opts); err != nil {
		return fmt.Errorf("append chat for %s: %w", phone, err)
	}
	return nil
}

// UpdateUserLanguage stores the last detected language for a user.
func (s *Mongo) UpdateUserLanguage(ctx context.Context, phone, language string) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	update := bson.M{"$set": bson.M{"language": language}}
	if _, err := s.users().UpdateOne(ctx, bson.M{"phone": phone}, update); err != nil {
		return fmt.Errorf("update language for %s: %w", phone, err)
	}
	return nil
}

// RecordPayment appends a payment record to the user's payment list.
func (s *Mongo) RecordPayment(ctx context.Context, phone string, payment PaymentRecord) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	update := bson.M{"$push": bson.M{"payments": payment}}
	opts := options.Update().SetUpsert(true)
	if _, err := s.users().UpdateOne(ctx, bson.M{"phone": phone}, update, opts); err != nil {
		return fmt.Errorf("record payment for %s: %w", phone, err)
	}
	return nil
}

// MarkPaymentPaid transitions the pending record matching linkID to paid.
// The filter includes the pending status so a concurrent confirmation or a
// webhook replay cannot flip the same record twice, and a paid record can
// never regress. Returns true when a record actually transitioned.
func (s *Mongo) MarkPaymentPaid(ctx context.Context, phone, linkID, paymentID string) (bool, error) {
	if !s.Configured() {
		return false, ErrNotConfigured
	}
	filter := bson.M{
		"phone": phone,
		"payments": bson.M{"$elemMatch": bson.M{
			"link_id": linkID,
			"status":  PaymentPending,
		}},
	}
	update := bson.M{"$set": bson.M{
		"payments.$.status":     PaymentPaid,
		"payments.$.payment_id": paymentID,
	}}
	res, err := s.users().UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("mark payment paid %s/%s: %w", phone, linkID, err)
	}
	return res.ModifiedCount > 0, nil
}

// HasPayment reports whether the user already has a record carrying the
// given gateway payment identifier. Used as the webhook idempotency check.
func (s *Mongo) HasPayment(ctx context.Context, phone, paymentID string) (bool, error) {
	if !s.Configured() {
		return false, ErrNotConfigured
	}
	filter := bson.M{
		"phone":    phone,
		"payments": bson.M{"$elemMatch": bson.M{"payment_id": paymentID}},
	}
	count, err := s.users().CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check payment %s/%s: %w", phone, paymentID, err)
	}
	return count > 0, nil
}

// ListUsersWithChats returns all users with a non-empty conversation history.
func (s *Mongo) ListUsersWithChats(ctx context.Context) ([]User, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}
	cur, err := s.users().Find(ctx, bson.M{"chats": bson.M{"$ne": []ChatTurn{}}})
	if err != nil {
		return nil, fmt.Errorf("list users with chats: %w", err)
	}
	defer cur.Close(ctx)

	var users []User
	for cur.Next(ctx) {
		var u User
		if err := cur.Decode(&u); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
		users = append(users, u)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// SetLastNudge stamps the time the user was last reminded.
func (s *Mongo) SetLastNudge(ctx context.Context, phone, timestamp string) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	update := bson.M{"$set": bson.M{"last_nudge": timestamp}}
	if _, err := s.users().UpdateOne(ctx, bson.M{"phone": phone}, update); err != nil {
		return fmt.Errorf("set last nudge for %s: %w", phone, err)
	}
	return nil
}

// SaveChatLog writes an independent chat-log record.
func (s *Mongo) SaveChatLog(ctx context.Context, record ChatLogRecord) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	if _, err := s.chats().InsertOne(ctx, record); err != nil {
		return fmt.Errorf("save chat log: %w", err)
	}
	return nil
}

// SaveConsultRequest writes a consult-request record to the chat log.
func (s *Mongo) SaveConsultRequest(ctx context.Context, record ConsultRequestRecord) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	if _, err := s.chats().InsertOne(ctx, record); err != nil {
		return fmt.Errorf("save consult request: %w", err)
	}
	return nil
}

// SavePaymentEvent stores a raw gateway webhook event.
func (s *Mongo) SavePaymentEvent(ctx context.Context, record PaymentEventRecord) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	if _, err := s.chats().InsertOne(ctx, record); err != nil {
		return fmt.Errorf("save payment event: %w", err)
	}
	return nil
}

// SaveSummary persists a consultation summary.
func (s *Mongo) SaveSummary(ctx context.Context, record SummaryRecord) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	if _, err := s.summaries().InsertOne(ctx, record); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}
