// Package mongostore is the MongoDB store. Each document carries the JSON
// encoding of the entity plus a version field used for compare-and-swap.
package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kiwari-pos/floorops/internal/billing"
	"github.com/kiwari-pos/floorops/internal/order"
	"github.com/kiwari-pos/floorops/internal/store"
	"github.com/kiwari-pos/floorops/internal/table"
)

const vatID = "vat"

// document is the stored shape shared by all collections.
type document struct {
	ID          string `bson:"_id"`
	Seq         int64  `bson:"seq,omitempty"`
	TableNumber int    `bson:"table_number,omitempty"`
	Version     int64  `bson:"version"`
	Payload     string `bson:"payload"`
}

// Store implements store.Store on MongoDB.
type Store struct {
	client   *mongo.Client
	active   *mongo.Collection
	history  *mongo.Collection
	sessions *mongo.Collection
	vat      *mongo.Collection
	now      func() time.Time
}

// Open connects to url and selects database dbName. ArchiveOrders runs in a
// multi-document transaction, so the server must be a replica set.
func Open(ctx context.Context, url, dbName string) (*Store, error) {
	if url == "" {
		url = "mongodb://localhost:27017"
	}
	clientOptions := options.Client().ApplyURI(url).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("cannot ping MongoDB: %w", err)
	}
	s := New(client, client.Database(dbName))
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// New wraps an existing client and database.
func New(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		client:   client,
		active:   db.Collection(store.CollectionActiveOrders),
		history:  db.Collection(store.CollectionOrderHistory),
		sessions: db.Collection(store.CollectionTableSessions),
		vat:      db.Collection(store.CollectionVatConfig),
		now:      time.Now,
	}
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.active.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "seq", Value: 1}}})
	if err != nil {
		return fmt.Errorf("cannot create active_orders index: %w", err)
	}
	_, err = s.history.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "seq", Value: -1}}})
	if err != nil {
		return fmt.Errorf("cannot create order_history index: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("cannot disconnect from MongoDB: %w", err)
	}
	return nil
}

func encode(id string, seq int64, tableNumber int, version int64, v any) (document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return document{}, fmt.Errorf("cannot encode %s: %w", id, err)
	}
	return document{ID: id, Seq: seq, TableNumber: tableNumber, Version: version, Payload: string(b)}, nil
}

func decodeOrder(d document) (order.Order, error) {
	var o order.Order
	if err := json.Unmarshal([]byte(d.Payload), &o); err != nil {
		return order.Order{}, fmt.Errorf("cannot decode order %s: %w", d.ID, err)
	}
	o.Version = d.Version
	return o, nil
}

func (s *Store) findOrders(ctx context.Context, c *mongo.Collection, opts *options.FindOptions) ([]order.Order, error) {
	cursor, err := c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot list orders: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("cannot decode orders: %w", err)
	}
	out := make([]order.Order, 0, len(docs))
	for _, d := range docs {
		o, err := decodeOrder(d)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *Store) ListOrders(ctx context.Context) ([]order.Order, error) {
	return s.findOrders(ctx, s.active, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (order.Order, error) {
	var d document
	err := s.active.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return order.Order{}, store.ErrNotFound
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("cannot get order: %w", err)
	}
	return decodeOrder(d)
}

func (s *Store) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	o.Version = 1
	d, err := encode(o.ID.String(), s.now().UnixNano(), o.TableNumber, o.Version, o)
	if err != nil {
		return order.Order{}, err
	}
	if _, err := s.active.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return order.Order{}, store.ErrVersionConflict
		}
		return order.Order{}, fmt.Errorf("cannot create order: %w", err)
	}
	return o, nil
}

func (s *Store) UpdateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	expected := o.Version
	o.Version++
	d, err := encode(o.ID.String(), 0, o.TableNumber, o.Version, o)
	if err != nil {
		return order.Order{}, err
	}
	filter := bson.M{"_id": d.ID, "version": expected}
	update := bson.M{"$set": bson.M{"payload": d.Payload, "version": d.Version, "table_number": d.TableNumber}}
	result, err := s.active.UpdateOne(ctx, filter, update)
	if err != nil {
		return order.Order{}, fmt.Errorf("cannot update order: %w", err)
	}
	if result.MatchedCount == 0 {
		return order.Order{}, missOrConflict(ctx, s.active, d.ID)
	}
	return o, nil
}

func missOrConflict(ctx context.Context, c *mongo.Collection, id string) error {
	n, err := c.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("cannot check %s: %w", id, err)
	}
	if n > 0 {
		return store.ErrVersionConflict
	}
	return store.ErrNotFound
}

func (s *Store) ArchiveOrders(ctx context.Context, orders []order.Order) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("cannot start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		seq := s.now().UnixNano()
		for i, o := range orders {
			id := o.ID.String()
			res, err := s.active.DeleteOne(sc, bson.M{"_id": id, "version": o.Version})
			if err != nil {
				return nil, fmt.Errorf("orders[%d]: cannot delete: %w", i, err)
			}
			if res.DeletedCount == 0 {
				return nil, missOrConflict(sc, s.active, id)
			}
			d, err := encode(id, seq+int64(i), o.TableNumber, o.Version, o)
			if err != nil {
				return nil, err
			}
			opts := options.Replace().SetUpsert(true)
			if _, err := s.history.ReplaceOne(sc, bson.M{"_id": id}, d, opts); err != nil {
				return nil, fmt.Errorf("orders[%d]: cannot insert history: %w", i, err)
			}
		}
		return nil, nil
	})
	return err
}

func (s *Store) ListHistory(ctx context.Context, limit int) ([]order.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.findOrders(ctx, s.history, opts)
}

func decodeBooking(d document) (table.Booking, error) {
	var b table.Booking
	if err := json.Unmarshal([]byte(d.Payload), &b); err != nil {
		return table.Booking{}, fmt.Errorf("cannot decode booking %s: %w", d.ID, err)
	}
	b.Version = d.Version
	return b, nil
}

func bookingID(tableNumber int) string {
	return fmt.Sprintf("table_%d", tableNumber)
}

func (s *Store) ListBookings(ctx context.Context) ([]table.Booking, error) {
	cursor, err := s.sessions.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "table_number", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("cannot list bookings: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("cannot decode bookings: %w", err)
	}
	out := make([]table.Booking, 0, len(docs))
	for _, d := range docs {
		b, err := decodeBooking(d)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *Store) GetBooking(ctx context.Context, tableNumber int) (table.Booking, error) {
	var d document
	err := s.sessions.FindOne(ctx, bson.M{"_id": bookingID(tableNumber)}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return table.Booking{}, store.ErrNotFound
	}
	if err != nil {
		return table.Booking{}, fmt.Errorf("cannot get booking: %w", err)
	}
	return decodeBooking(d)
}

func (s *Store) SaveBooking(ctx context.Context, b table.Booking) (table.Booking, error) {
	expected := b.Version
	b.Version++
	d, err := encode(bookingID(b.TableNumber), 0, b.TableNumber, b.Version, b)
	if err != nil {
		return table.Booking{}, err
	}
	if expected == 0 {
		if _, err := s.sessions.InsertOne(ctx, d); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return table.Booking{}, store.ErrVersionConflict
			}
			return table.Booking{}, fmt.Errorf("cannot create booking: %w", err)
		}
		return b, nil
	}
	result, err := s.sessions.UpdateOne(ctx,
		bson.M{"_id": d.ID, "version": expected},
		bson.M{"$set": bson.M{"payload": d.Payload, "version": d.Version}})
	if err != nil {
		return table.Booking{}, fmt.Errorf("cannot update booking: %w", err)
	}
	if result.MatchedCount == 0 {
		return table.Booking{}, missOrConflict(ctx, s.sessions, d.ID)
	}
	return b, nil
}

func (s *Store) GetVat(ctx context.Context) (billing.VatConfig, error) {
	var d document
	err := s.vat.FindOne(ctx, bson.M{"_id": vatID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return billing.VatConfig{}, nil
	}
	if err != nil {
		return billing.VatConfig{}, fmt.Errorf("cannot get vat config: %w", err)
	}
	var v billing.VatConfig
	if err := json.Unmarshal([]byte(d.Payload), &v); err != nil {
		return billing.VatConfig{}, fmt.Errorf("cannot decode vat config: %w", err)
	}
	v.Version = d.Version
	return v, nil
}

func (s *Store) SaveVat(ctx context.Context, v billing.VatConfig) (billing.VatConfig, error) {
	expected := v.Version
	v.Version++
	d, err := encode(vatID, 0, 0, v.Version, v)
	if err != nil {
		return billing.VatConfig{}, err
	}
	if expected == 0 {
		if _, err := s.vat.InsertOne(ctx, d); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return billing.VatConfig{}, store.ErrVersionConflict
			}
			return billing.VatConfig{}, fmt.Errorf("cannot save vat config: %w", err)
		}
		return v, nil
	}
	result, err := s.vat.UpdateOne(ctx,
		bson.M{"_id": vatID, "version": expected},
		bson.M{"$set": bson.M{"payload": d.Payload, "version": d.Version}})
	if err != nil {
		return billing.VatConfig{}, fmt.Errorf("cannot save vat config: %w", err)
	}
	if result.MatchedCount == 0 {
		return billing.VatConfig{}, store.ErrVersionConflict
	}
	return v, nil
}
