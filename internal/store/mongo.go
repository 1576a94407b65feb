package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/inkwell-books/storefront-messaging/internal/apperr"
	"github.com/inkwell-books/storefront-messaging/internal/conversation"
	"github.com/inkwell-books/storefront-messaging/internal/model"
)

const (
	// MessagesCollection is the collection holding messages.
	MessagesCollection = "messages"

	opTimeout   = 5 * time.Second
	bulkTimeout = 15 * time.Second
)

type messageDoc struct {
	ID        string    `bson:"_id"`
	To        string    `bson:"to"`
	FromAdmin string    `bson:"fromAdmin,omitempty"`
	FromUser  string    `bson:"fromUser,omitempty"`
	Subject   string    `bson:"subject"`
	Body      string    `bson:"body"`
	Read      bool      `bson:"read"`
	CreatedAt time.Time `bson:"createdAt"`
}

func toDoc(m *model.Message) messageDoc {
	fromAdmin, fromUser := m.From.Fields()
	return messageDoc{
		ID:        m.ID,
		To:        m.To,
		FromAdmin: fromAdmin,
		FromUser:  fromUser,
		Subject:   m.Subject,
		Body:      m.Body,
		Read:      m.Read,
		CreatedAt: m.CreatedAt,
	}
}

func (d *messageDoc) toMessage() (*model.Message, bool) {
	from, ok := model.SenderFromFields(d.FromAdmin, d.FromUser)
	if !ok {
		return nil, false
	}
	return &model.Message{
		ID:        d.ID,
		To:        d.To,
		From:      from,
		Subject:   d.Subject,
		Body:      d.Body,
		Read:      d.Read,
		CreatedAt: d.CreatedAt.UTC(),
	}, true
}

// Mongo implements MessageStore on a MongoDB collection. Bulk mutations
// run in a session transaction, which needs a replica set or sharded
// cluster.
//
// With transactions disabled the store runs in a weaker mode: each bulk
// mutation is a single DeleteMany or UpdateMany, which MongoDB applies per
// document. A timeout, cancellation or failover mid-command can leave a
// conversation partially deleted or partially marked read.
type Mongo struct {
	client        *mongo.Client
	coll          *mongo.Collection
	transactional bool
}

// ConnectMongo connects to uri and returns the database handle.
func ConnectMongo(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return client, client.Database(database), nil
}

// NewMongo creates the message store and ensures its indexes. When
// transactional is set it fails unless the deployment supports
// multi-document transactions.
func NewMongo(ctx context.Context, db *mongo.Database, transactional bool) (*Mongo, error) {
	s := &Mongo{
		client:        db.Client(),
		coll:          db.Collection(MessagesCollection),
		transactional: transactional,
	}

	ctx, cancel := context.WithTimeout(ctx, bulkTimeout)
	defer cancel()

	if transactional {
		if err := checkTransactions(ctx, db); err != nil {
			return nil, err
		}
	}

	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "to", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("to_created_idx")},
		{Keys: bson.D{{Key: "fromUser", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("from_user_created_idx")},
		{Keys: bson.D{{Key: "fromAdmin", Value: 1}, {Key: "createdAt", Value: -1}}, Options: options.Index().SetName("from_admin_created_idx")},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create message indexes: %w", err)
	}
	return s, nil
}

func (s *Mongo) Insert(ctx context.Context, m *model.Message) error {
	if err := validate(m); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.coll.InsertOne(ctx, toDoc(m)); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (s *Mongo) Get(ctx context.Context, id string) (*model.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc messageDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	m, ok := doc.toMessage()
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	return m, nil
}

func (s *Mongo) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (s *Mongo) Find(ctx context.Context, q Query) ([]model.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	dir := -1
	if q.Ascending {
		dir = 1
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: dir}, {Key: "_id", Value: dir}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.coll.Find(ctx, mongoFilter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find messages: %w", err)
	}
	defer cur.Close(ctx)

	out := make([]model.Message, 0)
	for cur.Next(ctx) {
		var doc messageDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		if m, ok := doc.toMessage(); ok {
			out = append(out, *m)
		}
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return out, nil
}

func (s *Mongo) CountCounterparts(ctx context.Context, q Query, viewerID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: mongoFilter(q)}},
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: mongoCounterpart(viewerID)}}}},
		{{Key: "$match", Value: bson.M{"_id": bson.M{"$nin": bson.A{nil, "", viewerID}}}}},
		{{Key: "$count", Value: "n"}},
	}

	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to count counterparts: %w", err)
	}
	defer cur.Close(ctx)

	var res []struct {
		N int `bson:"n"`
	}
	if err := cur.All(ctx, &res); err != nil {
		return 0, fmt.Errorf("failed to decode counterpart count: %w", err)
	}
	if len(res) == 0 {
		return 0, nil
	}
	return res[0].N, nil
}

func (s *Mongo) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := s.coll.CountDocuments(ctx, bson.M{"to": recipientID, "read": false})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}
	return n, nil
}

func (s *Mongo) SetRead(ctx context.Context, id, recipientID string, read bool) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "to": recipientID},
		bson.M{"$set": bson.M{"read": read}},
	)
	if err != nil {
		return fmt.Errorf("failed to set read: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("message %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (s *Mongo) MarkAllRead(ctx context.Context, recipientID, senderID string) (model.ReadSweepResult, error) {
	var out model.ReadSweepResult
	err := s.atomically(ctx, func(ctx context.Context) error {
		res, err := s.coll.UpdateMany(ctx,
			bson.M{
				"to":   recipientID,
				"read": false,
				"$or":  bson.A{bson.M{"fromAdmin": senderID}, bson.M{"fromUser": senderID}},
			},
			bson.M{"$set": bson.M{"read": true}},
		)
		if err != nil {
			return err
		}
		out = model.ReadSweepResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}
		return nil
	})
	if err != nil {
		return model.ReadSweepResult{}, fmt.Errorf("failed to mark conversation read: %w", err)
	}
	return out, nil
}

func (s *Mongo) DeleteBetween(ctx context.Context, pair conversation.Pair) (int64, error) {
	var n int64
	err := s.atomically(ctx, func(ctx context.Context) error {
		res, err := s.coll.DeleteMany(ctx, mongoFilter(Query{Between: pair}))
		if err != nil {
			return err
		}
		n = res.DeletedCount
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete conversation: %w", err)
	}
	return n, nil
}

func (s *Mongo) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

// Close is a no-op: the client is shared and owned by the caller.
func (s *Mongo) Close(ctx context.Context) error {
	return nil
}

// atomically runs fn in a session transaction when enabled.
func (s *Mongo) atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, bulkTimeout)
	defer cancel()

	if !s.transactional {
		return fn(ctx)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// checkTransactions asks the server for its topology.
func checkTransactions(ctx context.Context, db *mongo.Database) error {
	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	if err := db.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		return fmt.Errorf("failed to read mongo topology: %w", err)
	}
	if !supportsTransactions(hello.SetName, hello.Msg) {
		return errors.New("mongo deployment is standalone and cannot run transactions; use a replica set or set MONGO_TRANSACTIONS=false")
	}
	return nil
}

// supportsTransactions reports whether a hello reply comes from a replica
// set member or a mongos router.
func supportsTransactions(setName, msg string) bool {
	return setName != "" || msg == "isdbgrid"
}

// singleSender keeps documents with exactly one of fromAdmin/fromUser set,
// the same documents toMessage accepts.
var singleSender = bson.M{"$or": bson.A{
	bson.M{"fromAdmin": bson.M{"$nin": bson.A{nil, ""}}, "fromUser": bson.M{"$in": bson.A{nil, ""}}},
	bson.M{"fromUser": bson.M{"$nin": bson.A{nil, ""}}, "fromAdmin": bson.M{"$in": bson.A{nil, ""}}},
}}

func mongoFilter(q Query) bson.M {
	and := bson.A{singleSender}
	if q.To != "" {
		and = append(and, bson.M{"to": q.To})
	}
	if q.Involving != "" {
		and = append(and, bson.M{"$or": bson.A{
			bson.M{"to": q.Involving},
			bson.M{"fromAdmin": q.Involving},
			bson.M{"fromUser": q.Involving},
		}})
	}
	if !q.Between.IsZero() {
		a, b := q.Between.A, q.Between.B
		and = append(and, bson.M{"$or": bson.A{
			bson.M{"fromAdmin": a, "to": b},
			bson.M{"fromUser": a, "to": b},
			bson.M{"fromAdmin": b, "to": a},
			bson.M{"fromUser": b, "to": a},
		}})
	}
	if q.FromAccountsOnly {
		and = append(and, bson.M{"fromUser": bson.M{"$exists": true, "$ne": ""}})
	}
	if q.UnreadOnly {
		and = append(and, bson.M{"read": false})
	}
	return bson.M{"$and": and}
}

// mongoCounterpart mirrors conversation.Counterpart as an aggregation expression.
func mongoCounterpart(viewerID string) bson.M {
	return bson.M{"$cond": bson.A{
		bson.M{"$ne": bson.A{bson.M{"$ifNull": bson.A{"$fromAdmin", ""}}, ""}},
		"$fromAdmin",
		bson.M{"$cond": bson.A{
			bson.M{"$eq": bson.A{"$fromUser", viewerID}},
			"$to",
			"$fromUser",
		}},
	}}
}
