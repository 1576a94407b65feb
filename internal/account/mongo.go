package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/inkwell-books/storefront-messaging/internal/apperr"
	"github.com/inkwell-books/storefront-messaging/internal/model"
)

// UsersCollection is the storefront's account collection.
const UsersCollection = "users"

const opTimeout = 5 * time.Second

type userDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	Email     string             `bson:"email"`
	Name      string             `bson:"name"`
	Avatar    string             `bson:"avatar,omitempty"`
	Role      string             `bson:"role"`
	Blocked   bool               `bson:"isBlocked"`
	LastLogin time.Time          `bson:"lastLogin,omitempty"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (d *userDoc) toAccount() model.Account {
	role := model.RoleUser
	if d.Role == string(model.RoleAdmin) {
		role = model.RoleAdmin
	}
	return model.Account{
		ID:          d.ID.Hex(),
		Email:       d.Email,
		DisplayName: d.Name,
		AvatarRef:   d.Avatar,
		Role:        role,
		Blocked:     d.Blocked,
		LastLoginAt: d.LastLogin.UTC(),
		CreatedAt:   d.CreatedAt.UTC(),
	}
}

// projection limits reads to the fields the messaging core uses.
var projection = bson.M{
	"email": 1, "name": 1, "avatar": 1, "role": 1,
	"isBlocked": 1, "lastLogin": 1, "createdAt": 1,
}

// Mongo reads accounts from the storefront's users collection. Account ids
// are ObjectID hex strings.
type Mongo struct {
	coll *mongo.Collection
}

// NewMongo creates a directory over db's users collection.
func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{coll: db.Collection(UsersCollection)}
}

func (d *Mongo) Get(ctx context.Context, id string) (*model.Account, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", id, apperr.ErrNotFound)
	}
	return d.findOne(ctx, bson.M{"_id": oid}, "account "+id)
}

func (d *Mongo) GetMany(ctx context.Context, ids []string) (map[string]model.Account, error) {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	out := make(map[string]model.Account, len(oids))
	if len(oids) == 0 {
		return out, nil
	}

	accounts, err := d.find(ctx, bson.M{"_id": bson.M{"$in": oids}}, options.Find().SetProjection(projection))
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		out[a.ID] = a
	}
	return out, nil
}

func (d *Mongo) FindAdminByEmail(ctx context.Context, email string) (*model.Account, error) {
	return d.findOne(ctx, bson.M{"email": email, "role": string(model.RoleAdmin)}, "admin "+email)
}

func (d *Mongo) ListAdmins(ctx context.Context, includeBlocked bool) ([]model.Account, error) {
	filter := bson.M{"role": string(model.RoleAdmin)}
	if !includeBlocked {
		filter["isBlocked"] = bson.M{"$ne": true}
	}
	return d.find(ctx, filter, options.Find().SetProjection(projection).SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (d *Mongo) findOne(ctx context.Context, filter bson.M, what string) (*model.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc userDoc
	err := d.coll.FindOne(ctx, filter, options.FindOne().SetProjection(projection)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", what, err)
	}
	a := doc.toAccount()
	return &a, nil
}

func (d *Mongo) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := d.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find accounts: %w", err)
	}
	defer cur.Close(ctx)

	var out []model.Account
	for cur.Next(ctx) {
		var doc userDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode account: %w", err)
		}
		out = append(out, doc.toAccount())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return out, nil
}
