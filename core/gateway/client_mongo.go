package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/relabs-tech/pmpgw/core/config"
)

// mongoClient is the C3 document-store adapter.
type mongoClient struct {
	id      string
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
	resil   *Resilient
}

func newMongoClient(id string, def config.ClientDefinition) (Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cl, err := mongo.Connect(ctx, options.Client().ApplyURI(def.ConnectionString))
	if err != nil {
		return nil, err
	}
	return &mongoClient{
		id:      id,
		client:  cl,
		db:      cl.Database(def.Database),
		timeout: time.Duration(def.TimeoutSeconds) * time.Second,
		resil:   NewResilient(def.Retry, nil),
	}, nil
}

func (c *mongoClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.client.Disconnect(ctx)
}

func (c *mongoClient) Execute(ctx context.Context, op config.BackendOp, ictx *InterpolationContext) (SubrequestResult, *BackendError) {
	mop, ok := op.(config.MongoOp)
	if !ok {
		return nil, protocolError("mongo client received non-mongo op")
	}
	filterStr := Expand(mop.Filter, ictx)
	docStr := Expand(mop.Document, ictx)
	updateStr := Expand(mop.Update, ictx)

	return c.resil.Do(ctx, func(ctx context.Context) (SubrequestResult, *BackendError) {
		return c.dispatch(ctx, mop, filterStr, docStr, updateStr)
	})
}

func (c *mongoClient) dispatch(ctx context.Context, mop config.MongoOp, filterStr, docStr, updateStr string) (SubrequestResult, *BackendError) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	coll := c.db.Collection(mop.Collection)

	result := newResult(c.id, "mongodb")
	result["collection"] = mop.Collection
	result["operation"] = string(mop.Operation)

	switch mop.Operation {
	case config.MongoFind:
		filter, err := parseBSONFilter(filterStr)
		if err != nil {
			return nil, protocolError(err.Error())
		}
		limit := int64(100)
		if mop.Limit != nil {
			limit = *mop.Limit
		}
		cur, err := coll.Find(ctx, filter, options.Find().SetLimit(limit))
		if err != nil {
			return nil, classifyMongoError(err)
		}
		defer cur.Close(ctx)
		var docs []interface{}
		for cur.Next(ctx) {
			var d bson.M
			if err := cur.Decode(&d); err != nil {
				return nil, protocolError(err.Error())
			}
			docs = append(docs, map[string]interface{}(d))
		}
		result["documents"] = docs
		result["count"] = len(docs)

	case config.MongoFindOne:
		filter, err := parseBSONFilter(filterStr)
		if err != nil {
			return nil, protocolError(err.Error())
		}
		var d bson.M
		err = coll.FindOne(ctx, filter).Decode(&d)
		switch {
		case err == mongo.ErrNoDocuments:
			result["documents"] = []interface{}{}
			result["count"] = 0
		case err != nil:
			return nil, classifyMongoError(err)
		default:
			result["documents"] = []interface{}{map[string]interface{}(d)}
			result["count"] = 1
		}

	case config.MongoInsert:
		doc, err := parseBSONFilter(docStr)
		if err != nil {
			return nil, protocolError(err.Error())
		}
		if _, err := coll.InsertOne(ctx, doc); err != nil {
			return nil, classifyMongoError(err)
		}
		result["documents"] = []interface{}{}
		result["count"] = 1

	case config.MongoUpdate:
		filter, err := parseBSONFilter(filterStr)
		if err != nil {
			return nil, protocolError(err.Error())
		}
		update, err := parseBSONFilter(updateStr)
		if err != nil {
			return nil, protocolError(err.Error())
		}
		res, err := coll.UpdateMany(ctx, filter, update)
		if err != nil {
			return nil, classifyMongoError(err)
		}
		result["documents"] = []interface{}{}
		result["count"] = res.ModifiedCount

	case config.MongoDelete:
		filter, err := parseBSONFilter(filterStr)
		if err != nil {
			return nil, protocolError(err.Error())
		}
		res, err := coll.DeleteMany(ctx, filter)
		if err != nil {
			return nil, classifyMongoError(err)
		}
		result["documents"] = []interface{}{}
		result["count"] = res.DeletedCount

	default:
		return nil, protocolError(fmt.Sprintf("unknown mongo operation %q", mop.Operation))
	}
	return result, nil
}

// parseBSONFilter decodes an already-interpolated JSON string into a bson.M.
// Interpolation is textual (spec §9): a filter containing user-controlled
// values is the caller's responsibility.
func parseBSONFilter(s string) (bson.M, error) {
	if s == "" {
		return bson.M{}, nil
	}
	var generic map[string]interface{}
	if err := json.Unmarshal([]byte(s), &generic); err != nil {
		return nil, err
	}
	return bson.M(generic), nil
}

func classifyMongoError(err error) *BackendError {
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return transportError(err.Error())
	}
	return protocolError(err.Error())
}
