package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/gurkanbulca/collabdesk/internal/events"
	"github.com/gurkanbulca/collabdesk/internal/models"
	"github.com/gurkanbulca/collabdesk/pkg/logger"
)

// MongoStore implements Store on MongoDB
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	log    *logger.Logger

	// transactions needs a replica set or sharded cluster. Without it a
	// submission can be stored while its task transition is lost.
	transactions bool
	inTx         bool
}

// NewMongoStore creates a store over the named database
func NewMongoStore(client *mongo.Client, database string, transactions bool, log *logger.Logger) *MongoStore {
	if log == nil {
		log = logger.NewNop()
	}
	return &MongoStore{
		client:       client,
		db:           client.Database(database),
		log:          log,
		transactions: transactions,
	}
}

func (s *MongoStore) Tasks() TaskRepository {
	return &mongoTaskRepository{coll: s.db.Collection(events.CollectionTasks)}
}

func (s *MongoStore) Submissions() SubmissionRepository {
	return &mongoSubmissionRepository{coll: s.db.Collection(events.CollectionSubmissions)}
}

func (s *MongoStore) Users() UserRepository {
	return &mongoUserRepository{coll: s.db.Collection(events.CollectionUsers)}
}

// WithinTx implements Store with a session transaction when enabled
func (s *MongoStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.inTx || !s.transactions {
		return fn(ctx, s)
	}

	session, err := s.client.StartSession()
	if err != nil {
		return &models.PersistenceError{Op: "start session", Err: err}
	}
	defer session.EndSession(ctx)

	txStore := *s
	txStore.inTx = true

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &txStore)
	})
	return err
}

// Watch feeds change streams of the store's collections into bus until ctx
// is cancelled. Changes that arrive together are published as one batch.
func (s *MongoStore) Watch(ctx context.Context, bus events.Publisher) error {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "ns.coll", Value: bson.D{{Key: "$in", Value: bson.A{
				events.CollectionTasks, events.CollectionSubmissions, events.CollectionUsers,
			}}}},
			{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"insert", "update", "replace", "delete"}}}},
		}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	stream, err := s.db.Watch(ctx, pipeline, opts)
	if err != nil {
		return fmt.Errorf("open change stream: %w", err)
	}
	defer stream.Close(context.Background())

	var batch []events.Change
	for stream.Next(ctx) {
		change, err := decodeChange(stream.Current)
		if err != nil {
			s.log.Warn("skipping undecodable change event", zap.Error(err))
		} else {
			batch = append(batch, change)
		}

		if stream.RemainingBatchLength() == 0 && len(batch) > 0 {
			bus.Publish(batch...)
			batch = nil
		}
	}

	if err := stream.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("change stream: %w", err)
	}
	return nil
}

type changeEvent struct {
	OperationType string `bson:"operationType"`
	NS            struct {
		Coll string `bson:"coll"`
	} `bson:"ns"`
	DocumentKey struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument bson.Raw `bson:"fullDocument"`
}

func decodeChange(raw bson.Raw) (events.Change, error) {
	var ev changeEvent
	if err := bson.Unmarshal(raw, &ev); err != nil {
		return events.Change{}, err
	}

	change := events.Change{
		Collection: ev.NS.Coll,
		DocumentID: ev.DocumentKey.ID,
		At:         time.Now().UTC(),
	}
	switch ev.OperationType {
	case "insert":
		change.Op = events.OpInsert
	case "delete":
		change.Op = events.OpDelete
	default:
		change.Op = events.OpUpdate
	}

	if len(ev.FullDocument) > 0 {
		switch ev.NS.Coll {
		case events.CollectionTasks:
			var t models.Task
			if err := bson.Unmarshal(ev.FullDocument, &t); err != nil {
				return events.Change{}, err
			}
			change.Document = &t
		case events.CollectionSubmissions:
			var sub models.Submission
			if err := bson.Unmarshal(ev.FullDocument, &sub); err != nil {
				return events.Change{}, err
			}
			change.Document = &sub
		}
	}
	return change, nil
}

type mongoTaskRepository struct {
	coll *mongo.Collection
}

func (r *mongoTaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	var t models.Task
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", models.ErrTaskNotFound, id)
		}
		return nil, &models.PersistenceError{Op: "get task", ID: id, Err: err}
	}
	return &t, nil
}

func (r *mongoTaskRepository) Create(ctx context.Context, t *models.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Labels == nil {
		t.Labels = models.StringSet{}
	}
	if _, err := r.coll.InsertOne(ctx, t); err != nil {
		return &models.PersistenceError{Op: "create task", ID: t.ID, Err: err}
	}
	return nil
}

func (r *mongoTaskRepository) Save(ctx context.Context, t *models.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": t.ID}, t)
	if err != nil {
		return &models.PersistenceError{Op: "save task", ID: t.ID, Err: err}
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", models.ErrTaskNotFound, t.ID)
	}
	return nil
}

func (r *mongoTaskRepository) List(ctx context.Context, filter ListFilter) ([]*models.Task, error) {
	query := bson.M{}
	if len(filter.Statuses) > 0 {
		query["status"] = bson.M{"$in": filter.Statuses}
	}
	if filter.AssigneeID != "" {
		query["assigneeId"] = filter.AssigneeID
	}
	if filter.ProjectID != "" {
		query["projectId"] = filter.ProjectID
	}
	if filter.CollaborationID != "" {
		query["collaborationId"] = filter.CollaborationID
	}
	if filter.Label != "" {
		query["labels"] = filter.Label
	}
	if filter.CompletedFrom != nil {
		from := filter.CompletedFrom.UTC()
		query["$or"] = bson.A{
			bson.M{"completedAt": bson.M{"$gte": from}},
			bson.M{"completedAt": bson.M{"$exists": false}, "updatedAt": bson.M{"$gte": from}},
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	cursor, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, &models.PersistenceError{Op: "list tasks", Err: err}
	}
	defer cursor.Close(ctx)

	var tasks []*models.Task
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, &models.PersistenceError{Op: "list tasks", Err: err}
	}
	return tasks, nil
}

type mongoSubmissionRepository struct {
	coll *mongo.Collection
}

func (r *mongoSubmissionRepository) Create(ctx context.Context, s *models.Submission) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if _, err := r.coll.InsertOne(ctx, s); err != nil {
		return &models.PersistenceError{Op: "create submission", ID: s.ID, Err: err}
	}
	return nil
}

func (r *mongoSubmissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	var s models.Submission
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&s); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", models.ErrSubmissionNotFound, id)
		}
		return nil, &models.PersistenceError{Op: "get submission", ID: id, Err: err}
	}
	return &s, nil
}

func (r *mongoSubmissionRepository) ListByTask(ctx context.Context, taskID string) ([]*models.Submission, error) {
	opts := options.Find().SetSort(bson.D{{Key: "submittedAt", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{"taskId": taskID}, opts)
	if err != nil {
		return nil, &models.PersistenceError{Op: "list submissions", ID: taskID, Err: err}
	}
	defer cursor.Close(ctx)

	var subs []*models.Submission
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, &models.PersistenceError{Op: "list submissions", ID: taskID, Err: err}
	}
	return subs, nil
}

type mongoUserRepository struct {
	coll *mongo.Collection
}

func (r *mongoUserRepository) SetRank(ctx context.Context, userID, rankKey string, rank int, at time.Time) error {
	update := bson.M{"$set": bson.M{
		"ranks." + rankKey: rank,
		"rankUpdatedAt":    at.UTC(),
	}}
	if _, err := r.coll.UpdateOne(ctx, bson.M{"_id": userID}, update, options.Update().SetUpsert(true)); err != nil {
		return &models.PersistenceError{Op: "set " + rankKey, ID: userID, Err: err}
	}
	return nil
}

func (r *mongoUserRepository) ClearRanks(ctx context.Context, rankKey string, keep []string) error {
	if keep == nil {
		keep = []string{}
	}
	field := "ranks." + rankKey
	filter := bson.M{"_id": bson.M{"$nin": keep}, field: bson.M{"$exists": true}}
	if _, err := r.coll.UpdateMany(ctx, filter, bson.M{"$unset": bson.M{field: ""}}); err != nil {
		return &models.PersistenceError{Op: "clear " + rankKey, Err: err}
	}
	return nil
}

func (r *mongoUserRepository) GetRanks(ctx context.Context, userID string) (map[string]int, error) {
	var doc struct {
		Ranks map[string]int `bson:"ranks"`
	}
	err := r.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return map[string]int{}, nil
	}
	if err != nil {
		return nil, &models.PersistenceError{Op: "get ranks", ID: userID, Err: err}
	}
	if doc.Ranks == nil {
		doc.Ranks = map[string]int{}
	}
	return doc.Ranks, nil
}
