package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hiroki-koketsu/task-assignment/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// mongoTask is the stored document. seq orders tasks by insertion.
type mongoTask struct {
	model.Task `bson:",inline"`
	Seq        int64 `bson:"seq"`
}

type mongoUser struct {
	model.User `bson:",inline"`
	Seq        int64 `bson:"seq"`
}

// OpenMongo connects to MongoDB and ensures the indexes the repositories rely on.
func OpenMongo(ctx context.Context, uri, database string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(database)
	tasks := db.Collection("tasks")
	users := db.Collection("users")

	if _, err := users.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create users email index: %w", err)
	}
	if _, err := tasks.Indexes().CreateMany(connectCtx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdBy", Value: 1}, {Key: "seq", Value: 1}}},
		{Keys: bson.D{{Key: "assignedTo", Value: 1}, {Key: "seq", Value: 1}}},
	}); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create tasks indexes: %w", err)
	}

	return &Store{
		Tasks: &MongoTaskRepository{tasks: tasks},
		Users: &MongoUserRepository{users: users},
		close: client.Disconnect,
	}, nil
}

// MongoTaskRepository stores tasks in a MongoDB collection.
type MongoTaskRepository struct {
	tasks *mongo.Collection
}

// Create inserts a new task document.
func (r *MongoTaskRepository) Create(ctx context.Context, task *model.Task) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "MongoTaskRepository.Create",
		trace.WithAttributes(attribute.String("task.name", task.Name)),
	)
	defer span.End()

	now := time.Now().UTC()
	stored := task.Clone()
	stored.ID = uuid.New().String()
	stored.Version = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now

	if _, err := r.tasks.InsertOne(ctx, mongoTask{Task: *stored, Seq: now.UnixNano()}); err != nil {
		span.RecordError(err)
		return nil, model.StorageError("insert task", err)
	}

	span.SetAttributes(attribute.String("task.id", stored.ID))
	return stored, nil
}

// GetByID retrieves a task by its ID.
func (r *MongoTaskRepository) GetByID(ctx context.Context, id string) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "MongoTaskRepository.GetByID",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	var doc mongoTask
	err := r.tasks.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		span.SetAttributes(attribute.Bool("task.found", false))
		return nil, model.ErrTaskNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, model.StorageError("find task", err)
	}

	span.SetAttributes(attribute.Bool("task.found", true))
	return &doc.Task, nil
}

// Find returns matching tasks in insertion order.
func (r *MongoTaskRepository) Find(ctx context.Context, filter model.TaskFilter) ([]*model.Task, error) {
	ctx, span := tracer.Start(ctx, "MongoTaskRepository.Find")
	defer span.End()

	query := bson.M{}
	if filter.CreatedBy != "" {
		query["createdBy"] = filter.CreatedBy
	}
	if filter.AssignedTo != "" {
		query["assignedTo"] = filter.AssignedTo
	}
	if filter.Status != nil {
		query["status"] = *filter.Status
	}

	cursor, err := r.tasks.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		span.RecordError(err)
		return nil, model.StorageError("find tasks", err)
	}
	defer cursor.Close(ctx)

	tasks := make([]*model.Task, 0)
	for cursor.Next(ctx) {
		var doc mongoTask
		if err := cursor.Decode(&doc); err != nil {
			return nil, model.StorageError("decode task", err)
		}
		task := doc.Task
		tasks = append(tasks, &task)
	}
	if err := cursor.Err(); err != nil {
		return nil, model.StorageError("iterate tasks", err)
	}

	span.SetAttributes(attribute.Int("task.count", len(tasks)))
	return tasks, nil
}

// Update applies patch with a single UpdateOne filtered on id and version.
func (r *MongoTaskRepository) Update(ctx context.Context, id string, patch model.TaskPatch) (*model.Task, error) {
	ctx, span := tracer.Start(ctx, "MongoTaskRepository.Update",
		trace.WithAttributes(
			attribute.String("task.id", id),
			attribute.Int64("task.version", patch.Version),
		),
	)
	defer span.End()

	set := bson.M{"updatedAt": time.Now().UTC()}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}
	if patch.TotalHours != nil {
		set["totalHours"] = *patch.TotalHours
	}
	if patch.EndDate != nil {
		set["endDate"] = patch.EndDate.UTC()
	}
	if patch.AssignedTo != nil {
		set["assignedTo"] = *patch.AssignedTo
	}
	filter := bson.M{"_id": id, "version": patch.Version}
	if patch.CompletionDate != nil {
		set["completionDate"] = patch.CompletionDate.UTC()
		filter["completionDate"] = bson.M{"$exists": false}
	}

	res, err := r.tasks.UpdateOne(ctx, filter, bson.M{
		"$set": set,
		"$inc": bson.M{"version": 1},
	})
	if err != nil {
		span.RecordError(err)
		return nil, model.StorageError("update task", err)
	}
	if res.MatchedCount == 0 {
		n, err := r.tasks.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return nil, model.StorageError("count task", err)
		}
		if n == 0 {
			return nil, model.ErrTaskNotFound
		}
		span.SetAttributes(attribute.Bool("task.conflict", true))
		return nil, model.ErrVersionConflict
	}

	return r.GetByID(ctx, id)
}

// Count returns the current number of tasks.
func (r *MongoTaskRepository) Count(ctx context.Context) (int64, error) {
	n, err := r.tasks.EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, model.StorageError("count tasks", err)
	}
	return n, nil
}

// MongoUserRepository stores users in a MongoDB collection.
type MongoUserRepository struct {
	users *mongo.Collection
}

// Create inserts a new user. The unique email index rejects duplicates.
func (r *MongoUserRepository) Create(ctx context.Context, user *model.User) (*model.User, error) {
	ctx, span := tracer.Start(ctx, "MongoUserRepository.Create",
		trace.WithAttributes(attribute.String("user.role", string(user.Role))),
	)
	defer span.End()

	stored := *user
	stored.ID = uuid.New().String()
	stored.Email = model.NormalizeEmail(user.Email)
	stored.CreatedAt = time.Now().UTC()

	doc := mongoUser{User: stored, Seq: stored.CreatedAt.UnixNano()}
	if _, err := r.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, model.ErrEmailTaken
		}
		span.RecordError(err)
		return nil, model.StorageError("insert user", err)
	}

	span.SetAttributes(attribute.String("user.id", stored.ID))
	return &stored, nil
}

// GetByID retrieves a user by its ID.
func (r *MongoUserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	ctx, span := tracer.Start(ctx, "MongoUserRepository.GetByID",
		trace.WithAttributes(attribute.String("user.id", id)),
	)
	defer span.End()

	return r.findOne(ctx, bson.M{"_id": id})
}

// GetByEmail retrieves a user by email address.
func (r *MongoUserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	ctx, span := tracer.Start(ctx, "MongoUserRepository.GetByEmail")
	defer span.End()

	return r.findOne(ctx, bson.M{"email": model.NormalizeEmail(email)})
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (*model.User, error) {
	var doc mongoUser
	err := r.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, model.StorageError("find user", err)
	}
	return doc.toModel(), nil
}

// ListMembers returns members provisioned by createdBy, or every member when
// createdBy is empty.
func (r *MongoUserRepository) ListMembers(ctx context.Context, createdBy string) ([]*model.User, error) {
	ctx, span := tracer.Start(ctx, "MongoUserRepository.ListMembers")
	defer span.End()

	query := bson.M{"role": model.RoleMember}
	if createdBy != "" {
		query["createdBy"] = createdBy
	}
	cursor, err := r.users.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, model.StorageError("find users", err)
	}
	defer cursor.Close(ctx)

	members := make([]*model.User, 0)
	for cursor.Next(ctx) {
		var doc mongoUser
		if err := cursor.Decode(&doc); err != nil {
			return nil, model.StorageError("decode user", err)
		}
		members = append(members, doc.toModel())
	}
	if err := cursor.Err(); err != nil {
		return nil, model.StorageError("iterate users", err)
	}

	span.SetAttributes(attribute.Int("user.count", len(members)))
	return members, nil
}

func (d *mongoUser) toModel() *model.User {
	u := d.User
	return &u
}
