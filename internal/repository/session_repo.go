package repository

import (
	"classplay/internal/model"
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SessionArchive stores finished sessions for class history
type SessionArchive interface {
	Save(ctx context.Context, session *model.ArchivedSession) error
	GetByID(ctx context.Context, id string) (*model.ArchivedSession, error)
	ListByClass(ctx context.Context, classID string, limit int64) ([]*model.ArchivedSession, error)
}

type sessionArchive struct {
	collection *mongo.Collection
}

func NewSessionArchive(client *mongo.Client, database string) SessionArchive {
	db := client.Database(database)
	return &sessionArchive{
		collection: db.Collection("archived_sessions"),
	}
}

// EnsureIndexes creates the class history index
func EnsureIndexes(ctx context.Context, client *mongo.Client, database string) error {
	_, err := client.Database(database).Collection("archived_sessions").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "classId", Value: 1}, {Key: "finishedAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create archive index: %w", err)
	}
	return nil
}

func (r *sessionArchive) Save(ctx context.Context, session *model.ArchivedSession) error {
	// Upsert so finishing twice keeps one document
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": session.ID}, session, opts)
	return err
}

func (r *sessionArchive) GetByID(ctx context.Context, id string) (*model.ArchivedSession, error) {
	var session model.ArchivedSession
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *sessionArchive) ListByClass(ctx context.Context, classID string, limit int64) ([]*model.ArchivedSession, error) {
	opts := options.Find().SetSort(bson.D{{Key: "finishedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := r.collection.Find(ctx, bson.M{"classId": classID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var sessions []*model.ArchivedSession
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}
