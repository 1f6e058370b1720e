package mongo

import (
	"Huddle/internal/api/config"
	"Huddle/internal/pkg/logger"
	"context"
	"errors"
	log "log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var errNoReplicaSet = errors.New("mongo store: live queries need a replica set or sharded cluster")

// InitMongo connects, checks that change streams are available and prepares
// the document collection.
func InitMongo(cfg config.MongoConfig) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(cfg.URL).
		SetMonitor(logger.NewMongoMonitor(cfg.SlowThreshold)),
	)
	if err != nil {
		return nil, err
	}

	db := client.Database(cfg.Database)
	setName, err := topology(ctx, db)
	if err == nil {
		err = NewStore(db).EnsureIndexes(ctx)
	}
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	log.Info("MongoDB initialized successfully", "db", cfg.Database, "replicaSet", setName)
	return db, nil
}

// topology runs hello and returns the replica set name ("mongos" behind a
// router). A standalone server has no change streams.
func topology(ctx context.Context, db *mongo.Database) (string, error) {
	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	if err := db.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		return "", err
	}
	switch {
	case hello.SetName != "":
		return hello.SetName, nil
	case hello.Msg == "isdbgrid":
		return "mongos", nil
	}
	return "", errNoReplicaSet
}
