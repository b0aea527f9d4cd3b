package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"v2scrape/collector/model"
	"v2scrape/internal/shared/logger"
	"v2scrape/internal/shared/types"
)

const (
	configsCollection = "configs"
	runsCollection    = "runs"
	configTTL         = 7 * 24 * time.Hour // 连续 7 天没有再出现的配置会被 Mongo 自动清理
	bulkChunk         = 1000
)

// configDocument 是 configs 集合中的文档，以链接本身作为 _id。
type configDocument struct {
	Link      string    `bson:"_id"`
	Protocol  string    `bson:"protocol"`
	Name      string    `bson:"name,omitempty"`
	Source    string    `bson:"source"`
	Countries []string  `bson:"countries,omitempty"`
	Reachable bool      `bson:"reachable"`
	LatencyMs int64     `bson:"latency_ms,omitempty"`
	RunID     string    `bson:"run_id"`
	LastSeen  time.Time `bson:"last_seen"`
}

// runDocument 是 runs 集合中的文档
type runDocument struct {
	model.RunRecord `bson:",inline"`
	Protocols       []model.ProtocolEntry `bson:"protocols"`
	Countries       []model.CountryEntry  `bson:"countries"`
}

// MongoSink 把每次运行的配置和统计归档到 MongoDB。
type MongoSink struct {
	client  *mongo.Client
	configs *mongo.Collection
	runs    *mongo.Collection
	timeout time.Duration
}

// NewMongoSink 连接 MongoDB 并创建索引。
func NewMongoSink(ctx context.Context, cfg types.MongoConf) (*MongoSink, error) {
	l := logger.WithComponent("Collector/Mongo")

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	clientOptions := options.Client().ApplyURI(cfg.DSN)
	clientOptions.SetConnectTimeout(timeout)
	clientOptions.SetServerSelectionTimeout(timeout)

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &MongoSink{
		client:  client,
		configs: db.Collection(configsCollection),
		runs:    db.Collection(runsCollection),
		timeout: timeout,
	}
	if err := s.createIndexes(connectCtx); err != nil {
		l.Warn().Err(err).Msg("Failed to create MongoDB indexes.")
	}

	l.Info().Str("database", cfg.Database).Msg("Connected to MongoDB.")
	return s, nil
}

func (s *MongoSink) createIndexes(ctx context.Context) error {
	_, err := s.configs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{bson.E{Key: "protocol", Value: 1}}},
		{Keys: bson.D{bson.E{Key: "countries", Value: 1}}},
		{
			Keys:    bson.D{bson.E{Key: "last_seen", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(configTTL.Seconds())),
		},
	})
	if err != nil {
		return err
	}
	_, err = s.runs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{bson.E{Key: "timestamp", Value: -1}},
	})
	return err
}

func (s *MongoSink) Name() string {
	return "mongodb"
}

// Publish upsert 本次运行的所有配置，并插入一条运行记录。
func (s *MongoSink) Publish(ctx context.Context, res *model.RunResult, _ []string) error {
	l := logger.WithComponent("Collector/Mongo")

	docs := configDocuments(res)
	for start := 0; start < len(docs); start += bulkChunk {
		end := min(start+bulkChunk, len(docs))
		writes := make([]mongo.WriteModel, 0, end-start)
		for _, d := range docs[start:end] {
			writes = append(writes, mongo.NewReplaceOneModel().
				SetFilter(bson.M{"_id": d.Link}).
				SetReplacement(d).
				SetUpsert(true))
		}

		opCtx, cancel := context.WithTimeout(ctx, s.timeout)
		_, err := s.configs.BulkWrite(opCtx, writes, options.BulkWrite().SetOrdered(false))
		cancel()
		if err != nil {
			return fmt.Errorf("failed to upsert configs: %w", err)
		}
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.runs.InsertOne(opCtx, runDocumentFrom(res)); err != nil {
		return fmt.Errorf("failed to insert run record: %w", err)
	}

	l.Info().Int("configs", len(docs)).Str("run_id", res.Record.ID).Msg("Run archived to MongoDB.")
	return nil
}

func (s *MongoSink) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func configDocuments(res *model.RunResult) []configDocument {
	docs := make([]configDocument, 0, len(res.Configs))
	for _, c := range res.Configs {
		docs = append(docs, configDocument{
			Link:      c.Link,
			Protocol:  c.Protocol,
			Name:      c.Name,
			Source:    c.Source,
			Countries: c.Countries,
			Reachable: c.Reachable,
			LatencyMs: c.Latency.Milliseconds(),
			RunID:     res.Record.ID,
			LastSeen:  res.Record.Timestamp,
		})
	}
	return docs
}

func runDocumentFrom(res *model.RunResult) runDocument {
	return runDocument{
		RunRecord: res.Record,
		Protocols: res.Protocols,
		Countries: res.Countries,
	}
}
