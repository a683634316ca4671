package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis keeps documents in Redis.
//
//	<index>:<sha>          list of benchmark documents (JSON), one entry per upload
//	<index>:commit:<sha>   hash holding the commit summary
//	<index>:commits        set of the shas that have a summary
type Redis struct {
	client *redis.Client
}

// OpenRedis connects to the server addressed by a redis:// or rediss:// URL
func OpenRedis(ctx context.Context, rawURL string) (*Redis, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opt.Addr, err)
	}
	return &Redis{client: client}, nil
}

func benchmarkKey(index, sha string) string { return index + ":" + sha }
func commitKey(index, sha string) string    { return index + ":commit:" + sha }
func commitSetKey(index string) string      { return index + ":commits" }

// IndexBenchmark implements Store
func (s *Redis) IndexBenchmark(ctx context.Context, index string, doc *BenchmarkDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode benchmark document: %w", err)
	}
	if err := s.client.RPush(ctx, benchmarkKey(index, doc.CommitSHA), data).Err(); err != nil {
		return fmt.Errorf("failed to push benchmark document: %w", err)
	}
	return nil
}

// UpsertCommit implements Store. HSET merges fields into an existing hash.
func (s *Redis) UpsertCommit(ctx context.Context, index string, doc *CommitDocument) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, commitKey(index, doc.SHA), map[string]interface{}{
			"@timestamp": doc.Timestamp.Format(time.RFC3339),
			"shortref":   doc.ShortRef,
			"title":      doc.Title,
			"body":       doc.Body,
			"author":     doc.Author,
		})
		pipe.SAdd(ctx, commitSetKey(index), doc.SHA)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert commit: %w", err)
	}
	return nil
}

// BenchmarkDocuments returns the documents pushed for sha
func (s *Redis) BenchmarkDocuments(ctx context.Context, index, sha string) ([]BenchmarkDocument, error) {
	raw, err := s.client.LRange(ctx, benchmarkKey(index, sha), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read benchmark documents: %w", err)
	}
	docs := make([]BenchmarkDocument, 0, len(raw))
	for _, r := range raw {
		var d BenchmarkDocument
		if err := json.Unmarshal([]byte(r), &d); err != nil {
			return nil, fmt.Errorf("failed to decode benchmark document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// Commit returns the stored summary of sha
func (s *Redis) Commit(ctx context.Context, index, sha string) (*CommitDocument, error) {
	fields, err := s.client.HGetAll(ctx, commitKey(index, sha)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read commit: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("commit %s not found in %s", sha, index)
	}
	ts, _ := time.Parse(time.RFC3339, fields["@timestamp"])
	return &CommitDocument{
		SHA:       sha,
		Timestamp: ts,
		ShortRef:  fields["shortref"],
		Title:     fields["title"],
		Body:      fields["body"],
		Author:    fields["author"],
	}, nil
}

// Close implements Store
func (s *Redis) Close() error {
	return s.client.Close()
}
