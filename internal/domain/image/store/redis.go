package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"matrix-server-go/internal/domain/image"
	"matrix-server-go/internal/platform/errors"
)

const (
	fieldName        = "name"
	fieldContentType = "content_type"
	fieldSize        = "size"
	fieldCreatedAt   = "created_at"
	fieldData        = "data"
)

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a redis-backed image store. Each image is one hash.
func NewRedis(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "matrix:image:"
	}
	return &redisStore{client: client, prefix: prefix}, nil
}

func (s *redisStore) key(id string) string {
	return s.prefix + id
}

func (s *redisStore) Save(ctx context.Context, meta image.Image, data []byte) (image.Image, error) {
	meta = prepare(meta, data)
	err := s.client.HSet(ctx, s.key(meta.ID), map[string]interface{}{
		fieldName:        meta.Name,
		fieldContentType: meta.ContentType,
		fieldSize:        meta.Size,
		fieldCreatedAt:   meta.CreatedAt.Format(time.RFC3339Nano),
		fieldData:        data,
	}).Err()
	if err != nil {
		return image.Image{}, errors.Wrap(errors.KindStorage, "image.save", "failed to save image", err)
	}
	return meta, nil
}

func (s *redisStore) Get(ctx context.Context, id string) (*image.Image, error) {
	values, err := s.client.HMGet(ctx, s.key(id), fieldName, fieldContentType, fieldSize, fieldCreatedAt).Result()
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "image.get", "failed to find image", err)
	}
	if values[0] == nil {
		return nil, nil
	}
	meta, err := decodeMeta(id, values)
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *redisStore) GetBinaryByID(ctx context.Context, id string) ([]byte, error) {
	data, err := s.client.HGet(ctx, s.key(id), fieldData).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.KindStorage, "image.get_binary", "failed to load image data", err)
	}
	return data, nil
}

func (s *redisStore) ids(ctx context.Context) ([]string, error) {
	var cursor uint64
	ids := make([]string, 0)
	pattern := s.prefix + "*"
	for {
		res, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, errors.Wrap(errors.KindStorage, "image.list", "failed to scan images", err)
		}
		for _, key := range res {
			ids = append(ids, strings.TrimPrefix(key, s.prefix))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return ids, nil
}

func (s *redisStore) List(ctx context.Context) ([]image.Image, error) {
	ids, err := s.ids(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]image.Image, 0, len(ids))
	for _, id := range ids {
		meta, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			out = append(out, *meta)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *redisStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return false, errors.Wrap(errors.KindStorage, "image.delete", "failed to delete image", err)
	}
	return n > 0, nil
}

func (s *redisStore) Stats(ctx context.Context) (map[string]any, error) {
	ids, err := s.ids(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":   DriverRedis,
		"total":  len(ids),
		"prefix": s.prefix,
	}, nil
}

func (s *redisStore) Driver() string {
	return DriverRedis
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}

func decodeMeta(id string, values []interface{}) (image.Image, error) {
	meta := image.Image{ID: id}
	meta.Name, _ = values[0].(string)
	meta.ContentType, _ = values[1].(string)
	if raw, ok := values[2].(string); ok && raw != "" {
		size, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return image.Image{}, errors.Wrap(errors.KindStorage, "image.decode", "corrupt size field", err)
		}
		meta.Size = size
	}
	if raw, ok := values[3].(string); ok && raw != "" {
		created, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return image.Image{}, errors.Wrap(errors.KindStorage, "image.decode", "corrupt created_at field", err)
		}
		meta.CreatedAt = created
	}
	return meta, nil
}
