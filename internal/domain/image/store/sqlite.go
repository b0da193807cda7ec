package store

import (
	"context"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"

	"matrix-server-go/internal/domain/image"
	"matrix-server-go/internal/platform/errors"
	"matrix-server-go/internal/platform/storage"
)

type sqliteStore struct {
	db *gorm.DB
}

// NewSQLite builds a gorm-backed image store. The images table comes from
// the storage migrations.
func NewSQLite(db *gorm.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Save(ctx context.Context, meta image.Image, data []byte) (image.Image, error) {
	meta = prepare(meta, data)
	record := &storage.ImageRecord{
		ID:          meta.ID,
		Name:        meta.Name,
		ContentType: meta.ContentType,
		Size:        meta.Size,
		Data:        data,
		CreatedAt:   meta.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return image.Image{}, errors.Wrap(errors.KindStorage, "image.save", "failed to save image", err)
	}
	return meta, nil
}

func (s *sqliteStore) Get(ctx context.Context, id string) (*image.Image, error) {
	var record storage.ImageRecord
	err := s.db.WithContext(ctx).
		Select("id", "name", "content_type", "size", "created_at").
		Where("id = ?", id).
		First(&record).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.KindStorage, "image.get", "failed to find image", err)
	}
	meta := toImage(&record)
	return &meta, nil
}

func (s *sqliteStore) GetBinaryByID(ctx context.Context, id string) ([]byte, error) {
	var record storage.ImageRecord
	err := s.db.WithContext(ctx).Select("data").Where("id = ?", id).First(&record).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.KindStorage, "image.get_binary", "failed to load image data", err)
	}
	return record.Data, nil
}

func (s *sqliteStore) List(ctx context.Context) ([]image.Image, error) {
	var records []storage.ImageRecord
	err := s.db.WithContext(ctx).
		Select("id", "name", "content_type", "size", "created_at").
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "image.list", "failed to list images", err)
	}
	out := make([]image.Image, 0, len(records))
	for i := range records {
		out = append(out, toImage(&records[i]))
	}
	return out, nil
}

func (s *sqliteStore) Delete(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&storage.ImageRecord{})
	if res.Error != nil {
		return false, errors.Wrap(errors.KindStorage, "image.delete", "failed to delete image", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *sqliteStore) Stats(ctx context.Context) (map[string]any, error) {
	var stats struct {
		Total int64
		Bytes int64
	}
	err := s.db.WithContext(ctx).Model(&storage.ImageRecord{}).
		Select("COUNT(*) AS total, COALESCE(SUM(size), 0) AS bytes").
		Scan(&stats).Error
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "image.stats", "failed to count images", err)
	}
	return map[string]any{
		"type":  DriverSQLite,
		"total": stats.Total,
		"bytes": stats.Bytes,
	}, nil
}

func (s *sqliteStore) Driver() string {
	return DriverSQLite
}

// Close is a no-op; the database handle is owned by the caller.
func (s *sqliteStore) Close(context.Context) error {
	return nil
}

func toImage(record *storage.ImageRecord) image.Image {
	return image.Image{
		ID:          record.ID,
		Name:        record.Name,
		ContentType: record.ContentType,
		Size:        record.Size,
		CreatedAt:   record.CreatedAt,
	}
}
