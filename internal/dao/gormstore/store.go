package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ephemeral_chat/pkg/errorx"
)

// Document 一行一个文档
type Document struct {
	Key       string    `gorm:"column:doc_key;primaryKey;size:191"`
	Value     []byte    `gorm:"column:doc_value;type:longblob;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName 指定表名
func (Document) TableName() string {
	return "documents"
}

// Store GORM 文档后端
type Store struct {
	db *gorm.DB
}

// NewStore 创建 GORM 文档后端，db 需已完成迁移
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Get 读取文档
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var doc Document
	err := s.db.WithContext(ctx).Where("doc_key = ?", key).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, errorx.Wrapf(err, errorx.CodeStoreError, "get document %s", key)
	}
	return doc.Value, true, nil
}

// Set 写入文档，主键冲突时覆盖
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	doc := Document{Key: key, Value: value, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "doc_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"doc_value", "updated_at"}),
	}).Create(&doc).Error
	if err != nil {
		return errorx.Wrapf(err, errorx.CodeStoreError, "set document %s", key)
	}
	return nil
}

// Delete 删除文档，返回是否存在过
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	res := s.db.WithContext(ctx).Where("doc_key = ?", key).Delete(&Document{})
	if res.Error != nil {
		return false, errorx.Wrapf(res.Error, errorx.CodeStoreError, "delete document %s", key)
	}
	return res.RowsAffected > 0, nil
}

// Keys 返回前缀下的所有键
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).Model(&Document{}).
		Where("doc_key LIKE ? ESCAPE '!'", likePrefix(prefix)).
		Order("doc_key").
		Pluck("doc_key", &keys).Error
	if err != nil {
		return nil, errorx.Wrapf(err, errorx.CodeStoreError, "list keys %s", prefix)
	}
	return keys, nil
}

// List 按键名顺序返回前缀下的所有文档
func (s *Store) List(ctx context.Context, prefix string) ([][]byte, error) {
	var docs []Document
	err := s.db.WithContext(ctx).
		Where("doc_key LIKE ? ESCAPE '!'", likePrefix(prefix)).
		Order("doc_key").
		Find(&docs).Error
	if err != nil {
		return nil, errorx.Wrapf(err, errorx.CodeStoreError, "list documents %s", prefix)
	}
	out := make([][]byte, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Value)
	}
	return out, nil
}

// DeleteByPrefix 删除前缀下的所有文档
func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	res := s.db.WithContext(ctx).
		Where("doc_key LIKE ? ESCAPE '!'", likePrefix(prefix)).
		Delete(&Document{})
	if res.Error != nil {
		return 0, errorx.Wrapf(res.Error, errorx.CodeStoreError, "delete documents %s", prefix)
	}
	return int(res.RowsAffected), nil
}

// likePrefix 会话 ID 中的 "_" 是 LIKE 通配符，需要转义
func likePrefix(prefix string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(prefix) + "%"
}
