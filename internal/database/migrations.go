package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationDropOrphanLikes        = "2024-06-01_drop_orphan_comment_likes"
	migrationRepairCommentLikeCount = "2024-06-01_repair_comment_like_count"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, log *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationDropOrphanLikes, apply: dropOrphanLikes},
		{name: migrationRepairCommentLikeCount, apply: repairCommentLikeCount},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if log != nil {
			log.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

func dropOrphanLikes(db *gorm.DB) error {
	return db.Exec("DELETE FROM comment_likes WHERE comment_id NOT IN (SELECT comment_id FROM comments)").Error
}

// repairCommentLikeCount pins like_count to the size of each comment's liker set.
func repairCommentLikeCount(db *gorm.DB) error {
	return db.Exec(`UPDATE comments SET like_count = (
		SELECT COUNT(*) FROM comment_likes WHERE comment_likes.comment_id = comments.comment_id
	)`).Error
}
