package database

import (
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsRepairsLikeCounts(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&commentRecord{}, &likeRecord{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	comment := commentRecord{
		CommentID:         "comment-1",
		AuthorID:          "user-1",
		AuthorDisplayName: "Ada",
		AuthorEmail:       "ada@example.com",
		Body:              "hello",
		CreatedAtNanos:    1,
		LikeCount:         5,
	}
	if err := database.Create(&comment).Error; err != nil {
		testContext.Fatalf("failed to insert comment: %v", err)
	}
	likes := []likeRecord{
		{CommentID: "comment-1", UserID: "user-2", LikedAtNanos: 2},
		{CommentID: "comment-1", UserID: "user-3", LikedAtNanos: 3},
		{CommentID: "deleted", UserID: "user-2", LikedAtNanos: 4},
	}
	if err := database.Create(&likes).Error; err != nil {
		testContext.Fatalf("failed to insert likes: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored commentRecord
	if err := database.Where("comment_id = ?", comment.CommentID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload comment: %v", err)
	}
	if stored.LikeCount != 2 {
		testContext.Fatalf("expected like count to be repaired to 2, got %d", stored.LikeCount)
	}

	var orphanCount int64
	if err := database.Model(&likeRecord{}).Where("comment_id = ?", "deleted").Count(&orphanCount).Error; err != nil {
		testContext.Fatalf("failed to count orphan likes: %v", err)
	}
	if orphanCount != 0 {
		testContext.Fatalf("expected orphan likes to be dropped, got %d", orphanCount)
	}

	for _, name := range []string{migrationDropOrphanLikes, migrationRepairCommentLikeCount} {
		var record migrationRecord
		if err := database.Where("name = ?", name).Take(&record).Error; err != nil {
			testContext.Fatalf("expected migration record %s to be created: %v", name, err)
		}
		if record.AppliedAtSeconds == 0 {
			testContext.Fatalf("expected migration timestamp to be set for %s", name)
		}
	}
}

func TestApplyMigrationsRunsOnce(testContext *testing.T) {
	database, err := OpenSQLite(filepath.Join(testContext.TempDir(), "once.db"), zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	defer Close(database)

	drift := commentRecord{CommentID: "c", AuthorID: "a", Body: "b", CreatedAtNanos: 1, LikeCount: 9}
	if err := database.Create(&drift).Error; err != nil {
		testContext.Fatalf("failed to insert comment: %v", err)
	}
	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to reapply migrations: %v", err)
	}

	var stored commentRecord
	if err := database.Where("comment_id = ?", "c").Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload comment: %v", err)
	}
	if stored.LikeCount != 9 {
		testContext.Fatalf("expected recorded migration to be skipped, got like count %d", stored.LikeCount)
	}
}

func TestOpenSQLiteRequiresPath(testContext *testing.T) {
	if _, err := OpenSQLite("", nil); err == nil {
		testContext.Fatal("expected error for empty path")
	}
}
