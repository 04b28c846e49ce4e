package deadman

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Reshigan/Heirloom-sub004/internal/models"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	return gdb, mock
}

func TestSwitchStoreUpdateIfGuardsOnStatus(t *testing.T) {
	gdb, mock := newMockDB(t)
	store := NewGormSwitchStore(gdb)
	userID := uuid.New()

	mock.ExpectExec(`UPDATE "dead_man_switches" SET .* WHERE user_id = .* AND status IN`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := store.UpdateIf(userID,
		[]models.SwitchStatus{models.SwitchWarning},
		map[string]interface{}{"status": models.SwitchTriggered, "triggered_at": time.Now()})
	if err != nil {
		t.Fatalf("UpdateIf: %v", err)
	}
	if !updated {
		t.Error("one affected row must report updated")
	}

	// The row moved on: zero rows affected is a benign no-op, not an error.
	mock.ExpectExec(`UPDATE "dead_man_switches" SET .* WHERE user_id = .* AND status IN`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	updated, err = store.UpdateIf(userID,
		[]models.SwitchStatus{models.SwitchWarning},
		map[string]interface{}{"status": models.SwitchTriggered})
	if err != nil {
		t.Fatalf("UpdateIf (moved row): %v", err)
	}
	if updated {
		t.Error("zero affected rows must report not updated")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestVerificationStoreMarkVerifiedIsConditional(t *testing.T) {
	gdb, mock := newMockDB(t)
	store := NewGormVerificationStore(gdb)
	id := uuid.New()

	mock.ExpectExec(`UPDATE "switch_verifications" SET .* WHERE id = .* AND verified = false`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	flipped, err := store.MarkVerified(id, time.Now())
	if err != nil {
		t.Fatalf("MarkVerified: %v", err)
	}
	if !flipped {
		t.Error("first confirmation must flip the row")
	}

	mock.ExpectExec(`UPDATE "switch_verifications" SET .* WHERE id = .* AND verified = false`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	flipped, err = store.MarkVerified(id, time.Now())
	if err != nil {
		t.Fatalf("MarkVerified (repeat): %v", err)
	}
	if flipped {
		t.Error("an already-verified row must not flip again")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
