package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/inodev-web/alouaoui-school-sub001/internal/model"
)

// Integration tests run against a real Postgres with the migrations applied:
//
//	INTEGRATION_TESTS=1 DATABASE_URL=postgres://... go test ./internal/db/
func integrationStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") != "1" {
		t.Skip("set INTEGRATION_TESTS=1 to run database tests")
	}
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := NewPool(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return NewStore(pool)
}

func createTestStudent(t *testing.T, store *Store) model.Account {
	t.Helper()
	ctx := context.Background()
	account := model.Account{
		UUID:         uuid.New(),
		Role:         model.RoleStudent,
		Email:        fmt.Sprintf("student-%s@test.local", uuid.NewString()[:8]),
		PasswordHash: "x",
		FirstName:    "Test",
		LastName:     "Student",
		QRToken:      uuid.NewString(),
	}
	id, err := store.CreateAccount(ctx, account)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	account.ID = id
	return account
}

func TestResolveAccountByEveryRef(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()
	account := createTestStudent(t, store)

	byID, err := store.ResolveAccount(ctx, model.RefByID(account.ID))
	if err != nil || byID.ID != account.ID {
		t.Fatalf("resolve by id: %v (got %d)", err, byID.ID)
	}
	byUUID, err := store.ResolveAccount(ctx, model.RefByUUID(account.UUID))
	if err != nil || byUUID.ID != account.ID {
		t.Fatalf("resolve by uuid: %v (got %d)", err, byUUID.ID)
	}
	byToken, err := store.ResolveAccount(ctx, model.RefByQRToken(account.QRToken))
	if err != nil || byToken.ID != account.ID {
		t.Fatalf("resolve by qr token: %v (got %d)", err, byToken.ID)
	}

	if _, err := store.ResolveAccount(ctx, model.RefByQRToken(uuid.NewString())); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown token, got %v", err)
	}
}

func TestAttendanceUniqueConstraintIsBackstop(t *testing.T) {
	store := integrationStore(t)
	ctx := context.Background()
	account := createTestStudent(t, store)

	session := model.ScanSession{
		ID:          uuid.New(),
		TeacherID:   insertTestTeacher(t, store),
		SessionDate: time.Now().UTC().Truncate(24 * time.Hour),
		StartsAt:    time.Now().UTC(),
		EndsAt:      time.Now().UTC().Add(12 * time.Hour),
		CreatedBy:   account.ID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	record := model.AttendanceRecord{
		ID:         uuid.New(),
		SessionID:  session.ID,
		AccountID:  account.ID,
		Status:     model.AttendancePresent,
		RecordedBy: account.ID,
		RecordedAt: time.Now().UTC(),
	}
	if err := store.CreateAttendance(ctx, record); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	dup := record
	dup.ID = uuid.New()
	err := store.CreateAttendance(ctx, dup)
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation on duplicate attendance, got %v", err)
	}
}

func insertTestTeacher(t *testing.T, store *Store) int64 {
	t.Helper()
	var id int64
	err := store.pool.QueryRow(context.Background(), `
		INSERT INTO teachers (name, is_alouaoui_teacher)
		VALUES ($1, true)
		RETURNING id
	`, "Teacher "+uuid.NewString()[:8]).Scan(&id)
	if err != nil {
		t.Fatalf("insert teacher: %v", err)
	}
	return id
}
