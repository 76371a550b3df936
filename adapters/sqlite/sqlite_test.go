package sqlite_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/artpar/paycore/adapters/sqlite"
	"github.com/artpar/paycore/domain/billing"
	"github.com/artpar/paycore/ports"
)

func setupTestDB(t *testing.T) (*sqlite.DB, func()) {
	t.Helper()

	f, err := os.CreateTemp("", "paycore-test-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	db, err := sqlite.Open(path)
	if err != nil {
		os.Remove(path)
		t.Fatalf("open database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		os.Remove(path)
		t.Fatalf("migrate: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.Remove(path)
	}

	return db, cleanup
}

func TestMigrate_Idempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("applied migrations = %d, want 2", n)
	}
}

// -----------------------------------------------------------------------------
// CustomerStore Tests
// -----------------------------------------------------------------------------

func TestCustomerStore_UpsertAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewCustomerStore(db)
	ctx := context.Background()

	if err := store.Upsert(ctx, ports.CustomerRecord{LocalID: "42", Email: "a@example.com"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.Upsert(ctx, ports.CustomerRecord{LocalID: "42", Email: "b@example.com"}); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	r, err := store.Get(ctx, "42")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if r.Email != "b@example.com" {
		t.Errorf("Email = %s, want b@example.com", r.Email)
	}
	if r.RemoteID != "" {
		t.Errorf("RemoteID = %s, want empty", r.RemoteID)
	}
	if r.Ref().Provisioned() {
		t.Error("fresh record should not be provisioned")
	}
}

func TestCustomerStore_GetNotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := sqlite.NewCustomerStore(db).Get(context.Background(), "missing")
	if !errors.Is(err, sqlite.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if !errors.Is(err, billing.ErrNotFound) {
		t.Error("ErrNotFound should match billing.ErrNotFound")
	}
}

func TestCustomerStore_SetRemoteID(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewCustomerStore(db)
	ctx := context.Background()

	if err := store.Upsert(ctx, ports.CustomerRecord{LocalID: "42", Email: "a@example.com"}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetRemoteID(ctx, "42", "cus_1"); err != nil {
		t.Fatalf("SetRemoteID failed: %v", err)
	}
	if err := store.SetRemoteID(ctx, "42", "cus_1"); err != nil {
		t.Errorf("rebinding the same id should be a no-op, got %v", err)
	}

	err := store.SetRemoteID(ctx, "42", "cus_2")
	if !errors.Is(err, sqlite.ErrRemoteIDBound) {
		t.Errorf("expected ErrRemoteIDBound, got %v", err)
	}
	if !errors.Is(err, billing.ErrConflict) {
		t.Error("ErrRemoteIDBound should match billing.ErrConflict")
	}

	r, err := store.Get(ctx, "42")
	if err != nil {
		t.Fatal(err)
	}
	if r.RemoteID != "cus_1" {
		t.Errorf("RemoteID = %s, want cus_1", r.RemoteID)
	}

	// Upsert must not clear the binding.
	if err := store.Upsert(ctx, ports.CustomerRecord{LocalID: "42", Email: "c@example.com"}); err != nil {
		t.Fatal(err)
	}
	if r, _ := store.Get(ctx, "42"); r.RemoteID != "cus_1" {
		t.Errorf("RemoteID after Upsert = %s, want cus_1", r.RemoteID)
	}
}

func TestCustomerStore_SetRemoteIDMissingRecord(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	err := sqlite.NewCustomerStore(db).SetRemoteID(context.Background(), "ghost", "cus_1")
	if !errors.Is(err, sqlite.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCustomerStore_RemoteIDUnique(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewCustomerStore(db)
	ctx := context.Background()
	for _, id := range []string{"1", "2"} {
		if err := store.Upsert(ctx, ports.CustomerRecord{LocalID: id, Email: id + "@example.com"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.SetRemoteID(ctx, "1", "cus_1"); err != nil {
		t.Fatal(err)
	}

	err := store.SetRemoteID(ctx, "2", "cus_1")
	if !errors.Is(err, billing.ErrConflict) {
		t.Errorf("expected Conflict for shared remote id, got %v", err)
	}
}

func TestCustomerStore_SetSubscriptionID(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewCustomerStore(db)
	ctx := context.Background()

	if err := store.Upsert(ctx, ports.CustomerRecord{LocalID: "42", Email: "a@example.com"}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetSubscriptionID(ctx, "42", "sub_1"); err != nil {
		t.Fatalf("SetSubscriptionID failed: %v", err)
	}
	r, err := store.Get(ctx, "42")
	if err != nil {
		t.Fatal(err)
	}
	if r.SubscriptionID != "sub_1" {
		t.Errorf("SubscriptionID = %s, want sub_1", r.SubscriptionID)
	}

	if err := store.SetSubscriptionID(ctx, "42", ""); err != nil {
		t.Fatal(err)
	}
	if r, _ := store.Get(ctx, "42"); r.SubscriptionID != "" {
		t.Errorf("SubscriptionID = %s, want cleared", r.SubscriptionID)
	}

	if err := store.SetSubscriptionID(ctx, "ghost", "sub_1"); !errors.Is(err, sqlite.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// -----------------------------------------------------------------------------
// ChargeLog Tests
// -----------------------------------------------------------------------------

func TestChargeLog_RecordAndList(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := sqlite.NewCustomerStore(db).Upsert(ctx, ports.CustomerRecord{LocalID: "42", Email: "a@example.com"}); err != nil {
		t.Fatal(err)
	}
	log := sqlite.NewChargeLog(db)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"ch_1", "ch_2", "ch_3"} {
		err := log.Record(ctx, ports.ChargeRecord{
			LocalID:   "42",
			Currency:  "eur",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			Charge: billing.ChargeRef{
				ID: id, CustomerID: "cus_1", AmountMinorUnits: int64(100 * (i + 1)),
				StatementDescriptor: "ACME", Status: "succeeded",
			},
		})
		if err != nil {
			t.Fatalf("Record %s failed: %v", id, err)
		}
	}

	// Replays of the same charge are ignored.
	if err := log.Record(ctx, ports.ChargeRecord{
		LocalID: "42", Currency: "eur", CreatedAt: base,
		Charge: billing.ChargeRef{ID: "ch_1", CustomerID: "cus_1", AmountMinorUnits: 100, Status: "succeeded"},
	}); err != nil {
		t.Errorf("replay Record failed: %v", err)
	}

	got, err := log.ListByCustomer(ctx, "42", 2)
	if err != nil {
		t.Fatalf("ListByCustomer failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Charge.ID != "ch_3" || got[1].Charge.ID != "ch_2" {
		t.Errorf("order = %s, %s; want ch_3, ch_2", got[0].Charge.ID, got[1].Charge.ID)
	}
	if got[0].Charge.AmountMinorUnits != 300 || got[0].Charge.StatementDescriptor != "ACME" {
		t.Errorf("charge = %+v", got[0].Charge)
	}
}

func TestChargeLog_UnknownCustomer(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	err := sqlite.NewChargeLog(db).Record(context.Background(), ports.ChargeRecord{
		LocalID: "ghost", Currency: "eur", CreatedAt: time.Now(),
		Charge: billing.ChargeRef{ID: "ch_1", CustomerID: "cus_1", AmountMinorUnits: 1, Status: "succeeded"},
	})
	if err == nil {
		t.Error("expected foreign key error for unknown customer")
	}
}
