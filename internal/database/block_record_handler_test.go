package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"fwblock/internal/blocklist"
	"fwblock/internal/domain"
)

func setupBlockRecordTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := Open(WithDialector(sqlite.Open(dsn)))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestStoreSaveLoadPreservesOrder(t *testing.T) {
	store := NewStore(setupBlockRecordTestDB(t))
	ctx := context.Background()

	added := time.Date(2021, 2, 21, 10, 27, 53, 0, time.UTC)
	expiredAt := added.Add(48 * time.Hour)
	days := 3

	records := []domain.BlockRecord{
		{Address: "2.0.0.0/8", DtAdded: added, Country: "FR", Reason: "manual"},
		{Address: "10.0.0.1", PortScope: "ssh", DtAdded: added, Days: &days, Org: "Example"},
		{Address: "192.168.0.1", DtAdded: added, Status: domain.StatusExpired, DtExpired: &expiredAt},
	}

	if err := store.Save(ctx, records); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(loaded) != len(records) {
		t.Fatalf("Load returned %d records, want %d", len(loaded), len(records))
	}

	for i, rec := range loaded {
		if rec.Address != records[i].Address || rec.PortScope != records[i].PortScope {
			t.Fatalf("record %d = %s/%s, want %s/%s", i, rec.Address, rec.PortScope, records[i].Address, records[i].PortScope)
		}
		if !rec.DtAdded.Equal(added) {
			t.Fatalf("record %d dtAdded = %s, want %s", i, rec.DtAdded, added)
		}
	}

	if loaded[1].DaysValue() != 3 {
		t.Fatalf("days = %d, want 3", loaded[1].DaysValue())
	}
	if !loaded[2].IsExpired() || loaded[2].DtExpired == nil || !loaded[2].DtExpired.Equal(expiredAt) {
		t.Fatalf("expired record = %+v, want expired at %s", loaded[2], expiredAt)
	}
}

func TestStoreSaveReplacesRows(t *testing.T) {
	store := NewStore(setupBlockRecordTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	first := []domain.BlockRecord{
		{Address: "1.1.1.1", DtAdded: now},
		{Address: "1.1.1.2", DtAdded: now},
	}
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if err := store.Save(ctx, first[1:]); err != nil {
		t.Fatalf("second Save returned error: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Address != "1.1.1.2" {
		t.Fatalf("Load returned %+v, want only 1.1.1.2", loaded)
	}

	if err := store.Save(ctx, nil); err != nil {
		t.Fatalf("empty Save returned error: %v", err)
	}
	loaded, _ = store.Load(ctx)
	if len(loaded) != 0 {
		t.Fatalf("Load after empty Save returned %d records, want 0", len(loaded))
	}
}

func TestStoreBacksBlockList(t *testing.T) {
	db := NewStore(setupBlockRecordTestDB(t))
	ctx := context.Background()

	list := blocklist.NewStore(blocklist.Policy{Reasons: []string{"manual"}}, db)
	for _, addr := range []string{"10.0.0.1", "9.0.0.0/8", "10.0.0.0/24"} {
		if _, err := list.Insert(ctx, blocklist.Candidate{Address: addr}); err != nil {
			t.Fatalf("Insert(%s) returned error: %v", addr, err)
		}
	}

	loaded, err := db.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	got := make([]string, 0, len(loaded))
	for _, rec := range loaded {
		got = append(got, rec.Address)
	}
	want := []string{"9.0.0.0/8", "10.0.0.0/24"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("stored addresses = %v, want %v", got, want)
	}
}

func TestStoreNotInitialised(t *testing.T) {
	var store *Store
	if _, err := store.Load(context.Background()); err == nil {
		t.Fatal("Load on nil store returned no error")
	}
	if err := store.Save(context.Background(), nil); err == nil {
		t.Fatal("Save on nil store returned no error")
	}
}
