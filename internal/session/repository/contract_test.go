package repository

import (
	"context"
	"errors"
	"strings"
	"testing"

	"lms-sessions/internal/session/domain"
)

// runContract exercises the Repository contract against a fresh, empty repository.
func runContract(t *testing.T, newRepo func(t *testing.T) Repository) {
	t.Helper()

	t.Run("CreateAndGet", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		data := "payload"
		in := &domain.Record{SID: "s1", UserID: 5, SessData: &data, TimeCreated: 100, TimeModified: 150, FirstIP: "10.0.0.1", LastIP: "10.0.0.2"}

		id, err := repo.Create(ctx, in)
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if id <= 0 {
			t.Fatalf("id = %d, want > 0", id)
		}
		got, err := repo.GetBySID(ctx, "s1")
		if err != nil {
			t.Fatalf("GetBySID: %v", err)
		}
		if got == nil {
			t.Fatal("GetBySID returned nil")
		}
		if got.ID != id || got.UserID != 5 || got.TimeCreated != 100 || got.TimeModified != 150 {
			t.Errorf("GetBySID = %+v", got)
		}
		if got.SessData == nil || *got.SessData != "payload" {
			t.Errorf("SessData = %v, want payload", got.SessData)
		}
		if got.FirstIP != "10.0.0.1" || got.LastIP != "10.0.0.2" {
			t.Errorf("IPs = %q/%q", got.FirstIP, got.LastIP)
		}
		if gotID, _ := repo.IDBySID(ctx, "s1"); gotID != id {
			t.Errorf("IDBySID = %d, want %d", gotID, id)
		}
		missing, err := repo.GetBySID(ctx, "nope")
		if err != nil || missing != nil {
			t.Errorf("GetBySID(nope) = %v, %v; want nil, nil", missing, err)
		}
		if gotID, err := repo.IDBySID(ctx, "nope"); err != nil || gotID != 0 {
			t.Errorf("IDBySID(nope) = %d, %v; want 0, nil", gotID, err)
		}
	})

	t.Run("NullSessData", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		if _, err := repo.Create(ctx, &domain.Record{SID: "n1", TimeCreated: 1, TimeModified: 1}); err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, _ := repo.GetBySID(ctx, "n1")
		if got == nil || got.SessData != nil {
			t.Errorf("SessData = %v, want nil", got)
		}
	})

	t.Run("DuplicateSID", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		if _, err := repo.Create(ctx, &domain.Record{SID: "dup", TimeCreated: 1, TimeModified: 1}); err != nil {
			t.Fatalf("Create: %v", err)
		}
		_, err := repo.Create(ctx, &domain.Record{SID: "dup", TimeCreated: 1, TimeModified: 1})
		if !errors.Is(err, ErrDuplicateSID) {
			t.Errorf("Create duplicate error = %v, want ErrDuplicateSID", err)
		}
		if n, _ := repo.Count(ctx); n != 1 {
			t.Errorf("Count = %d, want 1", n)
		}
	})

	t.Run("CreateRejectsInvalid", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		if _, err := repo.Create(ctx, &domain.Record{TimeCreated: 1, TimeModified: 1}); err == nil {
			t.Error("Create with empty sid should fail")
		}
		if _, err := repo.Create(ctx, &domain.Record{SID: "x", TimeCreated: 5, TimeModified: 1}); err == nil {
			t.Error("Create with timecreated > timemodified should fail")
		}
	})

	t.Run("IDsNotReused", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		first, _ := repo.Create(ctx, &domain.Record{SID: "a", TimeCreated: 1, TimeModified: 1})
		_ = repo.DeleteBySID(ctx, "a")
		second, err := repo.Create(ctx, &domain.Record{SID: "a", TimeCreated: 1, TimeModified: 1})
		if err != nil {
			t.Fatalf("Create after delete: %v", err)
		}
		if second <= first {
			t.Errorf("id after delete = %d, want > %d", second, first)
		}
	})

	t.Run("Update", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		id, _ := repo.Create(ctx, &domain.Record{SID: "u1", UserID: 1, TimeCreated: 10, TimeModified: 10})

		rec, _ := repo.GetBySID(ctx, "u1")
		rec.UserID = 2
		rec.State = 1
		rec.TimeModified = 20
		rec.LastIP = "127.0.0.1"
		ok, err := repo.Update(ctx, rec)
		if err != nil || !ok {
			t.Fatalf("Update = %v, %v; want true, nil", ok, err)
		}
		got, _ := repo.GetBySID(ctx, "u1")
		if got.ID != id || got.UserID != 2 || got.State != 1 || got.TimeModified != 20 || got.LastIP != "127.0.0.1" {
			t.Errorf("after Update = %+v", got)
		}
		if n, _ := repo.CountByUserID(ctx, 1); n != 0 {
			t.Errorf("CountByUserID(1) = %d, want 0", n)
		}
		if n, _ := repo.CountByUserID(ctx, 2); n != 1 {
			t.Errorf("CountByUserID(2) = %d, want 1", n)
		}

		ok, err = repo.Update(ctx, &domain.Record{ID: id + 1000, SID: "ghost", TimeCreated: 1, TimeModified: 1})
		if err != nil || ok {
			t.Errorf("Update missing = %v, %v; want false, nil", ok, err)
		}
	})

	t.Run("Touch", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		_, _ = repo.Create(ctx, &domain.Record{SID: "t1", TimeCreated: 10, TimeModified: 10})
		if err := repo.Touch(ctx, "t1", 99); err != nil {
			t.Fatalf("Touch: %v", err)
		}
		got, _ := repo.GetBySID(ctx, "t1")
		if got.TimeModified != 99 || got.TimeCreated != 10 {
			t.Errorf("after Touch = %+v, want timemodified 99", got)
		}
		if err := repo.Touch(ctx, "missing", 99); err != nil {
			t.Errorf("Touch missing: %v", err)
		}
	})

	t.Run("WritesAfterDeleteDoNotRestore", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		if _, err := repo.Create(ctx, &domain.Record{SID: "d1", UserID: 4, TimeCreated: 10, TimeModified: 10}); err != nil {
			t.Fatalf("Create: %v", err)
		}
		rec, _ := repo.GetBySID(ctx, "d1")
		if err := repo.DeleteBySID(ctx, "d1"); err != nil {
			t.Fatalf("DeleteBySID: %v", err)
		}

		if err := repo.Touch(ctx, "d1", 99); err != nil {
			t.Errorf("Touch after delete: %v", err)
		}
		rec.TimeModified = 99
		if ok, err := repo.Update(ctx, rec); err != nil || ok {
			t.Errorf("Update after delete = %v, %v; want false, nil", ok, err)
		}

		if got, _ := repo.GetBySID(ctx, "d1"); got != nil {
			t.Errorf("GetBySID after delete = %+v, want nil", got)
		}
		if n, _ := repo.Count(ctx); n != 0 {
			t.Errorf("Count = %d, want 0", n)
		}
		if n, _ := repo.CountByUserID(ctx, 4); n != 0 {
			t.Errorf("CountByUserID = %d, want 0", n)
		}
		if _, err := repo.Create(ctx, &domain.Record{SID: "d1", TimeCreated: 1, TimeModified: 1}); err != nil {
			t.Errorf("Create reusing deleted sid: %v", err)
		}
	})

	t.Run("UpdateMovesSID", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		_, _ = repo.Create(ctx, &domain.Record{SID: "m1", TimeCreated: 1, TimeModified: 1})
		_, _ = repo.Create(ctx, &domain.Record{SID: "m2", TimeCreated: 1, TimeModified: 1})

		rec, _ := repo.GetBySID(ctx, "m1")
		rec.SID = "m3"
		if ok, err := repo.Update(ctx, rec); err != nil || !ok {
			t.Fatalf("Update = %v, %v; want true, nil", ok, err)
		}
		if got, _ := repo.GetBySID(ctx, "m1"); got != nil {
			t.Errorf("GetBySID(m1) = %+v, want nil", got)
		}
		if got, _ := repo.GetBySID(ctx, "m3"); got == nil || got.ID != rec.ID {
			t.Errorf("GetBySID(m3) = %+v, want id %d", got, rec.ID)
		}

		rec.SID = "m2"
		if _, err := repo.Update(ctx, rec); !errors.Is(err, ErrDuplicateSID) {
			t.Errorf("Update onto taken sid: err = %v, want ErrDuplicateSID", err)
		}
	})

	t.Run("ListAndCount", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		for _, r := range []*domain.Record{
			{SID: "a", UserID: 7, TimeCreated: 1, TimeModified: 50},
			{SID: "b", UserID: 8, TimeCreated: 1, TimeModified: 10},
			{SID: "c", UserID: 7, TimeCreated: 1, TimeModified: 5},
			{SID: "d", UserID: 0, TimeCreated: 1, TimeModified: 1},
		} {
			if _, err := repo.Create(ctx, r); err != nil {
				t.Fatalf("Create %s: %v", r.SID, err)
			}
		}

		var sids []string
		for rec, err := range repo.All(ctx) {
			if err != nil {
				t.Fatalf("All: %v", err)
			}
			sids = append(sids, rec.SID)
		}
		if got, want := strings.Join(sids, ","), "a,b,c,d"; got != want {
			t.Errorf("All = %s, want %s", got, want)
		}

		user7, err := repo.ListByUserID(ctx, 7)
		if err != nil {
			t.Fatalf("ListByUserID: %v", err)
		}
		if len(user7) != 2 || user7[0].SID != "a" || user7[1].SID != "c" {
			t.Errorf("ListByUserID(7) = %v", user7)
		}
		if none, _ := repo.ListByUserID(ctx, 42); len(none) != 0 {
			t.Errorf("ListByUserID(42) = %v, want empty", none)
		}

		sids = nil
		for rec, err := range repo.ListModifiedBefore(ctx, 50, 0) {
			if err != nil {
				t.Fatalf("ListModifiedBefore: %v", err)
			}
			sids = append(sids, rec.SID)
		}
		if got, want := strings.Join(sids, ","), "b,c"; got != want {
			t.Errorf("ListModifiedBefore(50, exclude 0) = %s, want %s", got, want)
		}

		if n, _ := repo.Count(ctx); n != 4 {
			t.Errorf("Count = %d, want 4", n)
		}
		if n, _ := repo.CountByUserID(ctx, 7); n != 2 {
			t.Errorf("CountByUserID(7) = %d, want 2", n)
		}
	})

	t.Run("DeleteWhileIterating", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		for _, sid := range []string{"x1", "x2", "x3"} {
			_, _ = repo.Create(ctx, &domain.Record{SID: sid, TimeCreated: 1, TimeModified: 1})
		}
		seen := 0
		for rec, err := range repo.All(ctx) {
			if err != nil {
				t.Fatalf("All: %v", err)
			}
			seen++
			if err := repo.DeleteBySID(ctx, rec.SID); err != nil {
				t.Fatalf("DeleteBySID: %v", err)
			}
		}
		if seen != 3 {
			t.Errorf("visited %d records, want 3", seen)
		}
		if n, _ := repo.Count(ctx); n != 0 {
			t.Errorf("Count = %d, want 0", n)
		}
	})

	t.Run("DeleteBySIDMissing", func(t *testing.T) {
		repo := newRepo(t)
		if err := repo.DeleteBySID(context.Background(), "missing"); err != nil {
			t.Errorf("DeleteBySID missing: %v", err)
		}
	})

	t.Run("DeleteAll", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		for _, sid := range []string{"y1", "y2"} {
			_, _ = repo.Create(ctx, &domain.Record{SID: sid, UserID: 3, TimeCreated: 1, TimeModified: 1})
		}
		if err := repo.DeleteAll(ctx); err != nil {
			t.Fatalf("DeleteAll: %v", err)
		}
		if n, _ := repo.Count(ctx); n != 0 {
			t.Errorf("Count = %d, want 0", n)
		}
		if n, _ := repo.CountByUserID(ctx, 3); n != 0 {
			t.Errorf("CountByUserID = %d, want 0", n)
		}
		for range repo.All(ctx) {
			t.Fatal("All should be empty after DeleteAll")
		}
	})
}
