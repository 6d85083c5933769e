package store_test

import (
	"context"
	"errors"
	"testing"

	"horizon/internal/store"
	"horizon/internal/testsupport"
)

func TestMetaRoundTrip(t *testing.T) {
	st := testsupport.MustOpenStore(t)

	ctx := context.Background()
	if _, err := st.MetaGet(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := st.MetaSet(ctx, "last_export", "2026-08-30"); err != nil {
		t.Fatalf("MetaSet failed: %v", err)
	}
	if err := st.MetaSet(ctx, "last_export", "2026-08-31"); err != nil {
		t.Fatalf("MetaSet upsert failed: %v", err)
	}
	value, err := st.MetaGet(ctx, "last_export")
	if err != nil {
		t.Fatalf("MetaGet failed: %v", err)
	}
	if value != "2026-08-31" {
		t.Fatalf("expected upserted value, got %q", value)
	}
}

func TestChangeLogRecordsMutations(t *testing.T) {
	st := testsupport.MustOpenStore(t)

	ctx := context.Background()
	project, err := st.CreateProject(ctx, "Logged Project", store.ProjectFields{})
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	if err := st.MarkProjectPending(ctx, project.ID, "translate"); err != nil {
		t.Fatalf("MarkProjectPending failed: %v", err)
	}

	entries, err := st.ChangeLog(ctx, 0)
	if err != nil {
		t.Fatalf("ChangeLog failed: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected create and status entries, got %d", len(entries))
	}

	limited, err := st.ChangeLog(ctx, 1)
	if err != nil {
		t.Fatalf("ChangeLog with limit failed: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 entry with limit, got %d", len(limited))
	}
	if limited[0].EntityType != "project" {
		t.Fatalf("expected project entity, got %q", limited[0].EntityType)
	}
}

func TestBuildMigrationReport(t *testing.T) {
	st := testsupport.MustOpenStore(t)

	ctx := context.Background()
	if _, err := st.CreateProject(ctx, "Reported Project", store.ProjectFields{}); err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}

	report, err := st.BuildMigrationReport(ctx, 10)
	if err != nil {
		t.Fatalf("BuildMigrationReport failed: %v", err)
	}
	if report.GeneratedAt.IsZero() {
		t.Fatal("expected generation timestamp")
	}
	version, err := st.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if report.SchemaVersion != version {
		t.Fatalf("expected schema version %d, got %d", version, report.SchemaVersion)
	}
	if len(report.History) == 0 {
		t.Fatal("expected migration history in report")
	}
	if len(report.ChangeLog) == 0 {
		t.Fatal("expected change-log entries in report")
	}
}

func TestBuildMigrationReportBoundsHistoryNewestFirst(t *testing.T) {
	st := testsupport.MustOpenStore(t)

	ctx := context.Background()
	full, err := st.MigrationHistory(ctx)
	if err != nil {
		t.Fatalf("MigrationHistory failed: %v", err)
	}
	if len(full) < 3 {
		t.Fatalf("expected several migration records on a fresh store, got %d", len(full))
	}

	report, err := st.BuildMigrationReport(ctx, 2)
	if err != nil {
		t.Fatalf("BuildMigrationReport failed: %v", err)
	}
	if len(report.History) != 2 {
		t.Fatalf("expected history capped at 2 records, got %d", len(report.History))
	}
	if report.History[0].ID <= report.History[1].ID {
		t.Fatalf("expected newest record first, got ids %d then %d",
			report.History[0].ID, report.History[1].ID)
	}
	newest := full[len(full)-1]
	if report.History[0].ID != newest.ID {
		t.Fatalf("expected report to start at newest record %d, got %d",
			newest.ID, report.History[0].ID)
	}
}
