package store

import (
	"context"
	"fmt"
)

// columnSpec is one column an existing table is expected to carry, with the
// DDL fragment used to add it when absent. Added columns must use constant
// defaults so ALTER TABLE can backfill existing rows.
type columnSpec struct {
	name string
	ddl  string
}

// expectedColumns lists, per table, the columns stores from any prior version
// may be missing. Drift repair is additive only; it never drops or rewrites
// columns it does not recognize.
var expectedColumns = map[string][]columnSpec{
	"projects": {
		{"series_id", "series_id INTEGER"},
		{"volume_no", "volume_no REAL"},
		{"input_epub", "input_epub TEXT NOT NULL DEFAULT ''"},
		{"output_translate_epub", "output_translate_epub TEXT NOT NULL DEFAULT ''"},
		{"output_edit_epub", "output_edit_epub TEXT NOT NULL DEFAULT ''"},
		{"prompt_translate", "prompt_translate TEXT NOT NULL DEFAULT ''"},
		{"prompt_edit", "prompt_edit TEXT NOT NULL DEFAULT ''"},
		{"glossary_path", "glossary_path TEXT NOT NULL DEFAULT ''"},
		{"cache_translate_path", "cache_translate_path TEXT NOT NULL DEFAULT ''"},
		{"cache_edit_path", "cache_edit_path TEXT NOT NULL DEFAULT ''"},
		{"source_lang", "source_lang TEXT NOT NULL DEFAULT 'en'"},
		{"target_lang", "target_lang TEXT NOT NULL DEFAULT 'pl'"},
		{"active_step", "active_step TEXT NOT NULL DEFAULT 'translate'"},
		{"status", "status TEXT NOT NULL DEFAULT 'idle'"},
		{"notes", "notes TEXT NOT NULL DEFAULT ''"},
		{"created_at", "created_at INTEGER NOT NULL DEFAULT 0"},
		{"updated_at", "updated_at INTEGER NOT NULL DEFAULT 0"},
	},
	"series": {
		{"slug", "slug TEXT NOT NULL DEFAULT ''"},
		{"source", "source TEXT NOT NULL DEFAULT ''"},
		{"created_at", "created_at INTEGER NOT NULL DEFAULT 0"},
		{"updated_at", "updated_at INTEGER NOT NULL DEFAULT 0"},
	},
	"runs": {
		{"step", "step TEXT NOT NULL DEFAULT ''"},
		{"command", "command TEXT NOT NULL DEFAULT ''"},
		{"status", "status TEXT NOT NULL DEFAULT 'running'"},
		{"finished_at", "finished_at INTEGER"},
		{"message", "message TEXT NOT NULL DEFAULT ''"},
	},
	"qa_findings": {
		{"step", "step TEXT NOT NULL DEFAULT ''"},
		{"chapter_path", "chapter_path TEXT NOT NULL DEFAULT ''"},
		{"segment_index", "segment_index INTEGER NOT NULL DEFAULT 0"},
		{"segment_id", "segment_id TEXT NOT NULL DEFAULT ''"},
		{"severity", "severity TEXT NOT NULL DEFAULT ''"},
		{"rule_code", "rule_code TEXT NOT NULL DEFAULT ''"},
		{"message", "message TEXT NOT NULL DEFAULT ''"},
		{"status", "status TEXT NOT NULL DEFAULT 'open'"},
	},
	"migration_history": {
		{"backup_dir", "backup_dir TEXT"},
	},
	"change_log": {
		{"payload_json", "payload_json TEXT NOT NULL DEFAULT '{}'"},
	},
}

// repairSchemaDrift adds any expected columns missing from live tables,
// regardless of the recorded schema version. Stores edited by hand or
// written by releases with divergent migration lines come out structurally
// complete without a version bump.
func (s *Store) repairSchemaDrift(ctx context.Context) error {
	for table, specs := range expectedColumns {
		present, err := tableExists(ctx, s.db, table)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if !present {
			continue
		}
		columns, err := tableColumns(ctx, s.db, table)
		if err != nil {
			return fmt.Errorf("inspect table %s: %w", table, err)
		}
		for _, spec := range specs {
			if _, ok := columns[spec.name]; ok {
				continue
			}
			if _, err := s.db.ExecContext(ctx, "ALTER TABLE "+table+" ADD COLUMN "+spec.ddl); err != nil {
				return fmt.Errorf("repair %s.%s: %w", table, spec.name, err)
			}
			s.logger.Info("repaired schema drift", "table", table, "column", spec.name)
		}
	}
	return nil
}
