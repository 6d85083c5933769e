// Command horizon maintains the studio store: schema migrations with
// per-step backups, rollback of the most recent migration, migration
// reports, queue status, and one-shot run dispatch.
package main
