// Package audit keeps a trail of every command the gateway resolved.
//
// Entries are written by ActivitySink from the gateway activity feed into
// the command_audit table and listed per device by the REST API:
//
//	repo := audit.NewSQLiteRepository(db.DB)
//	sinks = append(sinks, audit.NewActivitySink(repo))
//	...
//	page, err := repo.ListByDevice(ctx, 0, 50)
package audit
