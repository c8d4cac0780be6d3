// Package widget holds the dashboard's widget collection.
//
// A Widget is a display tile bound to one JSON data source. Its configuration
// (name, URLs, refresh interval, display mode, selected fields) is persisted
// in SQLite; its acquisition results (data, loading, error, lastUpdated) live
// only in memory and are refilled by the acquisition engine after a restart.
//
// The Store is the single source of truth. Every mutation is atomic under
// the store lock, is persisted before it becomes visible, and is announced to
// subscribed listeners after the lock is released. The acquisition engine
// subscribes to these events to start and stop its sessions, so removing a
// widget tears down its session before Remove returns.
//
// Documents (export/import) carry configuration only:
//
//	{
//	  "version": 1,
//	  "exportedAt": "2026-10-17T09:00:00Z",
//	  "widgets": [ { "id": "...", "name": "...", "apiUrl": "...", ... } ]
//	}
package widget
