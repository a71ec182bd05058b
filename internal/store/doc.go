// Package store persists the export history in SQLite.
//
// Every export job is a row in the exports table keyed by job ID. The
// pipeline reports job transitions through export.Observer, which Store
// implements, and callers attach the written output, archive and share
// locations once the file is on disk. Schema changes ship as embedded
// migrations applied on Open.
package store
