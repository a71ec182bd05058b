// Package archive re-encodes finished exports into AV1 archive copies using
// the Drapto encoder library.
//
// The real-time export produces a VP9/Opus WebM sized for sharing. When
// export.archive_av1 is enabled the daemon hands the finished file to an
// Archiver, which writes <output_dir>/archive/<name>.mkv. Progress from the
// encoder is surfaced through a Progress callback and the component logger.
package archive
