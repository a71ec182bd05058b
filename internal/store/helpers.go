package store

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"dubsync/internal/export"
)

func scanExport(scanner interface{ Scan(dest ...any) error }) (*Export, error) {
	var (
		exp          Export
		videoPath    sql.NullString
		audioPath    sql.NullString
		state        string
		mimeType     sql.NullString
		stopReason   sql.NullString
		earlyStop    sql.NullInt64
		errorKind    sql.NullString
		errorMessage sql.NullString
		outputPath   sql.NullString
		archivePath  sql.NullString
		shareURL     sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&exp.ID,
		&exp.SessionID,
		&videoPath,
		&audioPath,
		&state,
		&exp.Chunks,
		&exp.Bytes,
		&mimeType,
		&exp.Duration,
		&stopReason,
		&earlyStop,
		&errorKind,
		&errorMessage,
		&outputPath,
		&archivePath,
		&shareURL,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	exp.VideoPath = videoPath.String
	exp.AudioPath = audioPath.String
	exp.State = export.JobState(state)
	exp.MIMEType = mimeType.String
	exp.StopReason = stopReason.String
	exp.EarlyStop = earlyStop.Valid && earlyStop.Int64 != 0
	exp.ErrorKind = errorKind.String
	exp.ErrorMessage = errorMessage.String
	exp.OutputPath = outputPath.String
	exp.ArchivePath = archivePath.String
	exp.ShareURL = shareURL.String
	if created, err := parseTimeString(createdRaw.String); err == nil {
		exp.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		exp.UpdatedAt = updated
	}
	return &exp, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}
