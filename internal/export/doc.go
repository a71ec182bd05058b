// Package export records the synchronized presentation of a session into one
// media container.
//
// The Pipeline never muxes files offline. It loads private copies of the video
// and dub audio through an injected Host, captures the muted video and the
// routed audio as live streams, combines them and feeds an incremental
// recorder while both instances play in real time. A recording therefore takes
// as long as the media it captures.
//
// Every export runs as a Job (idle, capturing, finalizing, then complete or
// failed). At most one Job is active per session, and all host resources a Job
// acquires are released on every exit path.
package export
