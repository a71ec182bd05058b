// Package ffmpeg implements export.Host on top of the ffmpeg command line.
//
// Instances are wall-clock timers over probed sources, streams are input
// descriptors, and the recorder is a single ffmpeg process that reads both
// inputs at native rate (-re) and writes WebM to stdout. Both inputs are
// padded indefinitely so the process only stops when the pipeline asks it
// to, which keeps the stop policy in charge of where the recording ends.
package ffmpeg
