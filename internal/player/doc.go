// Package player provides the playback.Element implementations used by the
// preview surfaces.
//
// Clock is a virtual element that advances a media position against the wall
// clock and emits time-advance and ended events. FFplay layers an ffplay
// process on top of a Clock so the preview is audible and visible on the
// local desktop; the process is restarted at the clock position whenever the
// element is played, seeked or (un)muted.
//
// Opener probes sources with ffprobe and builds the configured element kind.
package player
