// Package session holds the state of one dubbing session: the original video,
// the optional dub audio that replaces its speech, and the shared playback and
// mute flags.
//
// A Session has no behaviour beyond its invariants. Replacing the video starts a
// new Session, which discards any dub. The playback synchronizer is the only
// writer while a preview runs; other readers take Snapshots.
package session
