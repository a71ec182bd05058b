// Package playback keeps an independently clocked video element and a
// separately sourced dub audio element on one timeline.
//
// The video is the master clock. Every time-advance event from the video
// element updates the session position and, when the audio has drifted more
// than the configured threshold, forces the audio back onto the video's
// position. Nothing ever moves the video to follow the audio.
//
// Elements report metadata, progress, end of media and errors as Events on a
// channel. Synchronizer.Run consumes them; the Handle* methods are also public
// so other drivers (tests, remote players) can feed the same state machine.
package playback
