// Package project reads and writes YAML project manifests.
//
// A manifest names the video, the optional dub audio, the preview toggles and
// the export settings for one dubbing project so `dubsync preview` and
// `dubsync export` can be rerun without repeating flags. Relative paths are
// resolved against the manifest's directory.
package project
