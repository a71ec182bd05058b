// Package browser implements export.Host with headless Chrome driven over the
// DevTools protocol.
//
// Sources are served to a local page over loopback and played by real media
// elements. The video element's frames are captured with captureStream, the
// dub audio is routed through a WebAudio destination, and a MediaRecorder
// encodes the combined stream. Encoded chunks, ended notifications and
// recorder errors come back through a runtime binding.
//
// One Chrome process and page serve every export run through the Host; each
// export uses its own elements and recorder inside that page.
package browser
