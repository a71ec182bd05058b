// Package dubbing talks to the external dubbing collaborator that turns a
// video into a translated dub track.
//
// The collaborator is opaque: dubsync sends the video and a target language,
// receives a speaker-attributed transcript, then asks for synthesized speech
// and gets raw 16-bit mono PCM back. PCMToWAV wraps that payload into a WAV
// file so it can be attached to a session as dub audio.
package dubbing
