package playback_test

import (
	"context"
	"errors"
	"sync"

	"dubsync/internal/mediaerr"
	"dubsync/internal/playback"
	"dubsync/internal/session"
)

type fakeElement struct {
	mu       sync.Mutex
	pos      float64
	duration float64
	paused   bool
	muted    bool
	seekErr  error
	seeks    []float64
	plays    int
	closed   bool
	events   chan playback.Event
}

func newFakeElement(duration float64) *fakeElement {
	return &fakeElement{duration: duration, paused: true, events: make(chan playback.Event, 16)}
}

func (f *fakeElement) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = false
	f.plays++
	return nil
}

func (f *fakeElement) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = true
	return nil
}

func (f *fakeElement) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakeElement) Position() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

func (f *fakeElement) setPosition(pos float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = pos
}

func (f *fakeElement) Seek(seconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seekErr != nil {
		return f.seekErr
	}
	f.pos = seconds
	f.seeks = append(f.seeks, seconds)
	return nil
}

func (f *fakeElement) seekCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seeks)
}

func (f *fakeElement) SetMuted(muted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muted = muted
	return nil
}

func (f *fakeElement) Muted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.muted
}

func (f *fakeElement) Duration() float64 { return f.duration }

func (f *fakeElement) Events() <-chan playback.Event { return f.events }

func (f *fakeElement) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeElement) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeOpener struct {
	video    *fakeElement
	audio    *fakeElement
	videoErr error
	audioErr error
}

func (o *fakeOpener) OpenVideo(_ context.Context, src session.Source) (playback.Element, error) {
	if o.videoErr != nil {
		return nil, &mediaerr.SourceLoadError{Track: mediaerr.TrackVideo, Source: src.Path, Err: o.videoErr}
	}
	return o.video, nil
}

func (o *fakeOpener) OpenAudio(_ context.Context, src session.Source) (playback.Element, error) {
	if o.audioErr != nil {
		return nil, o.audioErr
	}
	if o.audio == nil {
		return nil, errors.New("no audio fixture")
	}
	return o.audio, nil
}
