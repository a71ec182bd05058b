package daemon

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dubsync/internal/api"
	"dubsync/internal/logging"
	"dubsync/internal/mediaerr"
	"dubsync/internal/playback"
	"dubsync/internal/session"
	"dubsync/internal/testsupport"
)

func doJSON(t *testing.T, d *Daemon, method, path string, body any, headers ...string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := d.api.app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func createSession(t *testing.T, d *Daemon, req api.CreateSessionRequest) api.SessionView {
	t.Helper()
	resp := doJSON(t, d, http.MethodPost, "/api/sessions", req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: status %d", resp.StatusCode)
	}
	return decode[api.SessionResponse](t, resp).Session
}

func TestAPIRequiresToken(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIToken = "secret"
	d := newTestDaemon(t, cfg)

	if resp := doJSON(t, d, http.MethodGet, "/health", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("/health status = %d, want 200 without token", resp.StatusCode)
	}
	resp := doJSON(t, d, http.MethodGet, "/api/status", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", resp.StatusCode)
	}
	if got := decode[api.ErrorResponse](t, resp); got.Error != "unauthorized" {
		t.Fatalf("error = %q", got.Error)
	}
	if resp := doJSON(t, d, http.MethodGet, "/api/status", nil, "Authorization", "Bearer wrong"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status with wrong token = %d, want 401", resp.StatusCode)
	}
	resp = doJSON(t, d, http.MethodGet, "/api/status", nil, "Authorization", "Bearer secret")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status with token = %d, want 200", resp.StatusCode)
	}
	status := decode[api.DaemonStatus](t, resp)
	if !status.Running || status.ExportHost != "stub" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestAPISessionControls(t *testing.T) {
	d := newTestDaemon(t, nil)
	view := createSession(t, d, api.CreateSessionRequest{Video: api.MediaSource{Path: "/media/clip.mp4"}})
	if view.State != playback.StateMetadataReady.String() || view.Duration != 60 {
		t.Fatalf("unexpected new session: %+v", view)
	}
	base := "/api/sessions/" + view.ID

	resp := doJSON(t, d, http.MethodPost, base+"/toggle", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle status = %d", resp.StatusCode)
	}
	if got := decode[api.SessionResponse](t, resp).Session; !got.Playing {
		t.Fatalf("expected playing after toggle: %+v", got)
	}

	resp = doJSON(t, d, http.MethodPost, base+"/toggle", nil)
	if got := decode[api.SessionResponse](t, resp).Session; got.Playing || got.State != playback.StatePaused.String() {
		t.Fatalf("expected paused after second toggle: %+v", got)
	}

	resp = doJSON(t, d, http.MethodPost, base+"/seek", api.SeekRequest{Time: 500})
	if got := decode[api.SessionResponse](t, resp).Session; got.CurrentTime != 60 {
		t.Fatalf("CurrentTime = %v, want clamped to 60", got.CurrentTime)
	}

	resp = doJSON(t, d, http.MethodPost, base+"/dub-enabled", api.DubEnabledRequest{Enabled: true})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("dub-enabled without dub = %d, want 409", resp.StatusCode)
	}

	resp = doJSON(t, d, http.MethodPost, base+"/audio", api.AttachAudioRequest{Audio: api.MediaSource{Path: "/media/clip.es.wav"}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("attach audio = %d", resp.StatusCode)
	}
	resp = doJSON(t, d, http.MethodPost, base+"/dub-enabled", api.DubEnabledRequest{Enabled: true})
	got := decode[api.SessionResponse](t, resp).Session
	if !got.DubEnabled || !got.OriginalMuted || got.DubMuted {
		t.Fatalf("unexpected mutes with dub enabled: %+v", got)
	}

	resp = doJSON(t, d, http.MethodPost, base+"/mute", api.MuteRequest{Muted: true})
	got = decode[api.SessionResponse](t, resp).Session
	if !got.GlobalMuted || !got.OriginalMuted || !got.DubMuted {
		t.Fatalf("expected both tracks muted: %+v", got)
	}

	resp = doJSON(t, d, http.MethodPost, base+"/restart", nil)
	if got := decode[api.SessionResponse](t, resp).Session; got.CurrentTime != 0 {
		t.Fatalf("CurrentTime after restart = %v, want 0", got.CurrentTime)
	}

	list := decode[api.SessionListResponse](t, doJSON(t, d, http.MethodGet, "/api/sessions", nil))
	if len(list.Sessions) != 1 {
		t.Fatalf("sessions = %d, want 1", len(list.Sessions))
	}

	if resp := doJSON(t, d, http.MethodDelete, base, nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete = %d, want 204", resp.StatusCode)
	}
	resp = doJSON(t, d, http.MethodGet, base, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete = %d, want 404", resp.StatusCode)
	}
	if kind := decode[api.ErrorResponse](t, resp).Kind; kind != "not_found" {
		t.Fatalf("kind = %q, want not_found", kind)
	}
}

func TestAPICreateSessionErrors(t *testing.T) {
	d := newTestDaemon(t, nil)
	tests := []struct {
		name string
		body any
		want int
	}{
		{name: "missing video", body: api.CreateSessionRequest{}, want: http.StatusBadRequest},
		{name: "unloadable video", body: api.CreateSessionRequest{Video: api.MediaSource{Path: "/media/missing.mp4"}}, want: http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, d, http.MethodPost, "/api/sessions", tt.body)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.api.app.Test(req)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d, want 400", resp.StatusCode)
	}
}

func TestAPICreateSessionReportsDubWarning(t *testing.T) {
	d := newTestDaemon(t, nil)
	resp := doJSON(t, d, http.MethodPost, "/api/sessions", api.CreateSessionRequest{
		Video: api.MediaSource{Path: "/media/clip.mp4"},
		Audio: &api.MediaSource{Path: "/media/missing.wav"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	got := decode[api.SessionResponse](t, resp)
	if got.Warning == "" || got.Session.Audio != nil {
		t.Fatalf("expected warning and no dub: %+v", got)
	}
}

func TestAPIExportLifecycle(t *testing.T) {
	d := newTestDaemon(t, nil)
	view := createSession(t, d, api.CreateSessionRequest{
		Video: api.MediaSource{Path: "/media/clip.mp4"},
		Audio: &api.MediaSource{Path: "/media/clip.es.wav"},
	})
	base := "/api/sessions/" + view.ID

	resp := doJSON(t, d, http.MethodPost, base+"/export", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("export status = %d, want 202", resp.StatusCode)
	}
	job := decode[api.ExportResponse](t, resp).Export
	if !job.Active || job.SessionID != view.ID {
		t.Fatalf("unexpected job: %+v", job)
	}
	if resp := doJSON(t, d, http.MethodPost, base+"/export", nil); resp.StatusCode != http.StatusConflict {
		t.Fatalf("concurrent export status = %d, want 409", resp.StatusCode)
	}

	var item api.ExportItem
	waitFor(t, 5*time.Second, func() bool {
		resp := doJSON(t, d, http.MethodGet, "/api/exports/"+job.ID, nil)
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return false
		}
		item = decode[api.ExportResponse](t, resp).Export
		return item.OutputPath != ""
	})
	if item.State != "complete" || item.Active {
		t.Fatalf("unexpected finished job: %+v", item)
	}
	if resp := doJSON(t, d, http.MethodGet, base+"/export", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("active export after completion = %d, want 404", resp.StatusCode)
	}

	list := decode[api.ExportListResponse](t, doJSON(t, d, http.MethodGet, "/api/exports?session="+view.ID+"&state=complete", nil))
	if len(list.Exports) != 1 || list.Exports[0].ID != job.ID {
		t.Fatalf("unexpected export list: %+v", list.Exports)
	}
	none := decode[api.ExportListResponse](t, doJSON(t, d, http.MethodGet, "/api/exports?state=failed", nil))
	if len(none.Exports) != 0 {
		t.Fatalf("expected no failed exports, got %+v", none.Exports)
	}

	resp = doJSON(t, d, http.MethodGet, "/api/exports/"+job.ID+"/download", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download status = %d", resp.StatusCode)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !bytes.HasSuffix(data, []byte("tail")) {
		t.Fatalf("downloaded %d bytes without the final fragment", len(data))
	}

	if resp := doJSON(t, d, http.MethodGet, "/api/exports/unknown", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown export status = %d, want 404", resp.StatusCode)
	}
	if resp := doJSON(t, d, http.MethodDelete, base+"/export", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cancel without active export = %d, want 404", resp.StatusCode)
	}
}

func TestAPIExportWithoutDub(t *testing.T) {
	d := newTestDaemon(t, nil)
	view := createSession(t, d, api.CreateSessionRequest{Video: api.MediaSource{Path: "/media/clip.mp4"}})
	resp := doJSON(t, d, http.MethodPost, "/api/sessions/"+view.ID+"/export", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAPIGenerateDub(t *testing.T) {
	d := newTestDaemon(t, nil, withDubber(&fakeDubber{audio: "/media/clip.fr.dub.wav"}))
	view := createSession(t, d, api.CreateSessionRequest{Video: api.MediaSource{Path: "/media/clip.mp4"}})
	resp := doJSON(t, d, http.MethodPost, "/api/sessions/"+view.ID+"/dub", api.DubRequest{Language: "fr"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decode[api.SessionResponse](t, resp).Session
	if got.Audio == nil || got.Audio.Path != "/media/clip.fr.dub.wav" {
		t.Fatalf("expected dub attached, got %+v", got.Audio)
	}
}

func TestAPILogs(t *testing.T) {
	hub := logging.NewStreamHub(16)
	d := newTestDaemon(t, nil, withLogHub(hub))
	for i, component := range []string{"export", "playback", "export"} {
		hub.Publish(logging.LogEvent{
			Timestamp: time.Now(),
			Level:     "INFO",
			Message:   fmt.Sprintf("event %d", i),
			Component: component,
		})
	}

	resp := doJSON(t, d, http.MethodGet, "/api/logs?tail=1&component=export", nil)
	got := decode[api.LogStreamResponse](t, resp)
	if len(got.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(got.Events))
	}
	for _, evt := range got.Events {
		if evt.Component != "export" {
			t.Fatalf("unexpected component %q", evt.Component)
		}
	}
	if got.Next == 0 {
		t.Fatal("expected a cursor")
	}

	resp = doJSON(t, d, http.MethodGet, fmt.Sprintf("/api/logs?since=%d", got.Next), nil)
	if later := decode[api.LogStreamResponse](t, resp); len(later.Events) != 0 {
		t.Fatalf("expected no events after cursor, got %d", len(later.Events))
	}
}

func TestAPIUnknownRoute(t *testing.T) {
	d := newTestDaemon(t, nil)
	resp := doJSON(t, d, http.MethodGet, "/api/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if msg := decode[api.ErrorResponse](t, resp).Error; msg == "" {
		t.Fatal("expected JSON error body")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrNotRunning, http.StatusServiceUnavailable},
		{mediaerr.Wrap(mediaerr.ErrNotFound, "session", "lookup", "", nil), http.StatusNotFound},
		{mediaerr.Wrap(mediaerr.ErrValidation, "export", "start", "", playback.ErrNoDub), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", mediaerr.ErrExportInProgress), http.StatusConflict},
		{playback.ErrNoDub, http.StatusConflict},
		{session.ErrDurationUnknown, http.StatusConflict},
		{&mediaerr.SourceLoadError{Track: mediaerr.TrackVideo}, http.StatusUnprocessableEntity},
		{&mediaerr.CaptureUnavailableError{Capability: "record"}, http.StatusServiceUnavailable},
		{mediaerr.Wrap(mediaerr.ErrExternalTool, "dubbing", "generate", "", nil), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestExportWatchersFanOut(t *testing.T) {
	w := newExportWatchers()
	ch, release := w.subscribe("s1")
	other, releaseOther := w.subscribe("s2")
	defer releaseOther()

	w.publish("s1", api.ExportItem{ID: "j1"})
	select {
	case item := <-ch:
		if item.ID != "j1" {
			t.Fatalf("item = %+v", item)
		}
	case <-time.After(time.Second):
		t.Fatal("expected update for s1")
	}
	select {
	case item := <-other:
		t.Fatalf("unexpected update for s2: %+v", item)
	default:
	}

	release()
	release()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after release")
	}
	w.publish("s1", api.ExportItem{ID: "j2"})
}
