package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/overtype/internal/engine"
	"github.com/verte-zerg/overtype/internal/model"
	"github.com/verte-zerg/overtype/internal/page"
	"github.com/verte-zerg/overtype/internal/settings"
)

type fakeEngine struct {
	activated *engine.SelectionRequest
	hints     []bool
	validErr  error
}

func (f *fakeEngine) ActivateSelectionMode(_ context.Context, req *engine.SelectionRequest) (engine.Status, error) {
	f.activated = req
	return engine.Status{IsActive: true}, nil
}
func (f *fakeEngine) DeactivateSelectionMode() engine.Status { return engine.Status{} }
func (f *fakeEngine) Status() engine.Status                  { return engine.Status{IsActive: true} }
func (f *fakeEngine) ShowHints(context.Context) error {
	f.hints = append(f.hints, true)
	return nil
}
func (f *fakeEngine) HideHints(context.Context) error {
	f.hints = append(f.hints, false)
	return nil
}
func (f *fakeEngine) ResetSettings(context.Context) (settings.Values, error) {
	return settings.Defaults(), nil
}
func (f *fakeEngine) ForceCleanup() engine.CleanupReport {
	return engine.CleanupReport{EndedSession: true}
}
func (f *fakeEngine) ValidateSession() (bool, error) { return f.validErr == nil, f.validErr }
func (f *fakeEngine) LastSummary() (model.Summary, bool) {
	return model.Summary{}, false
}

func TestDispatchRoutesActions(t *testing.T) {
	fe := &fakeEngine{}
	r := NewRouter(fe, nil)
	ctx := context.Background()

	resp := r.Dispatch(ctx, Request{Action: ActionActivate, Payload: json.RawMessage(`{"xpath":"//p","inPlace":true}`)})
	require.True(t, resp.Success)
	require.NotNil(t, fe.activated)
	require.Equal(t, "//p", fe.activated.XPath)
	require.True(t, fe.activated.InPlace)

	resp = r.Dispatch(ctx, Request{Action: ActionActivate})
	require.True(t, resp.Success)
	require.Nil(t, fe.activated)

	require.True(t, r.Dispatch(ctx, Request{Action: ActionHideHints}).Success)
	require.True(t, r.Dispatch(ctx, Request{Action: ActionShowHints}).Success)
	require.Equal(t, []bool{false, true}, fe.hints)

	resp = r.Dispatch(ctx, Request{Action: ActionSummary})
	require.False(t, resp.Success)

	fe.validErr = errors.New("drifted")
	resp = r.Dispatch(ctx, Request{Action: ActionValidateSession})
	require.False(t, resp.Success)
	require.Equal(t, "drifted", resp.Error)
	require.Equal(t, map[string]bool{"valid": false}, resp.Data)

	resp = r.Dispatch(ctx, Request{Action: "launchRockets"})
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, "unknown action")
}

func TestDispatchRecoversPanics(t *testing.T) {
	r := NewRouter(&fakeEngine{}, nil)
	r.Handle("boom", func(context.Context, json.RawMessage) (any, error) { panic("kaput") })
	resp := r.Dispatch(context.Background(), Request{Action: "boom"})
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, "kaput")
}

func TestDispatchRejectsBadPayload(t *testing.T) {
	r := NewRouter(&fakeEngine{}, nil)
	resp := r.Dispatch(context.Background(), Request{Action: ActionActivate, Payload: json.RawMessage(`[1,2]`)})
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, "bad payload")
}

func post(t *testing.T, srv *httptest.Server, body string) (int, Response) {
	t.Helper()
	res, err := http.Post(srv.URL+"/message", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer res.Body.Close()
	var resp Response
	require.NoError(t, json.NewDecoder(res.Body).Decode(&resp))
	return res.StatusCode, resp
}

func TestHTTPTransportDrivesEngine(t *testing.T) {
	doc, err := page.ParseString(`<html><body><p id="t">practice me</p></body></html>`, "page.html")
	require.NoError(t, err)
	e := engine.New(doc, engine.Options{ValidationInterval: -1})
	t.Cleanup(e.Close)
	srv := httptest.NewServer(HTTPHandler(NewRouter(e, nil)))
	t.Cleanup(srv.Close)

	code, resp := post(t, srv, `{"action":"activateSelectionMode","payload":{"xpath":"//p[@id='t']"}}`)
	require.Equal(t, http.StatusOK, code)
	require.True(t, resp.Success, resp.Error)

	res, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	var status struct {
		Success bool          `json:"success"`
		Data    engine.Status `json:"data"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&status))
	require.NoError(t, res.Body.Close())
	require.True(t, status.Success)
	require.True(t, status.Data.HasActiveSession)
	require.Equal(t, 11, status.Data.SessionInfo.Length)

	code, resp = post(t, srv, `{"action":"forceCleanup"}`)
	require.Equal(t, http.StatusOK, code)
	require.True(t, resp.Success)

	code, resp = post(t, srv, `{"action":"getSessionSummary"}`)
	require.Equal(t, http.StatusOK, code)
	require.True(t, resp.Success)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	require.Equal(t, model.ReasonForceCleanup, data["reason"])

	code, _ = post(t, srv, `{"action":"nope"}`)
	require.Equal(t, http.StatusNotFound, code)

	code, resp = post(t, srv, `not json`)
	require.Equal(t, http.StatusBadRequest, code)
	require.False(t, resp.Success)
}
