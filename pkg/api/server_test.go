package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/armseq/pkg/sequencer"
)

type fakeController struct {
	state       sequencer.State
	interrupted int
}

func (f *fakeController) Status() sequencer.State { return f.state }

func (f *fakeController) Interrupt() bool {
	if !f.state.Running {
		return false
	}
	f.interrupted++
	return true
}

func do(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s := NewServer(&fakeController{}, nil, nil)
	rec := do(s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatus(t *testing.T) {
	ctrl := &fakeController{state: sequencer.State{
		Running:   true,
		Program:   "wave",
		Segment:   2,
		Label:     "reach",
		Total:     3300,
		Frames:    1200,
		Authority: 1,
	}}
	s := NewServer(ctrl, nil, nil)

	rec := do(s, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, true, got["running"])
	assert.Equal(t, "reach", got["label"])
	assert.Equal(t, 1200.0, got["frames"])
	assert.Len(t, got["pose"], 9)
}

func TestInterrupt(t *testing.T) {
	ctrl := &fakeController{}
	s := NewServer(ctrl, nil, nil)

	rec := do(s, http.MethodPost, "/api/interrupt")
	assert.Equal(t, http.StatusConflict, rec.Code)

	ctrl.state = sequencer.State{Running: true, Program: "wave"}
	rec = do(s, http.MethodPost, "/api/interrupt")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"interrupted":true,"program":"wave"}`, rec.Body.String())
	assert.Equal(t, 1, ctrl.interrupted)

	rec = do(s, http.MethodGet, "/api/interrupt")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := sequencer.NewMetrics(reg)
	m.FramesEmitted.Add(3)

	s := NewServer(&fakeController{}, reg, nil)
	rec := do(s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "armseq_frames_emitted_total 3")

	s = NewServer(&fakeController{}, nil, nil)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/metrics").Code)
}
