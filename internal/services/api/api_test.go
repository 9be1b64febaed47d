package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/auralink/plantlink/internal/model/entities"
	"github.com/auralink/plantlink/internal/model/messages"
	"github.com/auralink/plantlink/internal/services/devicecache"
	"github.com/auralink/plantlink/internal/services/inbox"
)

type stubStore struct {
	readings   []messages.SensorReading
	advisories []messages.AdvisoryPayload
	profiles   map[string]entities.DeviceProfile
	fields     map[string]string // "device/field" -> value
	err        error
}

func newStubStore() *stubStore {
	return &stubStore{
		profiles: make(map[string]entities.DeviceProfile),
		fields:   make(map[string]string),
	}
}

func (s *stubStore) RecentReadings(_ context.Context, _ string, limit int) ([]messages.SensorReading, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.readings) > limit {
		return s.readings[:limit], nil
	}
	return s.readings, nil
}

func (s *stubStore) RecentAdvisories(_ context.Context, _ string, limit int) ([]messages.AdvisoryPayload, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.advisories) > limit {
		return s.advisories[:limit], nil
	}
	return s.advisories, nil
}

func (s *stubStore) LatestAdvisory(_ context.Context, _ string) (messages.AdvisoryPayload, bool, error) {
	if s.err != nil {
		return messages.AdvisoryPayload{}, false, s.err
	}
	if len(s.advisories) == 0 {
		return messages.AdvisoryPayload{}, false, nil
	}
	return s.advisories[0], true, nil
}

func (s *stubStore) Profile(_ context.Context, deviceID string) (entities.DeviceProfile, error) {
	if s.err != nil {
		return entities.DeviceProfile{}, s.err
	}
	return s.profiles[deviceID], nil
}

func (s *stubStore) SetProfileField(_ context.Context, deviceID, field, value string) error {
	if s.err != nil {
		return s.err
	}
	s.fields[deviceID+"/"+field] = value
	return nil
}

func newTestServer(st *stubStore) *Server {
	return NewServer(st, devicecache.New(st), nil)
}

func do(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rdr *strings.Reader
	if body == "" {
		rdr = strings.NewReader("{}")
	} else {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	rec := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec, decoded
}

func TestHealth(t *testing.T) {
	rec, body := do(t, newTestServer(newStubStore()), http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["ok"])
}

func TestSetPlantNamePersistsAndCaches(t *testing.T) {
	st := newStubStore()
	srv := newTestServer(st)

	rec, body := do(t, srv, http.MethodPost, "/api/device/dev-001/plant", `{"plantName":" Basil "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Basil", body["plantName"])
	require.Equal(t, "Basil", st.fields["dev-001/plant_name"])

	// the write-through means the next GET is served from cache
	st.err = errors.New("influx down")
	rec, body = do(t, srv, http.MethodGet, "/api/device/dev-001/plant", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Basil", body["plantName"])
}

func TestSetPlantNameRejectsEmpty(t *testing.T) {
	rec, body := do(t, newTestServer(newStubStore()), http.MethodPost, "/api/device/dev-001/plant", `{"plantName":"  "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, false, body["ok"])
}

func TestSetNotifyEmailStorageFailure(t *testing.T) {
	st := newStubStore()
	st.err = errors.New("influx down")

	rec, _ := do(t, newTestServer(st), http.MethodPost, "/api/device/dev-001/notify-email", `{"email":"a@b.c"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRecentReadings(t *testing.T) {
	st := newStubStore()
	st.readings = []messages.SensorReading{
		{DeviceID: "dev-001", Timestamp: time.Now(), TempC: 30.8, HumPct: 62, SoilPct: 48},
		{DeviceID: "dev-001", Timestamp: time.Now(), TempC: 30.9, HumPct: 61, SoilPct: 47},
	}

	rec, body := do(t, newTestServer(st), http.MethodGet, "/api/device/dev-001/readings?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 1, body["count"])
}

func TestLatestDisplayNotFound(t *testing.T) {
	rec, body := do(t, newTestServer(newStubStore()), http.MethodGet, "/api/device/dev-001/display/latest", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "no display yet", body["error"])
}

func TestLatestDisplayFound(t *testing.T) {
	st := newStubStore()
	st.advisories = []messages.AdvisoryPayload{{
		Timestamp: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Quote:     "q",
		Priority:  messages.PriorityNormal,
	}}

	rec, body := do(t, newTestServer(st), http.MethodGet, "/api/device/dev-001/display/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["ok"])
	require.NotNil(t, body["payload"])
}

func TestInboxWithoutReaderIsEmpty(t *testing.T) {
	rec, body := do(t, newTestServer(newStubStore()), http.MethodGet, "/api/inbox/recent", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 0, body["count"])
}

type stubInbox struct{ mails []inbox.Mail }

func (s *stubInbox) Recent(max int) []inbox.Mail {
	if len(s.mails) > max {
		return s.mails[:max]
	}
	return s.mails
}

func TestInboxRecentCapped(t *testing.T) {
	st := newStubStore()
	srv := NewServer(st, devicecache.New(st), &stubInbox{mails: []inbox.Mail{
		{From: "a", Subject: "s1"}, {From: "b", Subject: "s2"}, {From: "c", Subject: "s3"},
	}})

	rec, body := do(t, srv, http.MethodGet, "/api/inbox/recent?max=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 2, body["count"])
}

func TestParseLimitBounds(t *testing.T) {
	mk := func(q string) *http.Request {
		return httptest.NewRequest(http.MethodGet, "/x"+q, nil)
	}
	require.Equal(t, 50, parseLimit(mk(""), 50, 500))
	require.Equal(t, 50, parseLimit(mk("?limit=abc"), 50, 500))
	require.Equal(t, 1, parseLimit(mk("?limit=0"), 50, 500))
	require.Equal(t, 500, parseLimit(mk("?limit=9999"), 50, 500))
	require.Equal(t, 25, parseLimit(mk("?limit=25"), 50, 500))
}
