package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crtx-sg/iotix/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdoutWriter_EncodesOneLinePerPoint(t *testing.T) {
	var buf bytes.Buffer
	w := NewStdoutWriter(&buf)

	points := []Point{
		{DeviceID: "d1", Attribute: "temperature", Value: 21.5, Source: model.SourceSimulated, Timestamp: time.Now()},
		{DeviceID: "d2", Attribute: "humidity", Value: 55, Source: model.SourceSimulated, Timestamp: time.Now()},
	}
	require.NoError(t, w.Write(context.Background(), points))
	require.NoError(t, w.Close())

	lines := bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n"))
	assert.Len(t, lines, 2)
	var decoded Point
	require.NoError(t, json.Unmarshal(lines[0], &decoded))
	assert.Equal(t, "d1", decoded.DeviceID)
}

func TestHTTPWriter_PostsBatchWithBearerToken(t *testing.T) {
	var gotAuth string
	var gotBody []wirePoint
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	writer := NewHTTPWriter(srv.URL, "secret-token")
	points := []Point{
		{DeviceID: "d1", Attribute: "temperature", Value: 21.5, Source: model.SourceSimulated, Timestamp: time.Now(), Measurement: "telemetry"},
	}
	require.NoError(t, writer.Write(context.Background(), points))
	require.NoError(t, writer.Close())

	assert.Equal(t, "Bearer secret-token", gotAuth)
	require.Len(t, gotBody, 1)
	assert.Equal(t, "d1", gotBody[0].DeviceID)
	assert.Equal(t, "telemetry", gotBody[0].Measurement)
}

func TestHTTPWriter_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	writer := NewHTTPWriter(srv.URL, "")
	err := writer.Write(context.Background(), []Point{{DeviceID: "d1"}})
	assert.Error(t, err)
}
