package elev

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stronnag/altimap/pkg/geo"
)

func TestIGNRequest(t *testing.T) {
	s := NewIGN("", "")
	req, err := s.NewRequest(context.Background(), []orb.Point{{6.25, 44.9}, {6.5, 45.125}})
	require.NoError(t, err)
	q := req.URL.Query()
	assert.Equal(t, "6.2500000|6.5000000", q.Get("lon"))
	assert.Equal(t, "44.9000000|45.1250000", q.Get("lat"))
	assert.Equal(t, "true", q.Get("zonly"))
	assert.Equal(t, IGNResource, q.Get("resource"))
	assert.Equal(t, "data.geopf.fr", req.URL.Host)
}

func TestIGNDecode(t *testing.T) {
	s := NewIGN("", "")
	r, err := s.Decode([]byte(`{"elevations":[1200.5, {"lon":6.2,"lat":44.9,"z":980,"acc":2.5}, null, {"z":-99999}]}`), 4)
	require.NoError(t, err)
	assert.Equal(t, []Reading{{1200.5, true}, {980, true}, {}, {}}, r)

	_, err = s.Decode([]byte(`{"elevations":[1]}`), 2)
	var de *DecodeError
	assert.ErrorAs(t, err, &de)

	_, err = s.Decode([]byte(`<html>busy</html>`), 1)
	assert.ErrorAs(t, err, &de)

	_, err = s.Decode([]byte(`{"elevations":["high"]}`), 1)
	assert.ErrorAs(t, err, &de)
}

func TestOpenTopoRequest(t *testing.T) {
	s := NewOpenTopoData("http://localhost:5000/v1/", "srtm30m")
	req, err := s.NewRequest(context.Background(), []orb.Point{{6.25, 44.9}, {-1.5, -10}})
	require.NoError(t, err)
	assert.Equal(t, "/v1/srtm30m", req.URL.Path)
	assert.Equal(t, "44.9000000,6.2500000|-10.0000000,-1.5000000", req.URL.Query().Get("locations"))
}

func TestOpenTopoDecode(t *testing.T) {
	s := NewOpenTopoData("", "")
	body := `{"results":[{"dataset":"mapzen","elevation":815.0,"location":{"lat":56.0,"lng":123.0}},
		{"dataset":"mapzen","elevation":null,"location":{"lat":0.0,"lng":0.0}}],"status":"OK"}`
	r, err := s.Decode([]byte(body), 2)
	require.NoError(t, err)
	assert.Equal(t, []Reading{{815, true}, {}}, r)

	_, err = s.Decode([]byte(`{"error":"Too many locations","status":"INVALID_REQUEST"}`), 2)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, err.Error(), "Too many locations")
}

func TestOpenTopoFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mapzen", r.URL.Path)
		w.Write([]byte(`{"results":[{"elevation":10.5},{"elevation":null}],"status":"OK"}`))
	}))
	defer srv.Close()

	cfg := DefaultConfig
	cfg.MinDelay = 0
	c := NewClient(NewOpenTopoData(srv.URL, ""), cfg, newFakeClock())
	res, err := c.Fetch(context.Background(), []geo.SamplePoint{{Row: 0, Col: 0, Lat: 1, Lon: 2}, {Row: 0, Col: 1, Lat: 1, Lon: 3}})
	require.NoError(t, err)
	assert.True(t, res.Samples[0].OK)
	assert.Equal(t, 10.5, res.Samples[0].Elevation)
	assert.False(t, res.Samples[1].OK)
	assert.Empty(t, res.Errors)
}

func TestByName(t *testing.T) {
	s, err := ByName("ign", "", "")
	require.NoError(t, err)
	assert.Equal(t, "ign", s.Name())
	assert.Equal(t, 200*time.Millisecond, s.MinInterval())

	s, err = ByName("opentopo", "http://example.org/v1", "etopo1")
	require.NoError(t, err)
	assert.Equal(t, "opentopodata", s.Name())
	assert.Equal(t, "etopo1", s.(*OpenTopoData).Dataset)

	_, err = ByName("google", "", "")
	assert.Error(t, err)
}
