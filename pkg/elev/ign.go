package elev

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

const (
	IGNEndpoint = "https://data.geopf.fr/altimetrie/1.0/calcul/alti/rest/elevation.json"
	IGNResource = "ign_rge_alti_wld"
	// IGN reports points outside its coverage with this value.
	IGNNoData = -99999.0
)

// IGN is the French Géoplateforme altimetry REST service.
type IGN struct {
	Endpoint string
	Resource string
}

func NewIGN(endpoint, resource string) *IGN {
	if endpoint == "" {
		endpoint = IGNEndpoint
	}
	if resource == "" {
		resource = IGNResource
	}
	return &IGN{Endpoint: endpoint, Resource: resource}
}

func (s *IGN) Name() string {
	return "ign"
}

func (s *IGN) MaxBatch() int {
	return 50
}

func (s *IGN) MinInterval() time.Duration {
	return 200 * time.Millisecond
}

func joinCoords(pts []orb.Point, f func(orb.Point) float64) string {
	var sb strings.Builder
	for i, p := range pts {
		if i > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(strconv.FormatFloat(f(p), 'f', 7, 64))
	}
	return sb.String()
}

func (s *IGN) NewRequest(ctx context.Context, pts []orb.Point) (*http.Request, error) {
	q := url.Values{}
	q.Set("lon", joinCoords(pts, orb.Point.Lon))
	q.Set("lat", joinCoords(pts, orb.Point.Lat))
	q.Set("resource", s.Resource)
	q.Set("zonly", "true")
	return http.NewRequestWithContext(ctx, http.MethodGet, s.Endpoint+"?"+q.Encode(), nil)
}

type ignResponse struct {
	Elevations []json.RawMessage `json:"elevations"`
}

// Decode accepts both the zonly form (bare numbers) and the full form
// ({"lon":..,"lat":..,"z":..}).
func (s *IGN) Decode(body []byte, n int) ([]Reading, error) {
	var res ignResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, &DecodeError{Service: s.Name(), Err: err}
	}
	if len(res.Elevations) != n {
		return nil, countError(s.Name(), len(res.Elevations), n)
	}
	out := make([]Reading, n)
	for i, raw := range res.Elevations {
		z, ok, err := ignValue(raw)
		if err != nil {
			return nil, &DecodeError{Service: s.Name(), Err: fmt.Errorf("elevation %d: %w", i, err)}
		}
		if ok && z > IGNNoData {
			out[i] = Reading{Elevation: z, OK: true}
		}
	}
	return out, nil
}

func ignValue(raw json.RawMessage) (float64, bool, error) {
	raw = bytes.TrimSpace(raw)
	switch {
	case bytes.Equal(raw, []byte("null")):
		return 0, false, nil
	case len(raw) > 0 && raw[0] == '{':
		var v struct {
			Z *float64 `json:"z"`
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return 0, false, err
		}
		if v.Z == nil {
			return 0, false, nil
		}
		return *v.Z, true, nil
	}
	var z float64
	if err := json.Unmarshal(raw, &z); err != nil {
		return 0, false, err
	}
	return z, true, nil
}
