package elev

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

const (
	OpenTopoEndpoint = "https://api.opentopodata.org/v1"
	// alternatives to mapzen are etopo1, srtm30m and aster30m
	OpenTopoDataset = "mapzen"
)

// OpenTopoData is the opentopodata.org API (or a self-hosted instance).
type OpenTopoData struct {
	Endpoint string
	Dataset  string
}

func NewOpenTopoData(endpoint, dataset string) *OpenTopoData {
	if endpoint == "" {
		endpoint = OpenTopoEndpoint
	}
	if dataset == "" {
		dataset = OpenTopoDataset
	}
	return &OpenTopoData{Endpoint: strings.TrimSuffix(endpoint, "/"), Dataset: dataset}
}

func (s *OpenTopoData) Name() string {
	return "opentopodata"
}

// The public API caps requests at 100 locations, one call per second.
func (s *OpenTopoData) MaxBatch() int {
	return 100
}

func (s *OpenTopoData) MinInterval() time.Duration {
	return time.Second
}

func (s *OpenTopoData) NewRequest(ctx context.Context, pts []orb.Point) (*http.Request, error) {
	var sb strings.Builder
	for i, p := range pts {
		if i > 0 {
			sb.WriteByte('|')
		}
		fmt.Fprintf(&sb, "%.7f,%.7f", p.Lat(), p.Lon())
	}
	q := url.Values{}
	q.Set("locations", sb.String())
	req := fmt.Sprintf("%s/%s?%s", s.Endpoint, url.PathEscape(s.Dataset), q.Encode())
	return http.NewRequestWithContext(ctx, http.MethodGet, req, nil)
}

type topoResult struct {
	Elevation *float64 `json:"elevation"`
	Location  struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
}

type topoResponse struct {
	Status  string       `json:"status"`
	Error   string       `json:"error"`
	Results []topoResult `json:"results"`
}

// Decode maps results back in request order; a null elevation is a point
// outside the dataset.
func (s *OpenTopoData) Decode(body []byte, n int) ([]Reading, error) {
	var res topoResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, &DecodeError{Service: s.Name(), Err: err}
	}
	if res.Status != "OK" {
		return nil, &DecodeError{Service: s.Name(), Err: fmt.Errorf("status %q: %s", res.Status, res.Error)}
	}
	if len(res.Results) != n {
		return nil, countError(s.Name(), len(res.Results), n)
	}
	out := make([]Reading, n)
	for i, r := range res.Results {
		if r.Elevation != nil {
			out[i] = Reading{Elevation: *r.Elevation, OK: true}
		}
	}
	return out, nil
}
