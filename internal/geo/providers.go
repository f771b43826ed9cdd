package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/errandly/backend/internal/retry"
)

const providerTimeout = 10 * time.Second

// HTTPResolver geocodes through a Nominatim-compatible endpoint.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: providerTimeout},
	}
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (r *HTTPResolver) Resolve(ctx context.Context, text string) (Point, string, error) {
	q := url.Values{"q": {text}, "format": {"json"}, "limit": {"1"}}
	var places []nominatimPlace
	if err := r.getJSON(ctx, r.baseURL+"/search?"+q.Encode(), &places); err != nil {
		return Point{}, "", err
	}
	if len(places) == 0 {
		return Point{}, "", fmt.Errorf("no geocoding result for %q", text)
	}
	lat, err1 := strconv.ParseFloat(places[0].Lat, 64)
	lon, err2 := strconv.ParseFloat(places[0].Lon, 64)
	if err1 != nil || err2 != nil {
		return Point{}, "", fmt.Errorf("malformed geocoding result for %q", text)
	}
	return Point{Lat: lat, Lon: lon}, places[0].DisplayName, nil
}

func (r *HTTPResolver) Reverse(ctx context.Context, p Point) (string, error) {
	q := url.Values{
		"lat":    {strconv.FormatFloat(p.Lat, 'f', -1, 64)},
		"lon":    {strconv.FormatFloat(p.Lon, 'f', -1, 64)},
		"format": {"json"},
	}
	var place nominatimPlace
	if err := r.getJSON(ctx, r.baseURL+"/reverse?"+q.Encode(), &place); err != nil {
		return "", err
	}
	if place.DisplayName == "" {
		return "", fmt.Errorf("no address at %.5f,%.5f", p.Lat, p.Lon)
	}
	return place.DisplayName, nil
}

func (r *HTTPResolver) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return retry.Transient(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return retry.Transient(fmt.Errorf("geocoder returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("geocoder returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// OSRMDistance asks an OSRM-compatible routing server for one-to-many road
// distances via the table service.
type OSRMDistance struct {
	baseURL string
	client  *http.Client
}

func NewOSRMDistance(baseURL string) *OSRMDistance {
	return &OSRMDistance{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: providerTimeout},
	}
}

type osrmTableResponse struct {
	Code      string      `json:"code"`
	Distances [][]float64 `json:"distances"`
}

func (o *OSRMDistance) DistanceKm(ctx context.Context, from Point, to []Point) ([]float64, error) {
	var coords strings.Builder
	fmt.Fprintf(&coords, "%f,%f", from.Lon, from.Lat)
	for _, p := range to {
		fmt.Fprintf(&coords, ";%f,%f", p.Lon, p.Lat)
	}
	dests := make([]string, len(to))
	for i := range to {
		dests[i] = strconv.Itoa(i + 1)
	}
	rawURL := fmt.Sprintf("%s/table/v1/driving/%s?sources=0&destinations=%s&annotations=distance",
		o.baseURL, coords.String(), strings.Join(dests, ";"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, retry.Transient(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, retry.Transient(fmt.Errorf("routing server returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("routing server returned %d", resp.StatusCode)
	}

	var table osrmTableResponse
	if err := json.NewDecoder(resp.Body).Decode(&table); err != nil {
		return nil, err
	}
	if table.Code != "Ok" || len(table.Distances) == 0 || len(table.Distances[0]) != len(to) {
		return nil, fmt.Errorf("routing server returned unusable table (code %s)", table.Code)
	}

	out := make([]float64, len(to))
	for i, meters := range table.Distances[0] {
		out[i] = meters / 1000
	}
	return out, nil
}
