package locselect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/pgri-okutimur/anggota/core/region"
)

// Fetcher loads the option list of a tier scoped to its parent.
type Fetcher interface {
	Provinces(ctx context.Context) ([]region.Unit, error)
	Regencies(ctx context.Context, provinceID int) ([]region.Unit, error)
	Districts(ctx context.Context, regencyID int) ([]region.Unit, error)
	Villages(ctx context.Context, districtID int) ([]region.Unit, error)
}

// ServiceFetcher reads the master data in process.
type ServiceFetcher struct {
	svc region.Service
}

var _ Fetcher = (*ServiceFetcher)(nil)

func NewServiceFetcher(svc region.Service) *ServiceFetcher {
	return &ServiceFetcher{svc: svc}
}

func (f *ServiceFetcher) Provinces(ctx context.Context) ([]region.Unit, error) {
	return f.svc.Provinces(ctx)
}

func (f *ServiceFetcher) Regencies(ctx context.Context, provinceID int) ([]region.Unit, error) {
	return f.svc.Children(ctx, region.TierRegency, provinceID)
}

func (f *ServiceFetcher) Districts(ctx context.Context, regencyID int) ([]region.Unit, error) {
	return f.svc.Children(ctx, region.TierDistrict, regencyID)
}

func (f *ServiceFetcher) Villages(ctx context.Context, districtID int) ([]region.Unit, error) {
	return f.svc.Children(ctx, region.TierVillage, districtID)
}

// HTTPFetcher reads the master data from the /api/provinces, /api/regencies, /api/districts
// and /api/villages endpoints.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher returns a fetcher for the API mounted at baseURL, e.g. "http://localhost:8000/api".
// A nil client means http.DefaultClient.
func NewHTTPFetcher(baseURL string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

type listResponse struct {
	Success   bool          `json:"success"`
	Error     string        `json:"error"`
	Provinces []region.Unit `json:"provinces"`
	Regencies []region.Unit `json:"regencies"`
	Districts []region.Unit `json:"districts"`
	Villages  []region.Unit `json:"villages"`
}

func (f *HTTPFetcher) Provinces(ctx context.Context) ([]region.Unit, error) {
	resp, err := f.get(ctx, "/provinces", nil)
	if err != nil {
		return nil, err
	}
	return resp.Provinces, nil
}

func (f *HTTPFetcher) Regencies(ctx context.Context, provinceID int) ([]region.Unit, error) {
	resp, err := f.get(ctx, "/regencies", url.Values{"provinceId": {strconv.Itoa(provinceID)}})
	if err != nil {
		return nil, err
	}
	return resp.Regencies, nil
}

func (f *HTTPFetcher) Districts(ctx context.Context, regencyID int) ([]region.Unit, error) {
	resp, err := f.get(ctx, "/districts", url.Values{"regencyId": {strconv.Itoa(regencyID)}})
	if err != nil {
		return nil, err
	}
	return resp.Districts, nil
}

func (f *HTTPFetcher) Villages(ctx context.Context, districtID int) ([]region.Unit, error) {
	resp, err := f.get(ctx, "/villages", url.Values{"districtId": {strconv.Itoa(districtID)}})
	if err != nil {
		return nil, err
	}
	return resp.Villages, nil
}

func (f *HTTPFetcher) get(ctx context.Context, path string, params url.Values) (*listResponse, error) {
	u := f.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("Accept", "application/json")

	res, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", path)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, errors.Errorf("GET %s: unexpected status %d", path, res.StatusCode)
	}
	resp := new(listResponse)
	if err = json.NewDecoder(res.Body).Decode(resp); err != nil {
		return nil, errors.Wrapf(err, "decoding %s response", path)
	}
	if !resp.Success {
		if resp.Error == "" {
			resp.Error = "request was not successful"
		}
		return nil, errors.Errorf("GET %s: %s", path, resp.Error)
	}
	return resp, nil
}
