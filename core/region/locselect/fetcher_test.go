package locselect

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pgri-okutimur/anggota/core/region"
)

func newMasterDataServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/provinces", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"provinces":[{"id":1,"name":"Sumatera Selatan"}]}`)
	})
	mux.HandleFunc("/api/regencies", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("provinceId") {
		case "1":
			fmt.Fprint(w, `{"success":true,"regencies":[{"id":5,"name":"OKU Timur","parentId":1}]}`)
		case "2":
			fmt.Fprint(w, `{"success":false,"error":"province not found"}`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	mux.HandleFunc("/api/districts", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"success":true,"districts":[{"id":12,"name":"Martapura","parentId":%s}]}`, r.URL.Query().Get("regencyId"))
	})
	mux.HandleFunc("/api/villages", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"villages":[]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPFetcher(t *testing.T) {
	srv := newMasterDataServer(t)
	f := NewHTTPFetcher(srv.URL+"/api/", nil)
	ctx := context.Background()

	provinces, err := f.Provinces(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []region.Unit{{ID: 1, Name: "Sumatera Selatan"}}, provinces)

	regencies, err := f.Regencies(ctx, 1)
	assert.NoError(t, err)
	assert.Equal(t, []region.Unit{{ID: 5, Name: "OKU Timur", ParentID: 1}}, regencies)

	_, err = f.Regencies(ctx, 2)
	assert.EqualError(t, err, "GET /regencies: province not found")

	_, err = f.Regencies(ctx, 3)
	assert.EqualError(t, err, "GET /regencies: unexpected status 500")

	districts, err := f.Districts(ctx, 5)
	assert.NoError(t, err)
	assert.Equal(t, []region.Unit{{ID: 12, Name: "Martapura", ParentID: 5}}, districts)

	villages, err := f.Villages(ctx, 12)
	assert.NoError(t, err)
	assert.Empty(t, villages)
}

func TestHTTPFetcher_DrivesSelector(t *testing.T) {
	srv := newMasterDataServer(t)
	s := New(NewHTTPFetcher(srv.URL+"/api", srv.Client()))
	defer s.Close()

	err := s.InitializeFromExisting(context.Background(), region.Selection{ProvinceID: 1, RegencyID: 5, DistrictID: 12})
	assert.NoError(t, err)

	st := s.State()
	assert.Equal(t, region.Selection{ProvinceID: 1, RegencyID: 5, DistrictID: 12}, st.Selection)
	assert.Equal(t, Populated, st.Tiers[region.TierVillage])
	if assert.Len(t, st.Notices, 1) {
		assert.Equal(t, EmptyResult, st.Notices[0].Kind)
		assert.Equal(t, region.TierVillage, st.Notices[0].Tier)
	}
}
