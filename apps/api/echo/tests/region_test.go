package tests

import (
	"net/http"
	"testing"

	"github.com/pgri-okutimur/anggota/core/region"
)

func Test_regionApi(t *testing.T) {
	app := newTestApp(t)

	type listResp struct {
		Success   bool          `json:"success"`
		Provinces []region.Unit `json:"provinces,omitempty"`
		Regencies []region.Unit `json:"regencies,omitempty"`
		Districts []region.Unit `json:"districts,omitempty"`
		Villages  []region.Unit `json:"villages,omitempty"`
	}
	type failResp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	fail := func(msg string) []byte { return marshalObj(t, failResp{Error: msg}) }

	app.run(t, []httpTest{
		{
			name: "provinces", path: "/api/provinces",
			wantData: marshalObj(t, listResp{Success: true, Provinces: []region.Unit{{ID: 17, Name: "Bengkulu"}, {ID: 16, Name: "Sumatera Selatan"}}}),
		},
		{
			name: "regencies", path: "/api/regencies?provinceId=16",
			wantData: marshalObj(t, listResp{Success: true, Regencies: []region.Unit{
				{ID: 1601, Name: "Ogan Komering Ulu", ParentID: 16},
				{ID: 1608, Name: "Ogan Komering Ulu Timur", ParentID: 16},
			}}),
		},
		{
			name: "districts", path: "/api/districts?regencyId=1608",
			wantData: marshalObj(t, listResp{Success: true, Districts: []region.Unit{
				{ID: 160802, Name: "Belitang", ParentID: 1608},
				{ID: 160801, Name: "Martapura", ParentID: 1608},
			}}),
		},
		{
			name: "villages", path: "/api/villages?districtId=160801",
			wantData: marshalObj(t, listResp{Success: true, Villages: []region.Unit{
				{ID: 1608011002, Name: "Dusun Martapura", ParentID: 160801},
				{ID: 1608011001, Name: "Pasar Martapura", ParentID: 160801},
			}}),
		},
		{name: "no children", path: "/api/regencies?provinceId=17", wantData: []byte(`{"success": true, "regencies": []}`)},
		{name: "unknown parent", path: "/api/villages?districtId=999999", wantData: []byte(`{"success": true, "villages": []}`)},
		{name: "missing parent", path: "/api/regencies", wantCode: http.StatusBadRequest, wantData: fail("provinceId is required")},
		{
			name: "malformed parent", path: "/api/districts?regencyId=abc", wantCode: http.StatusBadRequest,
			wantData: fail("regencyId must be a positive integer"),
		},
		{
			name: "negative parent", path: "/api/villages?districtId=-1", wantCode: http.StatusBadRequest,
			wantData: fail("districtId must be a positive integer"),
		},
	})
}
