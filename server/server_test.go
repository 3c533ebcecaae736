package server_test

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"

	"github.com/ccdlab/leachgo/server"
)

type fixed struct {
	rt server.RouteTable
}

func (f fixed) RT() server.RouteTable { return f.rt }

func TestBindServesRoutesAndRouteList(t *testing.T) {
	hit := false
	h := fixed{rt: server.RouteTable{
		server.MethodPath{Method: http.MethodPost, Path: "/dg-width"}: func(w http.ResponseWriter, r *http.Request) {
			hit = true
			w.WriteHeader(http.StatusOK)
		},
	}}
	mux := chi.NewRouter()
	server.Bind(mux, h)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/dg-width", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !hit {
		t.Errorf("bound route did not serve: status %d, hit %v", resp.StatusCode, hit)
	}

	resp, err = http.Get(srv.URL + "/route-list")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "/dg-width") {
		t.Errorf("route-list should mention /dg-width, got %s", body)
	}
}

func TestListEndpoints(t *testing.T) {
	rt := server.RouteTable{
		server.MethodPath{Method: http.MethodGet, Path: "/a"}:  nil,
		server.MethodPath{Method: http.MethodPost, Path: "/b"}: nil,
	}
	eps := rt.ListEndpoints()
	if len(eps) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(eps))
	}
}
