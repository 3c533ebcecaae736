// Package server contains small utilities shared by the HTTP adapters.
package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi"
)

// FloatT is a struct holding a single float64, used for JSON bodies
// {"f64": value}
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is like FloatT but for ints, {"int": value}
type IntT struct {
	Int int `json:"int"`
}

// BoolT is like FloatT but for bools, {"bool": value}
type BoolT struct {
	Bool bool `json:"bool"`
}

// MethodPath is a route: an HTTP method and a URL path
type MethodPath struct {
	Method string
	Path   string
}

// RouteTable maps routes to handlers
type RouteTable map[MethodPath]http.HandlerFunc

// ListEndpoints lists the endpoints in a RouteTable (the keys)
func (rt RouteTable) ListEndpoints() []string {
	routes := make([]string, 0, len(rt))
	for k := range rt {
		routes = append(routes, k.Method+" "+k.Path)
	}
	return routes
}

// HTTPer is an object which can provide its route table
type HTTPer interface {
	RT() RouteTable
}

// Bind attaches every route of an HTTPer to a chi router, plus a
// route-list endpoint returning all of them as JSON
func Bind(r chi.Router, h HTTPer) {
	rt := h.RT()
	for mp, handler := range rt {
		r.MethodFunc(mp.Method, mp.Path, handler)
	}
	r.Get("/route-list", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(rt.ListEndpoints()); err != nil {
			log.Println("error encoding route list to json", err)
		}
	})
}
