package leach

import (
	"encoding/json"
	"net/http"

	"github.com/ccdlab/leachgo/server"
)

// HTTPWrapper wraps a Controller in an HTTP control interface
type HTTPWrapper struct {
	*Controller

	server.RouteTable
}

// RT satisfies server.HTTPer
func (h HTTPWrapper) RT() server.RouteTable {
	return h.RouteTable
}

// NewHTTPWrapper creates an HTTPWrapper with its route table populated
func NewHTTPWrapper(c *Controller) HTTPWrapper {
	w := HTTPWrapper{Controller: c}
	rt := server.RouteTable{}
	post := func(path string, handler http.HandlerFunc) {
		rt[server.MethodPath{Method: http.MethodPost, Path: path}] = handler
	}
	post("/integral-time", w.SetIntegralTime)
	post("/gain-speed", w.SetGainSpeed)
	post("/pedestal-wait", setFloat(c.ApplyNewPedestalIntegralWait))
	post("/signal-wait", setFloat(c.ApplyNewSignalIntegralWait))
	post("/dg-width", setFloat(c.ApplyDGWidth))
	post("/og-width", setFloat(c.ApplyOGWidth))
	post("/rg-width", setFloat(c.ApplySkippingRGWidth))
	post("/sw-width", setFloat(c.ApplySummingWellWidth))
	post("/erase", w.Erase)
	post("/idle-clocks", setBool(c.SetIdleClocks))
	post("/substrate-bias", setBool(c.CCDBiasToggle))
	rt[server.MethodPath{Method: http.MethodGet, Path: "/integrator-speed"}] = w.GetIntegratorSpeed
	w.RouteTable = rt
	return w
}

// setFloat adapts a float setter to a handler taking {"f64": value}
func setFloat(fcn func(float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := server.FloatT{}
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := fcn(f.F64); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// setBool is setFloat for {"bool": value}
func setBool(fcn func(bool) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := server.BoolT{}
		err := json.NewDecoder(r.Body).Decode(&b)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := fcn(b.Bool); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// integralTime is used to decode integration time commands over JSON
type integralTime struct {
	TimeUS float64 `json:"f64"`
	Gain   int     `json:"gain"`
}

// gainSpeed is used to decode gain/speed commands over JSON
type gainSpeed struct {
	Gain int  `json:"gain"`
	Fast bool `json:"fast"`
}

// SetIntegralTime applies a new integration time and gain
func (h HTTPWrapper) SetIntegralTime(w http.ResponseWriter, r *http.Request) {
	it := integralTime{}
	err := json.NewDecoder(r.Body).Decode(&it)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.ApplyNewIntegralTimeAndGain(it.TimeUS, it.Gain); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// SetGainSpeed applies a gain and speed directly, without touching the
// integration time
func (h HTTPWrapper) SetGainSpeed(w http.ResponseWriter, r *http.Request) {
	gs := gainSpeed{}
	err := json.NewDecoder(r.Body).Decode(&gs)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	speed := Slow
	if gs.Fast {
		speed = Fast
	}
	if err := h.ApplyGainAndSpeed(gs.Gain, speed); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Erase runs the erase procedure; the request blocks for the dwell
func (h HTTPWrapper) Erase(w http.ResponseWriter, r *http.Request) {
	if err := h.PerformEraseProcedure(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetIntegratorSpeed reports the speed last sent to the hardware
func (h HTTPWrapper) GetIntegratorSpeed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"str": h.IntegratorSpeed().String()})
}
