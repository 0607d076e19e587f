package container

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type marketStatus struct {
	Market        string `json:"market"`
	LastCycle     string `json:"lastCycle,omitempty"`
	Breaker       string `json:"breaker"`
	InFlight      bool   `json:"inFlight"`
	MinTickSpread int64  `json:"minTickSpread"`
	MaxTickSpread int64  `json:"maxTickSpread"`
	OrderNum      int    `json:"orderNum"`
	OrderSize     string `json:"orderSize"`
	Policy        string `json:"residualPolicy"`
	Adaptive      bool   `json:"adaptiveSpread"`
}

// Router ops 接口：/metrics、/healthz、/markets/{market}
func (c *Container) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", c.monitor.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if err := c.HealthCheck(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/markets", func(w http.ResponseWriter, _ *http.Request) {
		out := make([]marketStatus, 0, len(c.engine.Markets()))
		for _, name := range c.engine.Markets() {
			out = append(out, c.status(name))
		}
		writeJSON(w, out)
	})
	r.Get("/markets/{market}", func(w http.ResponseWriter, req *http.Request) {
		// 市场名含 "/"，客户端需要转义为 %2F
		name, err := url.PathUnescape(chi.URLParam(req, "market"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, ok := c.engine.Settings(name); !ok {
			http.NotFound(w, req)
			return
		}
		writeJSON(w, c.status(name))
	})
	return r
}

func (c *Container) status(name string) marketStatus {
	s, _ := c.engine.Settings(name)
	st := marketStatus{
		Market:        name,
		Breaker:       c.orders.BreakerState(name),
		InFlight:      c.orders.InFlight(name),
		MinTickSpread: s.Params.MinTickSpread,
		MaxTickSpread: s.Params.MaxTickSpread,
		OrderNum:      s.Params.OrderNum,
		OrderSize:     s.Params.OrderSize.String(),
		Policy:        string(s.Policy),
		Adaptive:      s.AdaptiveSpread,
	}
	if last, ok := c.engine.LastCycle(name); ok {
		st.LastCycle = last.UTC().Format(time.RFC3339)
	}
	return st
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
