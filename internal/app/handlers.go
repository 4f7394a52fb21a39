package app

import (
	"encoding/json"
	"net/http"
)

// InfoResponse describes the connection as seen through any proxies.
type InfoResponse struct {
	ConnectingIP string            `json:"connecting_ip"`
	ProxyIP      string            `json:"proxy_ip"`
	Host         string            `json:"host"`
	UserAgent    string            `json:"user-agent"`
	Headers      map[string]string `json:"headers"`
}

func handleHello(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Hello World!"))
}

func handleInfo(w http.ResponseWriter, r *http.Request) {
	headers := make(map[string]string, len(r.Header)+1)
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}
	// Go lifts Host out of the header map.
	headers["Host"] = r.Host

	writeJSON(w, http.StatusOK, InfoResponse{
		ConnectingIP: r.Header.Get("X-Real-IP"),
		ProxyIP:      r.Header.Get("X-Forwarded-For"),
		Host:         r.Host,
		UserAgent:    r.UserAgent(),
		Headers:      headers,
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
