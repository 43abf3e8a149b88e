package operator

import (
	"encoding/json"
	"net/http"

	"k8s.io/klog/v2"
)

// HealthPath is where ProbeHandler is mounted
const HealthPath = "/healthz"

// ProbeHandler answers liveness probes
func ProbeHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"status": "healthy"}); err != nil {
			klog.Errorf("Could not write probe response: %s", err)
		}
	})
}
