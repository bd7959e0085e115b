package protocol

import "encoding/json"

// RoutePlannerStatus is the /routeplanner/status response. Details depend on Class.
type RoutePlannerStatus struct {
	Class   string          `json:"class"`
	Details json.RawMessage `json:"details"`
}
