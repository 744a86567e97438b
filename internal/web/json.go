package web

import (
	"encoding/json"

	"github.com/sweeney/thermo-calibrator/internal/status"
)

func formatLocationJSON(loc status.Location) []byte {
	data, _ := json.MarshalIndent(status.LocationToJSON(loc), "", "  ")
	return data
}
