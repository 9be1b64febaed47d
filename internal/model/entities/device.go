package entities

// DeviceProfile holds the mutable per-device settings managed over the HTTP
// API. Created implicitly on first write; absent fields are empty strings.
type DeviceProfile struct {
	DeviceID    string `json:"deviceId"`
	PlantName   string `json:"plantName"`
	NotifyEmail string `json:"notifyEmail"`
}
