package domain

// EngineType distinguishes engines running beside the service from hosted ones.
type EngineType string

const (
	EngineTypeLocal  EngineType = "local"
	EngineTypeRemote EngineType = "remote"
)

// EngineDescriptor is a registry listing entry. Healthy reflects the probe
// taken at listing time and is not cached.
type EngineDescriptor struct {
	EngineID   string     `json:"engine_id"`
	EngineType EngineType `json:"engine_type"`
	Healthy    bool       `json:"healthy"`
}
