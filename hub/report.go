package hub

// RegistryReport is a point-in-time census of one registry.
type RegistryReport struct {
	NumAllocated        int `json:"num_allocated" yaml:"num_allocated"`
	NumKeptFromUser     int `json:"num_kept_from_user" yaml:"num_kept_from_user"`
	NumReleasedFromUser int `json:"num_released_from_user" yaml:"num_released_from_user"`
	NumError            int `json:"num_error" yaml:"num_error"`
	ElementSize         int `json:"element_size" yaml:"element_size"`
}

// IsEmpty reports whether the registry held nothing when sampled.
func (r RegistryReport) IsEmpty() bool {
	return r.NumAllocated+r.NumKeptFromUser+r.NumError == 0
}
