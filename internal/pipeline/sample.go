package pipeline

// Sample is one normalized metric value handed to sinks.
// Params: metric identity, rounded value, and global tags.
// Returns: one sample payload.
type Sample struct {
	DT        uint64  `json:"dt"`
	Metric    string  `json:"metric"`
	Kind      string  `json:"kind"`
	Value     float64 `json:"value"`
	Precision int     `json:"precision"`
	DC        string  `json:"dc"`
	Host      string  `json:"host"`
	Project   string  `json:"project"`
	Role      string  `json:"role"`
}

// SampleTags contains global tags added to every sample.
// Params: values from config.global.
// Returns: immutable tags used by the dispatcher.
type SampleTags struct {
	DC      string
	Host    string
	Project string
	Role    string
}
