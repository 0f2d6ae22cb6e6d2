package telemetry

// Span attribute keys shared by the service and its adapters.
const (
	AttrGridSource      = "grid.source"
	AttrGridFingerprint = "grid.fingerprint"
	AttrGridSizeBytes   = "grid.size_bytes"
)
