package telemetry

import "log/slog"

// Metrics is the per-frame performance picture exposed to dashboards, the
// viewer and metrics.csv.
type Metrics struct {
	Frame   uint64  `csv:"frame" json:"frame"`
	SimTime float64 `csv:"sim_time" json:"sim_time"`

	Near   int `csv:"near" json:"near"`
	Medium int `csv:"medium" json:"medium"`
	Far    int `csv:"far" json:"far"`
	Culled int `csv:"culled" json:"culled"`

	NearTicks   int `csv:"near_ticks" json:"near_ticks"`
	MediumTicks int `csv:"medium_ticks" json:"medium_ticks"`
	FarTicks    int `csv:"far_ticks" json:"far_ticks"`

	FrameMS     float64 `csv:"frame_ms" json:"frame_ms"`
	MeanFrameMS float64 `csv:"mean_frame_ms" json:"mean_frame_ms"`
	KernelMS    float64 `csv:"kernel_ms" json:"kernel_ms"`
	LoadFactor  float64 `csv:"load_factor" json:"load_factor"`

	QualityLevel int    `csv:"quality_level" json:"quality_level"`
	QualityName  string `csv:"quality_name" json:"quality_name"`

	Population int `csv:"population" json:"population"`
	Corpses    int `csv:"corpses" json:"corpses"`

	Dispatches uint64 `csv:"dispatches" json:"dispatches"`
	Fallbacks  uint64 `csv:"fallbacks" json:"fallbacks"`
	Timeouts   uint64 `csv:"timeouts" json:"timeouts"`
}

// LogValue implements slog.LogValuer.
func (m Metrics) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("frame", m.Frame),
		slog.Int("near", m.Near),
		slog.Int("medium", m.Medium),
		slog.Int("far", m.Far),
		slog.Int("culled", m.Culled),
		slog.Float64("mean_frame_ms", m.MeanFrameMS),
		slog.Float64("kernel_ms", m.KernelMS),
		slog.Float64("load_factor", m.LoadFactor),
		slog.String("quality_level", m.QualityName),
		slog.Int("population", m.Population),
	)
}
