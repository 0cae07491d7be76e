// Package metrics holds the Prometheus collectors for the adapter driver.
// All collectors register with the default registry and are served by the
// status server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carlink_frames_in_total",
		Help: "Frames decoded from the adapter, by type",
	}, []string{"type"})

	FramesOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carlink_frames_out_total",
		Help: "Frames written to the adapter, by type",
	}, []string{"type"})

	BytesIn = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carlink_bytes_in_total",
		Help: "Raw bytes read from the adapter channel",
	})

	Resyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carlink_resyncs_total",
		Help: "Byte-stream resynchronisations after a bad envelope, by cause",
	}, []string{"cause"})

	PayloadErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carlink_payload_errors_total",
		Help: "Well-formed frames whose payload matched no layout, by type",
	}, []string{"type"})

	Keepalives = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carlink_keepalives_sent_total",
		Help: "Heartbeat frames sent",
	})

	LivenessTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carlink_liveness_timeouts_total",
		Help: "Sessions ended by read silence",
	})

	Sessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carlink_sessions_ended_total",
		Help: "Sessions ended, by reason",
	}, []string{"reason"})

	Phase = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "carlink_session_phase",
		Help: "Current session phase (0 idle, 1 opening, 2 connecting, 3 streaming, 4 terminated)",
	})

	ProtocolViolations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carlink_protocol_violations_total",
		Help: "Well-formed frames discarded as invalid for the current phase",
	})

	VideoDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carlink_video_decisions_total",
		Help: "Video admission decisions, by stream and decision",
	}, []string{"stream", "decision"})

	VideoAge = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "carlink_video_frame_age_seconds",
		Help:    "Age of video frames at admission time",
		Buckets: []float64{0.001, 0.005, 0.01, 0.02, 0.03, 0.04, 0.06, 0.1, 0.2},
	}, []string{"stream"})

	KeyframeRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carlink_keyframe_requests_total",
		Help: "Keyframe requests sent after decoder corruption",
	})

	AudioCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carlink_audio_commands_total",
		Help: "Audio commands received, by command",
	}, []string{"command"})

	AudioDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carlink_audio_pcm_dropped_total",
		Help: "PCM chunks dropped, by audio type",
	}, []string{"audio_type"})
)
