package meshmodel

import "time"

// Header carries the fields common to every TypedPoint variant. Tag fields
// are written as InfluxDB tags, Value fields as InfluxDB fields; see
// internal/writer for the reflection that turns this (and each variant) into
// line-protocol tag/field sets.
type Header struct {
	ChannelID string `mtag:"channel_id"`
	GatewayID string `mtag:"gateway_id"`
	From      uint32 `mtag:"_from"`
	To        uint32 `mtag:"to"`

	PacketID uint32  `mfield:"packet_id"`
	RxTime   int64   `mfield:"rx_time"`
	RxSNR    float32 `mfield:"rx_snr"`
	RxRSSI   int32   `mfield:"rx_rssi"`
	HopLimit uint32  `mfield:"hop_limit"`
	HopStart uint32  `mfield:"hop_start"`
}

// Time is the record timestamp derived from the packet's receive time.
// RxTime is still written as an ordinary field (the common header field
// list includes it) in addition to being used here.
func (h Header) Time() time.Time { return time.Unix(h.RxTime, 0) }

// Point is implemented by every TypedPoint variant.
type Point interface {
	Measurement() string
	Time() time.Time
}

// NodeInfoPoint corresponds to the NODEINFO_APP port.
type NodeInfoPoint struct {
	Header

	LongName  string `mtag:"long_name"`
	ShortName string `mtag:"short_name"`
	HwModel   int32  `mtag:"hw_model"`
	Role      int32  `mtag:"role"`

	ID string `mfield:"id"`
}

func (NodeInfoPoint) Measurement() string { return "node" }

// PositionPoint corresponds to the POSITION_APP port. It is only constructed
// when both LatitudeI and LongitudeI are present (see internal/handlers).
type PositionPoint struct {
	Header

	LatitudeI     int32    `mfield:"latitude_i"`
	LongitudeI    int32    `mfield:"longitude_i"`
	Altitude      *int32   `mfield:"altitude"`
	PrecisionBits *uint32  `mfield:"precision_bits"`
	GPSTime       *int64   `mfield:"gps_time"`
	PDOP          *float64 `mfield:"PDOP"`
	SatsInView    *uint32  `mfield:"sats_in_view"`
}

func (PositionPoint) Measurement() string { return "position" }

// SensorTelemetryPoint corresponds to the "environment_metrics" telemetry
// sub-variant.
type SensorTelemetryPoint struct {
	Header

	BarometricPressure *float64 `mfield:"barometric_pressure"`
	Current            *float64 `mfield:"current"`
	GasResistance      *float64 `mfield:"gas_resistance"`
	RelativeHumidity   *float64 `mfield:"relative_humidity"`
	Temperature        *float64 `mfield:"temperature"`
	Voltage            *float64 `mfield:"voltage"`
	IAQ                *uint32  `mfield:"iaq"`
	ChannelUtilization *float64 `mfield:"channel_utilization"`
}

func (SensorTelemetryPoint) Measurement() string { return "sensor" }

// DeviceTelemetryPoint corresponds to the "device_metrics" telemetry
// sub-variant.
type DeviceTelemetryPoint struct {
	Header

	BatteryLevel       *uint32  `mfield:"battery_level"`
	Voltage            *float64 `mfield:"voltage"`
	AirUtilTx          *float64 `mfield:"air_util_tx"`
	ChannelUtilization *float64 `mfield:"channel_utilization"`
	UptimeSeconds      *uint32  `mfield:"uptime_seconds"`
}

func (DeviceTelemetryPoint) Measurement() string { return "battery" }

// PowerTelemetryPoint corresponds to one channel of the "power_metrics"
// telemetry sub-variant. A payload expands into one of these per channel
// that carries both a voltage and a current.
type PowerTelemetryPoint struct {
	Header

	Channel string `mtag:"channel"`

	Voltage float64 `mfield:"voltage"`
	Current float64 `mfield:"current"`
}

func (PowerTelemetryPoint) Measurement() string { return "power" }

// NeighborInfoPoint is emitted once per neighbor entry in a NEIGHBORINFO_APP
// payload.
type NeighborInfoPoint struct {
	Header

	NodeID       string `mtag:"node_id"`
	LastSentByID string `mtag:"last_sent_by_id"`
	NeighborID   string `mtag:"neighbor_id"`

	SNR                       *float32 `mfield:"snr"`
	NodeBroadcastIntervalSecs *uint32  `mfield:"node_broadcast_interval_secs"`
}

func (NeighborInfoPoint) Measurement() string { return "neighbor" }

// TextMessagePoint corresponds to the TEXT_MESSAGE_APP port. Text is nil
// unless the handler was configured with strip_text=false.
type TextMessagePoint struct {
	Header

	Text *string `mfield:"text"`
}

func (TextMessagePoint) Measurement() string { return "message" }

// TraceroutePoint corresponds to the TRACEROUTE_APP port. Routes are encoded as
// comma-separated hex node ids.
type TraceroutePoint struct {
	Header

	Route       string   `mfield:"route"`
	SNRTowards  string   `mfield:"snr_towards"`
	RouteBack   string   `mfield:"route_back"`
	SNRBack     string   `mfield:"snr_back"`
}

func (TraceroutePoint) Measurement() string { return "traceroute" }

// AnnotationPoint is operator-authored and written to the separate
// "annotations" bucket rather than the main measurement bucket.
type AnnotationPoint struct {
	NodeID           string `mtag:"node_id"`
	AnnotationType   string `mtag:"annotation_type"`
	Author           string `mtag:"author"`
	GlobalAnnotation bool   `mtag:"global_annotation"`

	Body      string `mfield:"body"`
	StartTime int64  `mfield:"start_time"`
	EndTime   *int64 `mfield:"end_time"`
}

func (AnnotationPoint) Measurement() string { return "annotation" }

// Time uses StartTime (a zero value is defaulted to the current time
// before writing) rather than a header receive time, since annotations are
// operator-authored, not derived from a mesh packet.
func (a AnnotationPoint) Time() time.Time { return time.Unix(a.StartTime, 0) }
