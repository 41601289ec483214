package handlers

import (
	"fmt"

	"github.com/austinmesh/bridger/pkg/meshmodel"
	"github.com/austinmesh/bridger/pkg/meshpb"
)

// HandleTelemetry checks the Telemetry payload's three sub-variants in
// order: environment_metrics, then device_metrics, then power_metrics.
// Environment produces one SensorTelemetryPoint, device one
// DeviceTelemetryPoint, power a list of PowerTelemetryPoint (one per
// channel carrying both a voltage and a current).
func HandleTelemetry(header meshmodel.Header, payload []byte, _ Options) ([]meshmodel.Point, error) {
	t, err := meshpb.UnmarshalTelemetry(payload)
	if err != nil {
		return nil, fmt.Errorf("handlers: decode Telemetry payload: %w", err)
	}

	if t.EnvironmentMetrics != nil {
		em := t.EnvironmentMetrics
		point := meshmodel.SensorTelemetryPoint{
			Header:             header,
			BarometricPressure: f64ptr(em.BarometricPressure),
			Current:            f64ptr(em.Current),
			GasResistance:      f64ptr(em.GasResistance),
			RelativeHumidity:   f64ptr(em.RelativeHumidity),
			Temperature:        f64ptr(em.Temperature),
			Voltage:            f64ptr(em.Voltage),
			IAQ:                em.IAQ,
			ChannelUtilization: f64ptr(em.ChannelUtilization),
		}
		return []meshmodel.Point{point}, nil
	}

	if t.DeviceMetrics != nil {
		dm := t.DeviceMetrics
		point := meshmodel.DeviceTelemetryPoint{
			Header:             header,
			BatteryLevel:       dm.BatteryLevel,
			Voltage:            f64ptr(dm.Voltage),
			AirUtilTx:          f64ptr(dm.AirUtilTx),
			ChannelUtilization: f64ptr(dm.ChannelUtilization),
			UptimeSeconds:      dm.UptimeSeconds,
		}
		return []meshmodel.Point{point}, nil
	}

	if t.PowerMetrics != nil {
		return powerPoints(header, t.PowerMetrics), nil
	}

	return nil, nil
}

// powerPoints expands one PowerMetrics payload into a list of points, one
// per channel whose voltage and current are both present.
func powerPoints(header meshmodel.Header, pm *meshpb.PowerMetrics) []meshmodel.Point {
	var points []meshmodel.Point

	type channel struct {
		name    string
		voltage *float32
		current *float32
	}
	channels := []channel{
		{"ch1", pm.Ch1Voltage, pm.Ch1Current},
		{"ch2", pm.Ch2Voltage, pm.Ch2Current},
		{"ch3", pm.Ch3Voltage, pm.Ch3Current},
	}

	for _, ch := range channels {
		if ch.voltage == nil || ch.current == nil {
			continue
		}
		points = append(points, meshmodel.PowerTelemetryPoint{
			Header:  header,
			Channel: ch.name,
			Voltage: float64(*ch.voltage),
			Current: float64(*ch.current),
		})
	}
	return points
}

func f64ptr(v *float32) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}
