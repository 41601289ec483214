package handlers

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/austinmesh/bridger/pkg/meshmodel"
	"github.com/austinmesh/bridger/pkg/meshpb"
)

func testHeader() meshmodel.Header {
	return meshmodel.Header{
		ChannelID: "LongFast",
		GatewayID: "!00000001",
		From:      111,
		To:        meshmodel.BroadcastNodeID,
		PacketID:  1,
	}
}

func TestHandlePositionGating(t *testing.T) {
	r := NewRegistry()

	// A Position payload missing latitude/longitude yields no point.
	noCoordPoints, err := r.Dispatch(meshpb.PortPosition, testHeader(), []byte{}, Options{})
	require.NoError(t, err)
	assert.Nil(t, noCoordPoints)

	// Forcing decode yields a point even without coordinates.
	forced, err := r.Dispatch(meshpb.PortPosition, testHeader(), []byte{}, Options{ForceDecode: true})
	require.NoError(t, err)
	require.Len(t, forced, 1)
	_, ok := forced[0].(meshmodel.PositionPoint)
	assert.True(t, ok)
}

func TestHandleTelemetryBranchingPowerSplit(t *testing.T) {
	r := NewRegistry()

	v := func(f float32) *float32 { return &f }
	pm := &meshpb.PowerMetrics{
		Ch1Voltage: v(5.0),
		Ch3Voltage: v(4.1),
		Ch3Current: v(0.5),
		Ch2Current: v(0.8),
	}
	payload := marshalPowerMetrics(t, pm)

	points, err := r.Dispatch(meshpb.PortTelemetry, testHeader(), payload, Options{})
	require.NoError(t, err)
	require.Len(t, points, 1)
	p, ok := points[0].(meshmodel.PowerTelemetryPoint)
	require.True(t, ok)
	assert.Equal(t, "ch3", p.Channel)
}

func TestHandleTelemetryPowerSplitTwoChannels(t *testing.T) {
	r := NewRegistry()

	v := func(f float32) *float32 { return &f }
	pm := &meshpb.PowerMetrics{
		Ch1Voltage: v(5.0),
		Ch1Current: v(0.4),
		Ch2Voltage: v(6.1),
		Ch2Current: v(0.8),
	}
	payload := marshalPowerMetrics(t, pm)

	points, err := r.Dispatch(meshpb.PortTelemetry, testHeader(), payload, Options{})
	require.NoError(t, err)
	require.Len(t, points, 2)

	channels := map[string]bool{}
	for _, p := range points {
		pp := p.(meshmodel.PowerTelemetryPoint)
		channels[pp.Channel] = true
	}
	assert.True(t, channels["ch1"])
	assert.True(t, channels["ch2"])
}

func TestHandleNeighborInfoExpansion(t *testing.T) {
	r := NewRegistry()

	snr1 := float32(10.1)
	snr2 := float32(7.5)
	ni := &meshpb.NeighborInfo{
		NodeID: 999,
		Neighbors: []meshpb.Neighbor{
			{NodeID: 111, SNR: &snr1},
			{NodeID: 222, SNR: &snr2},
		},
	}
	payload := marshalNeighborInfo(t, ni)

	points, err := r.Dispatch(meshpb.PortNeighborInfo, testHeader(), payload, Options{})
	require.NoError(t, err)
	require.Len(t, points, 2)

	ids := map[string]bool{}
	for _, p := range points {
		np := p.(meshmodel.NeighborInfoPoint)
		ids[np.NeighborID] = true
	}
	assert.True(t, ids[meshmodel.HexWithoutBang(111)])
	assert.True(t, ids[meshmodel.HexWithoutBang(222)])
}

func TestHandleNeighborInfoEmptyYieldsNil(t *testing.T) {
	r := NewRegistry()
	points, err := r.Dispatch(meshpb.PortNeighborInfo, testHeader(), []byte{}, Options{})
	require.NoError(t, err)
	assert.Nil(t, points)
}

func TestHandleTextDefaultStripsBody(t *testing.T) {
	r := NewRegistry()
	points, err := r.Dispatch(meshpb.PortTextMessage, testHeader(), []byte("hello"), Options{StripText: true})
	require.NoError(t, err)
	require.Len(t, points, 1)
	tp := points[0].(meshmodel.TextMessagePoint)
	assert.Nil(t, tp.Text)
}

func TestHandleTextKeepsBodyWhenConfigured(t *testing.T) {
	r := NewRegistry()
	points, err := r.Dispatch(meshpb.PortTextMessage, testHeader(), []byte("hello"), Options{StripText: false})
	require.NoError(t, err)
	require.Len(t, points, 1)
	tp := points[0].(meshmodel.TextMessagePoint)
	require.NotNil(t, tp.Text)
	assert.Equal(t, "hello", *tp.Text)
}

func TestHandleNodeInfoAlwaysEmitsOnePoint(t *testing.T) {
	r := NewRegistry()
	user := &meshpb.User{ID: "!2047b3d5", LongName: "egrme.sh Palm", ShortName: "egrp", HwModel: 9, Role: 1}
	payload := user.Marshal()

	points, err := r.Dispatch(meshpb.PortNodeInfo, testHeader(), payload, Options{})
	require.NoError(t, err)
	require.Len(t, points, 1)
	np := points[0].(meshmodel.NodeInfoPoint)
	assert.Equal(t, "!2047b3d5", np.ID)
	assert.Equal(t, "egrme.sh Palm", np.LongName)
	assert.Equal(t, int32(9), np.HwModel)
}

// marshalPowerMetrics/marshalNeighborInfo re-encode the hand-modeled
// payload types for use as handler inputs, mirroring how a real inbound
// payload would arrive on the wire.
func marshalPowerMetrics(t *testing.T, pm *meshpb.PowerMetrics) []byte {
	t.Helper()
	var inner []byte
	appendFloat := func(num protowire.Number, v *float32) {
		if v == nil {
			return
		}
		inner = protowire.AppendTag(inner, num, protowire.Fixed32Type)
		inner = protowire.AppendFixed32(inner, math.Float32bits(*v))
	}
	appendFloat(1, pm.Ch1Voltage)
	appendFloat(2, pm.Ch1Current)
	appendFloat(3, pm.Ch2Voltage)
	appendFloat(4, pm.Ch2Current)
	appendFloat(5, pm.Ch3Voltage)
	appendFloat(6, pm.Ch3Current)

	var outer []byte
	outer = protowire.AppendTag(outer, 5, protowire.BytesType)
	outer = protowire.AppendBytes(outer, inner)
	return outer
}

func marshalNeighborInfo(t *testing.T, ni *meshpb.NeighborInfo) []byte {
	t.Helper()
	var b []byte
	if ni.NodeID != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(ni.NodeID))
	}
	for _, n := range ni.Neighbors {
		var nb []byte
		nb = protowire.AppendTag(nb, 1, protowire.VarintType)
		nb = protowire.AppendVarint(nb, uint64(n.NodeID))
		if n.SNR != nil {
			nb = protowire.AppendTag(nb, 2, protowire.Fixed32Type)
			nb = protowire.AppendFixed32(nb, math.Float32bits(*n.SNR))
		}
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, nb)
	}
	return b
}
