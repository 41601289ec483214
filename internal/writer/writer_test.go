package writer

import (
	"reflect"
	"strings"
	"testing"
	"time"

	lineprotocol "github.com/influxdata/line-protocol/v2/lineprotocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/austinmesh/bridger/pkg/meshmodel"
)

func TestEncodeLineNodeInfo(t *testing.T) {
	point := meshmodel.NodeInfoPoint{
		Header: meshmodel.Header{
			ChannelID: "LongFast",
			GatewayID: "!00000001",
			From:      541570005,
			To:        0xFFFFFFFF,
			PacketID:  2636105321,
			RxTime:    1609459200,
		},
		LongName:  "egrme.sh Palm",
		ShortName: "egrp",
		HwModel:   9,
		Role:      1,
		ID:        "!2047b3d5",
	}

	line, err := encodeLine(point, lineprotocol.Second)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(line, "node,"))
	assert.Contains(t, line, `channel_id=LongFast`)
	assert.Contains(t, line, `long_name=egrme.sh\ Palm`)
	assert.Contains(t, line, `id="!2047b3d5"`)
	assert.Contains(t, line, "1609459200\n")
}

func TestEncodeLineOmitsNilOptionalFields(t *testing.T) {
	point := meshmodel.PositionPoint{
		Header:     meshmodel.Header{ChannelID: "LongFast", RxTime: 100},
		LatitudeI:  123456,
		LongitudeI: 654321,
	}

	line, err := encodeLine(point, lineprotocol.Second)
	require.NoError(t, err)

	assert.Contains(t, line, "latitude_i=123456i")
	assert.NotContains(t, line, "altitude=")
	assert.NotContains(t, line, "gps_time=")
}

func TestEncodeLinePowerTelemetryTagsChannel(t *testing.T) {
	point := meshmodel.PowerTelemetryPoint{
		Header:  meshmodel.Header{ChannelID: "LongFast", RxTime: 1},
		Channel: "ch3",
		Voltage: 4.1,
		Current: 0.5,
	}

	line, err := encodeLine(point, lineprotocol.Second)
	require.NoError(t, err)
	assert.Contains(t, line, "channel=ch3")
	assert.Contains(t, line, "voltage=4.1")
}

func testWriter() *Writer {
	w := New("http://localhost:9999", "unused", "unused", "unused", "annotations", "s")
	w.nowFunc = func() time.Time { return time.Unix(1700000000, 0) }
	return w
}

func TestPrepareAnnotationDefaultsStartTime(t *testing.T) {
	w := testWriter()

	prepared, err := w.prepareAnnotation(meshmodel.AnnotationPoint{
		NodeID:         "1a2b3c4d",
		AnnotationType: "reposition",
		Body:           "moved to the water tower",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), prepared.StartTime)
	assert.Equal(t, time.Unix(1700000000, 0), prepared.Time())
}

func TestPrepareAnnotationKeepsExplicitStartTime(t *testing.T) {
	w := testWriter()

	end := int64(1600000100)
	prepared, err := w.prepareAnnotation(meshmodel.AnnotationPoint{
		NodeID:    "1a2b3c4d",
		StartTime: 1600000000,
		EndTime:   &end,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1600000000), prepared.StartTime)
}

func TestPrepareAnnotationRejectsEndBeforeStart(t *testing.T) {
	w := testWriter()

	end := int64(1600000000)
	_, err := w.prepareAnnotation(meshmodel.AnnotationPoint{
		NodeID:    "1a2b3c4d",
		StartTime: 1600000100,
		EndTime:   &end,
	})
	assert.Error(t, err)

	// end == start is rejected too.
	end = 1600000100
	_, err = w.prepareAnnotation(meshmodel.AnnotationPoint{
		NodeID:    "1a2b3c4d",
		StartTime: 1600000100,
		EndTime:   &end,
	})
	assert.Error(t, err)
}

func TestSchemaForIsCachedPerType(t *testing.T) {
	t1 := schemaFor(reflect.TypeOf(meshmodel.NodeInfoPoint{}))
	t2 := schemaFor(reflect.TypeOf(meshmodel.NodeInfoPoint{}))
	assert.Equal(t, len(t1), len(t2))
	assert.NotEmpty(t, t1)
}
