// Package writer maps TypedPoint values to measurement/tag/field triples
// and flushes them to InfluxDB: line-protocol/v2 builds the encoded line,
// influxdb-client-go/v2 carries it over HTTP.
package writer

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	lineprotocol "github.com/influxdata/line-protocol/v2/lineprotocol"

	"github.com/austinmesh/bridger/pkg/log"
	"github.com/austinmesh/bridger/pkg/meshmodel"
)

// Writer writes meshmodel.Point values to the two configured buckets: the
// main telemetry bucket and the separate annotations bucket.
type Writer struct {
	client            influxdb2.Client
	mainWriteAPI      api.WriteAPIBlocking
	annotationsAPI    api.WriteAPIBlocking
	precision         lineprotocol.Precision
	authFailureLogged bool
	nowFunc           func() time.Time
}

// New constructs a Writer against the given InfluxDB connection. precision
// is one of "s", "ms", "us", "ns"; invalid values default to
// seconds.
func New(url, token, org, bucket, annotationsBucket, precision string) *Writer {
	lp, d := parsePrecision(precision)
	client := influxdb2.NewClientWithOptions(url, token,
		influxdb2.DefaultOptions().SetPrecision(d))
	return &Writer{
		client:         client,
		mainWriteAPI:   client.WriteAPIBlocking(org, bucket),
		annotationsAPI: client.WriteAPIBlocking(org, annotationsBucket),
		precision:      lp,
		nowFunc:        time.Now,
	}
}

// parsePrecision returns the same precision twice: once for the line
// encoder's timestamp truncation and once for the client's write-request
// precision parameter. The two must agree or the server misreads every
// timestamp.
func parsePrecision(p string) (lineprotocol.Precision, time.Duration) {
	switch p {
	case "ms":
		return lineprotocol.Millisecond, time.Millisecond
	case "us":
		return lineprotocol.Microsecond, time.Microsecond
	case "ns":
		return lineprotocol.Nanosecond, time.Nanosecond
	default:
		return lineprotocol.Second, time.Second
	}
}

// Close releases the underlying HTTP client.
func (w *Writer) Close() {
	w.client.Close()
}

// Write encodes and flushes one or more points. Annotation points are
// routed to the annotations bucket; everything else goes to the main
// bucket. Authentication failures are logged once and the call returns;
// other API errors are logged and returned to the caller.
func (w *Writer) Write(ctx context.Context, points ...meshmodel.Point) error {
	for _, p := range points {
		if err := w.writeOne(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeOne(ctx context.Context, p meshmodel.Point) error {
	writeAPI := w.mainWriteAPI
	if ann, ok := p.(meshmodel.AnnotationPoint); ok {
		prepared, err := w.prepareAnnotation(ann)
		if err != nil {
			return err
		}
		p = prepared
		writeAPI = w.annotationsAPI
	}

	line, err := encodeLine(p, w.precision)
	if err != nil {
		return fmt.Errorf("writer: encode %s point: %w", p.Measurement(), err)
	}

	if err := writeAPI.WriteRecord(ctx, line); err != nil {
		if isAuthError(err) {
			if !w.authFailureLogged {
				log.Errorf("writer: authentication failure writing to InfluxDB: %v", err)
				w.authFailureLogged = true
			}
			return nil
		}
		log.Errorf("writer: write %s point: %v", p.Measurement(), err)
		return err
	}
	return nil
}

// prepareAnnotation applies the annotation lifetime rules before encoding:
// a zero StartTime defaults to the current time, and EndTime must be after
// StartTime when set.
func (w *Writer) prepareAnnotation(a meshmodel.AnnotationPoint) (meshmodel.AnnotationPoint, error) {
	if a.StartTime == 0 {
		a.StartTime = w.nowFunc().Unix()
	}
	if a.EndTime != nil && *a.EndTime <= a.StartTime {
		return a, fmt.Errorf("writer: annotation end_time %d is not after start_time %d", *a.EndTime, a.StartTime)
	}
	return a, nil
}

// encodeLine reflects over p's schema (cached per type) and renders one
// line-protocol record.
func encodeLine(p meshmodel.Point, precision lineprotocol.Precision) (string, error) {
	v := reflect.ValueOf(p)
	specs := schemaFor(v.Type())

	var enc lineprotocol.Encoder
	enc.SetPrecision(precision)
	enc.StartLine(p.Measurement())

	for _, spec := range specs {
		if !spec.isTag {
			continue
		}
		fv := v.FieldByIndex(spec.index)
		if s, ok := tagValue(fv); ok {
			enc.AddTag(spec.name, s)
		}
	}
	for _, spec := range specs {
		if spec.isTag {
			continue
		}
		fv := v.FieldByIndex(spec.index)
		if val, ok := scalarValue(fv); ok {
			enc.AddField(spec.name, val)
		}
	}
	enc.EndLine(p.Time())

	if err := enc.Err(); err != nil {
		return "", err
	}
	return string(enc.Bytes()), nil
}

func tagValue(v reflect.Value) (string, bool) {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return "", false
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.String:
		s := v.String()
		return s, s != ""
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), true
	default:
		return fmt.Sprint(v.Interface()), true
	}
}

func scalarValue(v reflect.Value) (lineprotocol.Value, bool) {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return lineprotocol.Value{}, false
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.String:
		s := v.String()
		if s == "" {
			return lineprotocol.Value{}, false
		}
		return lineprotocol.StringValue(s)
	case reflect.Bool:
		return lineprotocol.BoolValue(v.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lineprotocol.IntValue(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return lineprotocol.UintValue(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return lineprotocol.FloatValue(v.Float())
	default:
		return lineprotocol.Value{}, false
	}
}

// isAuthError reports whether err looks like an InfluxDB 401/403 response.
// The client wraps HTTP failures in an internal error type, so the status
// has to be sniffed from the message.
func isAuthError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "401") ||
		strings.Contains(msg, "403")
}
