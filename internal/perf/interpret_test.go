package perf

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// decodeTree decodes JSON the same way the admin socket decoder does.
func decodeTree(t *testing.T, raw string) map[string]any {
	t.Helper()

	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()
	var out map[string]any
	require.NoError(t, decoder.Decode(&out))
	return out
}

func newTestInterpreter(t *testing.T, byteUnits ...string) (*Interpreter, *bytes.Buffer) {
	t.Helper()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	in, err := NewInterpreter(byteUnits, logger)
	require.NoError(t, err)
	return in, &logs
}

func TestInterpret_TimeLongRunAverage(t *testing.T) {
	in, _ := newTestInterpreter(t, "byte")
	stats := decodeTree(t, `{"osd":{"op_r_latency":{"avgcount":5,"sum":2.500000000}}}`)
	schema := decodeTree(t, `{"osd":{"op_r_latency":{"type":5}}}`)

	got, err := in.Interpret("ceph.osd_0", stats, schema)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "ceph.osd_0.osd.avg_op_r_latency", got[0].Name)
	require.InDelta(t, 0.5, got[0].Value, 1e-12)
	require.Equal(t, TimePrecision, got[0].Precision)
	require.Equal(t, KindGauge, got[0].Kind)
}

func TestInterpret_ZeroCountAverageIsZero(t *testing.T) {
	in, _ := newTestInterpreter(t, "byte")
	stats := decodeTree(t, `{"osd":{
		"op_r_latency":{"avgcount":0,"sum":0.000000000},
		"op_in_bytes_avg":{"avgcount":0,"sum":0}
	}}`)
	schema := decodeTree(t, `{"osd":{"op_r_latency":{"type":5},"op_in_bytes_avg":{"type":6}}}`)

	got, err := in.Interpret("p", stats, schema)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, metric := range got {
		require.Equal(t, 0.0, metric.Value, metric.Name)
	}
}

func TestInterpret_U64LongRunAverageBytes(t *testing.T) {
	in, _ := newTestInterpreter(t, "byte", "kilobyte")
	stats := decodeTree(t, `{"osd":{"op_bytes":{"avgcount":2,"sum":4096}}}`)
	schema := decodeTree(t, `{"osd":{"op_bytes":{"type":6}}}`)

	got, err := in.Interpret("p", stats, schema)
	require.NoError(t, err)
	require.Equal(t, []Metric{
		{Name: "p.osd.avg_op_byte", Value: 2048, Precision: ValuePrecision, Kind: KindGauge},
		{Name: "p.osd.avg_op_kilobyte", Value: 2, Precision: ValuePrecision, Kind: KindGauge},
	}, got)
}

func TestInterpret_U64LongRunAverage(t *testing.T) {
	in, _ := newTestInterpreter(t, "byte")
	stats := decodeTree(t, `{"objecter":{"op_size":{"avgcount":4,"sum":10}}}`)
	schema := decodeTree(t, `{"objecter":{"op_size":{"type":14}}}`)

	got, err := in.Interpret("p", stats, schema)
	require.NoError(t, err)
	require.Equal(t, []Metric{
		{Name: "p.objecter.avg_op_size", Value: 2.5, Precision: ValuePrecision, Kind: KindGauge},
	}, got)
}

func TestInterpret_CounterBytesExpandsAsCounters(t *testing.T) {
	in, _ := newTestInterpreter(t, "byte", "kilobyte", "megabyte")
	stats := decodeTree(t, `{"osd":{"op_r_out_bytes":1048576}}`)
	schema := decodeTree(t, `{"osd":{"op_r_out_bytes":{"type":10}}}`)

	got, err := in.Interpret("ceph.osd_0", stats, schema)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, metric := range got {
		require.Equal(t, KindCounter, metric.Kind, metric.Name)
		require.Equal(t, ValuePrecision, metric.Precision)
	}
	require.Equal(t, "ceph.osd_0.osd.op_r_out_byte", got[0].Name)
	require.Equal(t, 1048576.0, got[0].Value)
	require.Equal(t, "ceph.osd_0.osd.op_r_out_kilobyte", got[1].Name)
	require.Equal(t, 1024.0, got[1].Value)
	require.Equal(t, "ceph.osd_0.osd.op_r_out_megabyte", got[2].Name)
	require.Equal(t, 1.0, got[2].Value)
}

func TestInterpret_PlainValues(t *testing.T) {
	in, _ := newTestInterpreter(t, "byte")
	stats := decodeTree(t, `{
		"osd":{"op":120,"numpg":33,"stat_bytes":512,"loadavg_time":3.250000000},
		"throttle-msgr":{"val":7}
	}`)
	schema := decodeTree(t, `{
		"osd":{"op":{"type":10},"numpg":{"type":2},"stat_bytes":{"type":2},"loadavg_time":{"type":1}},
		"throttle-msgr":{"val":{"type":2}}
	}`)

	got, err := in.Interpret("ceph.mon_a", stats, schema)
	require.NoError(t, err)
	require.Equal(t, []Metric{
		{Name: "ceph.mon_a.osd.loadavg_time", Value: 3.25, Precision: TimePrecision, Kind: KindGauge},
		{Name: "ceph.mon_a.osd.numpg", Value: 33, Precision: ValuePrecision, Kind: KindGauge},
		{Name: "ceph.mon_a.osd.op", Value: 120, Precision: ValuePrecision, Kind: KindCounter},
		{Name: "ceph.mon_a.osd.stat_byte", Value: 512, Precision: ValuePrecision, Kind: KindGauge},
		{Name: "ceph.mon_a.throttle-msgr.val", Value: 7, Precision: ValuePrecision, Kind: KindGauge},
	}, got)
}

func TestInterpret_UnexpectedTypeIsSkipped(t *testing.T) {
	in, logs := newTestInterpreter(t, "byte")
	stats := decodeTree(t, `{"osd":{"flags":1,"op":3,"weird_avg":{"avgcount":1,"sum":1}}}`)
	schema := decodeTree(t, `{"osd":{"flags":{"type":8},"op":{"type":2},"weird_avg":{"type":4}}}`)

	got, err := in.Interpret("p", stats, schema)
	require.NoError(t, err)
	require.Equal(t, []Metric{
		{Name: "p.osd.op", Value: 3, Precision: ValuePrecision, Kind: KindGauge},
	}, got)
	require.Contains(t, logs.String(), "p.osd.flags")
	require.Contains(t, logs.String(), "p.osd.weird_avg")
	require.Contains(t, logs.String(), ErrUnexpectedType.Error())
}

func TestInterpret_BadTimeSkipsOnlyThatCounter(t *testing.T) {
	in, logs := newTestInterpreter(t, "byte")
	stats := decodeTree(t, `{"osd":{"a_time":"soon","b":4}}`)
	schema := decodeTree(t, `{"osd":{"a_time":{"type":1},"b":{"type":2}}}`)

	got, err := in.Interpret("p", stats, schema)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "p.osd.b", got[0].Name)
	require.Contains(t, logs.String(), "p.osd.a_time")
}

func TestInterpret_NonFiniteValueSkipsOnlyThatCounter(t *testing.T) {
	in, logs := newTestInterpreter(t, "byte")
	stats := decodeTree(t, `{"osd":{"a":"NaN","b":3,"c":"-Inf"}}`)
	schema := decodeTree(t, `{"osd":{"a":{"type":2},"b":{"type":2},"c":{"type":10}}}`)

	got, err := in.Interpret("p", stats, schema)
	require.NoError(t, err)
	require.Equal(t, []Metric{
		{Name: "p.osd.b", Value: 3, Precision: ValuePrecision, Kind: KindGauge},
	}, got)
	require.Contains(t, logs.String(), "p.osd.a")
	require.Contains(t, logs.String(), "p.osd.c")

	flat, err := in.Flat("p", stats)
	require.NoError(t, err)
	require.Equal(t, []Metric{
		{Name: "p.osd.b", Value: 3, Precision: ValuePrecision, Kind: KindGauge},
	}, flat)
}

func TestInterpret_MissingStatsKeyAbortsSource(t *testing.T) {
	in, _ := newTestInterpreter(t, "byte")
	stats := decodeTree(t, `{"osd":{"op":1}}`)
	schema := decodeTree(t, `{"osd":{"op":{"type":2},"op_w":{"type":2}}}`)

	got, err := in.Interpret("p", stats, schema)
	require.ErrorIs(t, err, ErrMissingKey)
	require.Nil(t, got)
}

func TestInterpret_MissingAverageComponent(t *testing.T) {
	in, _ := newTestInterpreter(t, "byte")
	stats := decodeTree(t, `{"osd":{"lat":{"sum":1.000000000}}}`)
	schema := decodeTree(t, `{"osd":{"lat":{"type":5}}}`)

	_, err := in.Interpret("p", stats, schema)
	require.ErrorIs(t, err, ErrMissingKey)
	require.Contains(t, err.Error(), "osd.lat.avgcount")
}

func TestInterpret_MalformedSchema(t *testing.T) {
	in, _ := newTestInterpreter(t, "byte")
	stats := decodeTree(t, `{"osd":{"op":1}}`)

	cases := map[string]string{
		"no type marker":   `{"osd":{"op":{"kind":2}}}`,
		"bare leaf":        `{"osd":{"op":2}}`,
		"root type":        `{"type":2}`,
		"non-integer type": `{"osd":{"op":{"type":"u64"}}}`,
		"array node":       `{"osd":{"op":{"type":[2]}}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := in.Interpret("p", stats, decodeTree(t, raw))
			require.ErrorIs(t, err, ErrMalformedSchema)
		})
	}
}

func TestInterpret_EmptySchema(t *testing.T) {
	in, _ := newTestInterpreter(t, "byte")

	got, err := in.Interpret("p", decodeTree(t, `{"osd":{"op":1}}`), decodeTree(t, `{}`))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestNewInterpreter_RejectsUnknownUnit(t *testing.T) {
	_, err := NewInterpreter([]string{"byte", "parsec"}, nil)
	require.Error(t, err)
}

func TestFlat_PublishesNumericLeaves(t *testing.T) {
	in, _ := newTestInterpreter(t, "byte")
	stats := decodeTree(t, `{"osd":{"op":3,"lat":{"avgcount":2,"sum":0.5},"state":"active"}}`)

	got, err := in.Flat("ceph.osd_1", stats)
	require.NoError(t, err)
	require.Equal(t, []Metric{
		{Name: "ceph.osd_1.osd.lat.avgcount", Value: 2, Precision: ValuePrecision, Kind: KindGauge},
		{Name: "ceph.osd_1.osd.lat.sum", Value: 0.5, Precision: ValuePrecision, Kind: KindGauge},
		{Name: "ceph.osd_1.osd.op", Value: 3, Precision: ValuePrecision, Kind: KindGauge},
	}, got)
}
