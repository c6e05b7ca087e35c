package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// PushMethod is the full gRPC method name used to push sample batches.
const PushMethod = "/cephagent.v1.MetricIngest/Push"

// ErrEncode reports a batch that can never be encoded. Resending it cannot succeed.
var ErrEncode = errors.New("encode push request")

// CollectorSender pushes sample batches to one collector address.
// Params: batch of samples and destination address.
// Returns: send status.
type CollectorSender interface {
	SendBatch(ctx context.Context, address string, samples []Sample, timeout time.Duration) error
}

// GRPCSender sends sample batches as protobuf Struct messages over gRPC.
// Params: none.
// Returns: sender implementation.
type GRPCSender struct {
	mu      sync.RWMutex
	conns   map[string]*grpc.ClientConn
	localIP map[string]string
}

// Close closes all cached gRPC connections and clears sender caches.
// Params: none.
// Returns: first close error when present.
func (s *GRPCSender) Close() error {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.localIP = nil
	s.mu.Unlock()

	var firstErr error
	for _, conn := range conns {
		if conn == nil {
			continue
		}
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SendBatch encodes samples and pushes them to one collector address.
// Params: ctx lifecycle context; address destination host:port; samples batch; timeout dial/call timeout.
// Returns: send error on encode/connect/rpc failure.
func (s *GRPCSender) SendBatch(
	ctx context.Context,
	address string,
	samples []Sample,
	timeout time.Duration,
) error {
	addr := strings.TrimSpace(address)
	if addr == "" {
		return fmt.Errorf("collector address is empty")
	}

	hostIP, err := s.localIPForAddress(ctx, addr, timeout)
	if err != nil {
		hostIP = ""
	}

	request, err := EncodeBatch(samples, hostIP)
	if err != nil {
		return err
	}

	conn, err := s.connForAddress(ctx, addr, timeout)
	if err != nil {
		return err
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reply structpb.Struct
	if err := conn.Invoke(callCtx, PushMethod, request, &reply); err != nil {
		s.dropAddress(addr)
		return fmt.Errorf("push samples %s: %w", addr, err)
	}
	return nil
}

// EncodeBatch converts samples into the protobuf Struct pushed to collectors.
// Params: samples batch; hostIP optional local source ip stamped on every sample.
// Returns: request message or conversion error.
func EncodeBatch(samples []Sample, hostIP string) (*structpb.Struct, error) {
	items := make([]any, 0, len(samples))
	for idx, sample := range samples {
		if math.IsNaN(sample.Value) || math.IsInf(sample.Value, 0) {
			return nil, fmt.Errorf("%w: sample[%d] %q: non-finite value", ErrEncode, idx, sample.Metric)
		}
		fields := map[string]any{
			"dt":        float64(sample.DT),
			"metric":    sample.Metric,
			"kind":      sample.Kind,
			"value":     sample.Value,
			"precision": float64(sample.Precision),
			"dc":        sample.DC,
			"host":      sample.Host,
			"project":   sample.Project,
			"role":      sample.Role,
		}
		if hostIP != "" {
			fields["host_ip"] = hostIP
		}
		items = append(items, fields)
	}

	request, err := structpb.NewStruct(map[string]any{"samples": items})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	return request, nil
}

// DecodeBatch extracts samples from a push request.
// Params: request message received by a collector.
// Returns: decoded samples or error on unexpected shape.
func DecodeBatch(request *structpb.Struct) ([]Sample, error) {
	list := request.GetFields()["samples"].GetListValue()
	if list == nil {
		return nil, fmt.Errorf("push request has no samples list")
	}

	out := make([]Sample, 0, len(list.GetValues()))
	for idx, item := range list.GetValues() {
		fields := item.GetStructValue().GetFields()
		if fields == nil {
			return nil, fmt.Errorf("sample[%d] is not an object", idx)
		}
		out = append(out, Sample{
			DT:        uint64(fields["dt"].GetNumberValue()),
			Metric:    fields["metric"].GetStringValue(),
			Kind:      fields["kind"].GetStringValue(),
			Value:     fields["value"].GetNumberValue(),
			Precision: int(fields["precision"].GetNumberValue()),
			DC:        fields["dc"].GetStringValue(),
			Host:      fields["host"].GetStringValue(),
			Project:   fields["project"].GetStringValue(),
			Role:      fields["role"].GetStringValue(),
		})
	}
	return out, nil
}

// connForAddress returns cached gRPC connection or dials and stores a new one.
// Params: ctx lifecycle context; address destination host:port; timeout dial timeout.
// Returns: reusable connection or error.
func (s *GRPCSender) connForAddress(
	ctx context.Context,
	address string,
	timeout time.Duration,
) (*grpc.ClientConn, error) {
	s.mu.RLock()
	if conn, ok := s.conns[address]; ok {
		s.mu.RUnlock()
		return conn, nil
	}
	s.mu.RUnlock()

	dialCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, err := grpc.DialContext(
		dialCtx,
		address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		s.conns = make(map[string]*grpc.ClientConn)
	}
	if cached, exists := s.conns[address]; exists {
		_ = conn.Close()
		return cached, nil
	}
	s.conns[address] = conn
	return conn, nil
}

// dropAddress removes cached connection for one address.
// Params: address destination host:port.
// Returns: none.
func (s *GRPCSender) dropAddress(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, exists := s.conns[address]
	if !exists {
		return
	}
	delete(s.conns, address)
	delete(s.localIP, address)
	_ = conn.Close()
}

// localIPForAddress resolves and caches local source IP for destination address.
// Params: ctx lifecycle context; address destination host:port; timeout dial timeout.
// Returns: local source IP or error.
func (s *GRPCSender) localIPForAddress(ctx context.Context, address string, timeout time.Duration) (string, error) {
	s.mu.RLock()
	if ip, ok := s.localIP[address]; ok {
		s.mu.RUnlock()
		return ip, nil
	}
	s.mu.RUnlock()

	dialTimeout := timeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, err := (&net.Dialer{Timeout: dialTimeout}).DialContext(dialCtx, "tcp", address)
	if err != nil {
		return "", fmt.Errorf("resolve local ip for %s: %w", address, err)
	}
	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.TCPAddr)
	if !ok || localAddr.IP == nil {
		return "", fmt.Errorf("resolve local ip for %s: unexpected local addr", address)
	}
	ip := localAddr.IP.String()

	s.mu.Lock()
	if s.localIP == nil {
		s.localIP = make(map[string]string)
	}
	if _, exists := s.localIP[address]; !exists {
		s.localIP[address] = ip
	}
	s.mu.Unlock()

	return ip, nil
}
