// Package grpcclient provides the speech-to-text client for a self-hosted inference server.
package grpcclient

import (
	"context"
	"encoding/binary"
	"math"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/rajpdus/meeting-sidekick/internal/config"
	apperrors "github.com/rajpdus/meeting-sidekick/internal/errors"
	"github.com/rajpdus/meeting-sidekick/internal/resilience"
	"github.com/rajpdus/meeting-sidekick/internal/trace"
)

// Config holds client settings.
type Config struct {
	Addr             string
	SampleRate       int
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	CallTimeout      time.Duration
	Breaker          resilience.BreakerConfig
}

// DefaultConfig returns keepalive and breaker defaults for addr.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:             addr,
		SampleRate:       16000,
		KeepaliveTime:    DefaultKeepaliveTime,
		KeepaliveTimeout: DefaultKeepaliveTimeout,
		CallTimeout:      DefaultCallTimeout,
		Breaker:          resilience.FastBreakerConfig(),
	}
}

// ConfigFrom maps application config onto client settings.
func ConfigFrom(c *config.Config) Config {
	cfg := DefaultConfig(c.InferenceAddr)
	cfg.SampleRate = c.SampleRate
	return cfg
}

// Client transcribes sample windows over gRPC.
type Client struct {
	conn        *grpc.ClientConn
	health      healthpb.HealthClient
	breaker     *resilience.Breaker
	sampleRate  int
	callTimeout time.Duration
}

// New creates a client. The connection is established lazily on the first call.
func New(cfg Config, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveTime,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithChainUnaryInterceptor(trace.UnaryClientInterceptor()),
	}, opts...)

	conn, err := grpc.NewClient(cfg.Addr, dialOpts...)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "inference address %q", cfg.Addr)
	}
	return &Client{
		conn:        conn,
		health:      healthpb.NewHealthClient(conn),
		breaker:     resilience.NewBreaker("inference-stt", cfg.Breaker),
		sampleRate:  cfg.SampleRate,
		callTimeout: cfg.CallTimeout,
	}, nil
}

// Close closes the gRPC connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Transcribe sends samples as little-endian float32 and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	ctx = metadata.AppendToOutgoingContext(ctx,
		SampleRateKey, strconv.Itoa(c.sampleRate),
		AudioFormatKey, AudioFormatF32,
	)
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	req := wrapperspb.Bytes(float32ToBytes(samples))
	return resilience.Call(c.breaker, func() (string, error) {
		var resp wrapperspb.StringValue
		if err := c.conn.Invoke(ctx, TranscribeMethod, req, &resp); err != nil {
			return "", apperrors.FromGRPCError(err)
		}
		return resp.GetValue(), nil
	})
}

// Check asks the server's health service whether transcription is serving.
func (c *Client) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return apperrors.FromGRPCError(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return apperrors.Newf(apperrors.CodeUnavailable, "inference server reports %s", resp.GetStatus())
	}
	return nil
}

// BreakerState reports the transcription breaker's state.
func (c *Client) BreakerState() resilience.State { return c.breaker.State() }

func float32ToBytes(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}
