package swapclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/klingon-exchange/xud/pkg/logging"
)

// LNDConfig configures the connection to an HTLC-capable Lightning
// node daemon. The daemon's own RPC wire protocol is out of scope
// here (spec Non-goal); rpc is the seam a deployment wires to the
// daemon's generated client stubs.
type LNDConfig struct {
	Host         string
	MacaroonHex  string
	TLSCertPath  string
	NoTLS        bool
}

// invoiceClient is the minimal RPC surface this package depends on.
// A real deployment implements it over the daemon's generated gRPC
// client.
type invoiceClient interface {
	SendPayment(ctx context.Context, destination string, rHash [32]byte, amt int64, cltvDelta int32) ([]byte, error)
	AddInvoice(ctx context.Context, rHash [32]byte, amt int64, cltvDelta int32) (string, error)
	LookupInvoice(ctx context.Context, rHash [32]byte) (PaymentResult, error)
	SettleInvoice(ctx context.Context, preimage []byte) error
	CancelInvoice(ctx context.Context, rHash [32]byte) error
	ChannelBalance(ctx context.Context) (ChannelBalance, error)
	OpenChannel(ctx context.Context, peerURI string, localAmt int64) error
	CloseChannel(ctx context.Context, channelID string, force bool) error
	Close() error
}

// LNDClient is the HTLC-capable backend: sendPayment locks an
// outgoing payment to rHash via a routed HTLC, addInvoice reserves an
// incoming one the same way.
type LNDClient struct {
	currency string
	conn     *grpc.ClientConn
	rpc      invoiceClient
	events   chan Event
	log      *logging.Logger

	mu     sync.RWMutex
	status Status
}

// NewLNDClient dials the daemon over gRPC. macaroon-based auth is
// attached as call credentials when MacaroonHex is set, following the
// standard lnd client pattern of a hex-encoded macaroon sent as
// metadata on every call.
func NewLNDClient(currency string, cfg LNDConfig, rpc invoiceClient) (*LNDClient, error) {
	var creds credentials.TransportCredentials
	if cfg.NoTLS {
		creds = insecure.NewCredentials()
	} else {
		tlsCreds, err := credentials.NewClientTLSFromFile(cfg.TLSCertPath, "")
		if err != nil {
			return nil, fmt.Errorf("failed to load tls cert: %w", err)
		}
		creds = tlsCreds
	}

	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if cfg.MacaroonHex != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(macaroonCreds{hex: cfg.MacaroonHex, secure: !cfg.NoTLS}))
	}

	conn, err := grpc.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial lnd backend for %s: %w", currency, err)
	}

	return &LNDClient{
		currency: currency,
		conn:     conn,
		rpc:      rpc,
		events:   make(chan Event, 32),
		log:      logging.GetDefault().Component("swapclient-lnd").With("currency", currency),
		status:   StatusInitialized,
	}, nil
}

type macaroonCreds struct {
	hex    string
	secure bool
}

func (m macaroonCreds) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"macaroon": m.hex}, nil
}

func (m macaroonCreds) RequireTransportSecurity() bool { return m.secure }

func (c *LNDClient) Currency() string { return c.currency }

func (c *LNDClient) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *LNDClient) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *LNDClient) SendPayment(ctx context.Context, req SendPaymentRequest) ([]byte, error) {
	rHash, err := decodeRHash(req.RHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFinalPayment, err)
	}

	preimage, err := c.rpc.SendPayment(ctx, req.Destination, rHash, req.Units, req.CLTVDelta)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnknownPayment, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrFinalPayment, err)
	}

	sum := sha256.Sum256(preimage)
	if hex.EncodeToString(sum[:]) != req.RHash {
		return nil, fmt.Errorf("%w: preimage does not match rHash", ErrUnknownPayment)
	}
	return preimage, nil
}

func (c *LNDClient) AddInvoice(ctx context.Context, rHashHex string, units int64, cltvDelta int32) (string, error) {
	rHash, err := decodeRHash(rHashHex)
	if err != nil {
		return "", err
	}
	return c.rpc.AddInvoice(ctx, rHash, units, cltvDelta)
}

func (c *LNDClient) LookupPayment(ctx context.Context, rHashHex string) (PaymentResult, error) {
	rHash, err := decodeRHash(rHashHex)
	if err != nil {
		return PaymentResult{}, err
	}
	return c.rpc.LookupInvoice(ctx, rHash)
}

func (c *LNDClient) SettleInvoice(ctx context.Context, rHashHex string, preimage []byte) error {
	return c.rpc.SettleInvoice(ctx, preimage)
}

func (c *LNDClient) RemoveInvoice(ctx context.Context, rHashHex string) error {
	rHash, err := decodeRHash(rHashHex)
	if err != nil {
		return err
	}
	return c.rpc.CancelInvoice(ctx, rHash)
}

func (c *LNDClient) ChannelBalance(ctx context.Context, currency string) (ChannelBalance, error) {
	return c.rpc.ChannelBalance(ctx)
}

func (c *LNDClient) OpenChannel(ctx context.Context, peerURI string, localAmt int64) error {
	return c.rpc.OpenChannel(ctx, peerURI, localAmt)
}

func (c *LNDClient) CloseChannel(ctx context.Context, channelID string, force bool) error {
	return c.rpc.CloseChannel(ctx, channelID, force)
}

func (c *LNDClient) DepositToChannel(ctx context.Context, channelID string, amt int64) error {
	return fmt.Errorf("depositToChannel not supported by lnd backend, open a new channel instead")
}

func (c *LNDClient) Events() <-chan Event { return c.events }

func (c *LNDClient) Close() error {
	close(c.events)
	if c.rpc != nil {
		c.rpc.Close()
	}
	return c.conn.Close()
}

func decodeRHash(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return out, fmt.Errorf("invalid rHash %q", s)
	}
	copy(out[:], b)
	return out, nil
}
