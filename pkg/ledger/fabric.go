package ledger

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"github.com/hyperledger/fabric-gateway/pkg/identity"
	"github.com/hyperledger/fabric-protos-go-apiv2/gateway"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/uhyunpark/energy-gateway/pkg/wallet"
)

type FabricConfig struct {
	PeerEndpoint  string
	GatewayPeer   string // overrides the TLS server name
	TLSCertPath   string // CA certificate; empty selects plaintext
	Channel       string
	Chaincode     string
	CommitTimeout time.Duration
}

// FabricConnector dials a Fabric gateway peer for each session.
type FabricConnector struct {
	cfg   FabricConfig
	creds credentials.TransportCredentials
}

func NewFabricConnector(cfg FabricConfig) (*FabricConnector, error) {
	creds := insecure.NewCredentials()
	if cfg.TLSCertPath != "" {
		pem, err := os.ReadFile(cfg.TLSCertPath)
		if err != nil {
			return nil, fmt.Errorf("read tls cert: %w", err)
		}
		cert, err := identity.CertificateFromPEM(pem)
		if err != nil {
			return nil, fmt.Errorf("parse tls cert: %w", err)
		}
		pool := x509.NewCertPool()
		pool.AddCert(cert)
		creds = credentials.NewClientTLSFromCert(pool, cfg.GatewayPeer)
	}
	return &FabricConnector{cfg: cfg, creds: creds}, nil
}

// Connect builds the signing identity, opens a gRPC connection, waits for
// it to become ready and binds the configured channel and chaincode.
func (f *FabricConnector) Connect(ctx context.Context, id *wallet.Identity) (Handle, error) {
	cert, err := identity.CertificateFromPEM([]byte(id.Credentials.Certificate))
	if err != nil {
		return nil, newError(KindIdentityNotFound, "", "identity certificate is invalid", err)
	}
	x509ID, err := identity.NewX509Identity(id.MSPID, cert)
	if err != nil {
		return nil, newError(KindIdentityNotFound, "", "identity is invalid", err)
	}
	key, err := identity.PrivateKeyFromPEM([]byte(id.Credentials.PrivateKey))
	if err != nil {
		return nil, newError(KindIdentityNotFound, "", "identity private key is invalid", err)
	}
	sign, err := identity.NewPrivateKeySign(key)
	if err != nil {
		return nil, newError(KindIdentityNotFound, "", "identity private key is unusable", err)
	}

	conn, err := grpc.NewClient(f.cfg.PeerEndpoint, grpc.WithTransportCredentials(f.creds))
	if err != nil {
		return nil, newError(KindConnection, "", "failed to create gRPC connection", err)
	}
	if err := waitReady(ctx, conn); err != nil {
		conn.Close()
		return nil, newError(KindConnection, "", "ledger peer "+f.cfg.PeerEndpoint+" unreachable", err)
	}

	gw, err := client.Connect(x509ID, client.WithSign(sign), client.WithClientConnection(conn))
	if err != nil {
		conn.Close()
		return nil, newError(KindConnection, "", "failed to open gateway", err)
	}

	return &fabricHandle{
		gw:   gw,
		conn: conn,
		contract: &fabricContract{
			contract:      gw.GetNetwork(f.cfg.Channel).GetContract(f.cfg.Chaincode),
			commitTimeout: f.cfg.CommitTimeout,
		},
	}, nil
}

// waitReady forces the lazy gRPC client to dial and blocks until the
// connection is ready, fails, or ctx expires.
func waitReady(ctx context.Context, conn *grpc.ClientConn) error {
	conn.Connect()
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.TransientFailure, connectivity.Shutdown:
			return fmt.Errorf("connection state %s", state)
		}
		if !conn.WaitForStateChange(ctx, state) {
			return ctx.Err()
		}
	}
}

type fabricHandle struct {
	gw       *client.Gateway
	conn     *grpc.ClientConn
	contract *fabricContract
}

func (h *fabricHandle) Contract() Contract { return h.contract }

func (h *fabricHandle) Close() error {
	return errors.Join(h.gw.Close(), h.conn.Close())
}

type fabricContract struct {
	contract      *client.Contract
	commitTimeout time.Duration
}

func (c *fabricContract) Evaluate(ctx context.Context, tx string, args ...string) ([]byte, error) {
	proposal, err := c.contract.NewProposal(tx, client.WithArguments(args...))
	if err != nil {
		return nil, newError(KindRejected, tx, "failed to build proposal", err)
	}
	out, err := proposal.EvaluateWithContext(ctx)
	if err != nil {
		return nil, classify(tx, false, err)
	}
	return out, nil
}

// Submit endorses, orders and waits for the commit status of tx. Once the
// endorsed transaction has been handed to the orderer, any failure leaves
// the outcome unknown and is reported as KindTimeout.
func (c *fabricContract) Submit(ctx context.Context, tx string, args ...string) ([]byte, error) {
	proposal, err := c.contract.NewProposal(tx, client.WithArguments(args...))
	if err != nil {
		return nil, newError(KindRejected, tx, "failed to build proposal", err)
	}
	txn, err := proposal.EndorseWithContext(ctx)
	if err != nil {
		return nil, classify(tx, true, err)
	}
	commit, err := txn.SubmitWithContext(ctx)
	if err != nil {
		return nil, unknownOutcome(tx, "ordering failed", err)
	}

	statusCtx := ctx
	if c.commitTimeout > 0 {
		var cancel context.CancelFunc
		statusCtx, cancel = context.WithTimeout(ctx, c.commitTimeout)
		defer cancel()
	}
	st, err := commit.StatusWithContext(statusCtx)
	if err != nil {
		return nil, unknownOutcome(tx, "commit status unavailable", err)
	}
	if !st.Successful {
		return nil, newError(KindRejected, tx,
			fmt.Sprintf("transaction %s failed to commit with status %s", st.TransactionID, st.Code), nil)
	}
	return txn.Result(), nil
}

// unknownOutcome reports a failure after the transaction left for the
// orderer. Whatever the cause, it may still be committed.
func unknownOutcome(tx, stage string, err error) *Error {
	return newError(KindTimeout, tx, stage+"; transaction outcome unknown", err)
}

// classify maps a Fabric gateway error onto the session error kinds. For
// rejections the chaincode's own message is taken from the gRPC status
// details when the peer supplied one.
func classify(tx string, submit bool, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return timeoutError(tx, submit, err)
	}

	st, ok := status.FromError(err)
	if !ok {
		return newError(KindRejected, tx, err.Error(), err)
	}
	switch st.Code() {
	case codes.DeadlineExceeded, codes.Canceled:
		return timeoutError(tx, submit, err)
	case codes.Unavailable:
		return newError(KindConnection, tx, "ledger peer unavailable", err)
	}

	msg := st.Message()
	for _, d := range st.Details() {
		if detail, ok := d.(*gateway.ErrorDetail); ok && detail.GetMessage() != "" {
			msg = detail.GetMessage()
			break
		}
	}
	return newError(KindRejected, tx, msg, err)
}
