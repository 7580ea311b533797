// Package node wires the block stream components together.
package node

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/blocknode-org/blocknode/internal/ack"
	"github.com/blocknode-org/blocknode/internal/block"
	"github.com/blocknode-org/blocknode/internal/keyvaluedb"
	"github.com/blocknode-org/blocknode/internal/keyvaluedb/boltdb"
	"github.com/blocknode-org/blocknode/internal/keyvaluedb/memorydb"
	"github.com/blocknode-org/blocknode/internal/logger"
	"github.com/blocknode-org/blocknode/internal/mediator"
	"github.com/blocknode-org/blocknode/internal/metrics"
	"github.com/blocknode-org/blocknode/internal/mt"
	"github.com/blocknode-org/blocknode/internal/notifier"
	"github.com/blocknode-org/blocknode/internal/persistence"
	"github.com/blocknode-org/blocknode/internal/rpc"
	"github.com/blocknode-org/blocknode/internal/service"
	"github.com/blocknode-org/blocknode/internal/stream"
	"github.com/blocknode-org/blocknode/internal/verification"
	"golang.org/x/sync/errgroup"
)

var log = logger.CreateForPackage()

type (
	Node struct {
		conf         *Config
		status       *service.Status
		metrics      *metrics.Metrics
		store        persistence.BlockStore
		ack          *ack.Handler
		mediator     *mediator.LiveStreamMediator
		notifier     *notifier.Notifier
		persistence  *persistence.Handler
		verification *verification.Handler
		trees        *treeCache
		server       *http.Server
	}

	Options struct {
		db       keyvaluedb.KeyValueDB
		verifier verification.SignatureVerifier
		metrics  *metrics.Metrics
	}

	Option func(*Options)
)

// WithKeyValueDB replaces the database selected by the storage type (bolt or memory).
func WithKeyValueDB(db keyvaluedb.KeyValueDB) Option {
	return func(o *Options) {
		o.db = db
	}
}

func WithSignatureVerifier(v verification.SignatureVerifier) Option {
	return func(o *Options) {
		o.verifier = v
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Options) {
		o.metrics = m
	}
}

func New(conf *Config, opts ...Option) (*Node, error) {
	if conf == nil {
		return nil, errors.New("node configuration is nil")
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid node configuration: %w", err)
	}
	o := &Options{verifier: verification.DummySignatureVerifier{}}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New(true)
	}

	n := &Node{
		conf:    conf,
		status:  service.NewStatus(),
		metrics: o.metrics,
		trees:   newTreeCache(recentTreesCount),
	}
	var err error
	if n.store, err = newStore(conf.Persistence, o.db); err != nil {
		return nil, err
	}
	if err = n.initComponents(o.verifier); err != nil {
		return nil, errors.Join(err, n.store.Close())
	}
	if conf.RESTAddress != "" {
		n.server = rpc.NewRESTServer(conf.RESTAddress, conf.MaxBodySize, n.metrics, rpc.NodeEndpoints(n))
	}
	return n, nil
}

func newStore(conf *persistence.Config, db keyvaluedb.KeyValueDB) (persistence.BlockStore, error) {
	if conf.Type == persistence.StorageNoOp {
		return persistence.NoOp{}, nil
	}
	if db == nil {
		switch conf.Type {
		case persistence.StorageMemory:
			db = memorydb.New()
		default:
			bolt, err := boltdb.New(conf.DBFile, boltdb.WithEncoding(block.Cbor.Marshal, block.Cbor.Unmarshal))
			if err != nil {
				return nil, fmt.Errorf("opening block store: %w", err)
			}
			db = bolt
		}
	}
	store, err := persistence.NewStore(db)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (n *Node) initComponents(verifier verification.SignatureVerifier) error {
	var err error
	m := n.metrics
	n.mediator, err = mediator.New(n.status,
		mediator.WithSubscriberGauge(m.LiveSubscribers),
		mediator.WithPublishedCounter(m.LiveItemsPublished))
	if err != nil {
		return err
	}
	n.notifier, err = notifier.New(n.mediator, n.conf.NotifierBufferSize, m.ProducerSubscribers)
	if err != nil {
		return err
	}

	ackOpts := []ack.Option{
		ack.WithSkipAcknowledgement(n.conf.skipAcknowledgement()),
		ack.WithBlockRemover(n.store),
		ack.WithServiceStatus(n.status),
		ack.WithAckedCounter(m.BlocksAcked),
	}
	last, found, err := n.store.LastBlockNumber()
	if err != nil {
		return fmt.Errorf("reading last stored block: %w", err)
	}
	if found {
		log.Info("resuming after stored block %d", last)
		ackOpts = append(ackOpts, ack.WithLastAcknowledged(last))
	}
	if n.ack, err = ack.New(n.notifier, ackOpts...); err != nil {
		return err
	}

	if n.conf.Persistence.Type != persistence.StorageNoOp {
		n.persistence, err = persistence.NewHandler(n.mediator, n.store, n.ack, n.notifier, n.conf.Persistence.BufferSize,
			persistence.WithCounters(m.BlocksPersisted, m.PersistenceFailures))
		if err != nil {
			return err
		}
	}

	if n.conf.Verification.Type != verification.SessionNoOp {
		factory, err := verification.NewSessionFactory(n.conf.Verification, verifier, verification.Counters{
			Received:     m.VerificationBlocksReceived,
			Verified:     m.VerificationBlocksVerified,
			Failed:       m.VerificationBlocksFailed,
			Errors:       m.VerificationBlocksError,
			HashMismatch: m.VerificationHashMismatch,
		})
		if err != nil {
			return err
		}
		svc, err := verification.NewService(factory)
		if err != nil {
			return err
		}
		n.verification, err = verification.NewHandler(n.mediator, svc, n.ack, n.notifier, n.status, n.conf.Verification.BufferSize)
		if err != nil {
			return err
		}
		n.verification.SetResultListener(n.onVerificationResult)
	}
	return nil
}

/*
Run starts the persistence and verification loops and the REST server. Blocks
until ctx is cancelled or one of them fails.
*/
func (n *Node) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if n.persistence != nil {
		g.Go(func() error { return n.persistence.Run(ctx) })
	}
	if n.verification != nil {
		g.Go(func() error { return n.verification.Run(ctx) })
	}
	if n.server != nil {
		g.Go(func() error {
			errch := make(chan error, 1)
			go func() {
				log.Info("REST server starting on %s", n.server.Addr)
				if err := n.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errch <- err
					return
				}
				errch <- nil
			}()

			select {
			case <-ctx.Done():
				if err := n.server.Close(); err != nil {
					log.Warning("REST server close error: %v", err)
				}
				if err := <-errch; err != nil {
					log.Warning("REST server exited with error: %v", err)
				} else {
					log.Info("REST server exited")
				}
				return nil
			case err := <-errch:
				return err
			}
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		n.mediator.Close()
		n.notifier.Close()
		return nil
	})

	err := g.Wait()
	return errors.Join(err, n.store.Close())
}

// Handler returns the REST API handler, nil when the REST address is not configured.
func (n *Node) Handler() http.Handler {
	if n.server == nil {
		return nil
	}
	return n.server.Handler
}

func (n *Node) PublishItems(ctx context.Context, items []*block.BlockItem) error {
	return n.mediator.Publish(ctx, items)
}

func (n *Node) GetBlock(blockNumber uint64) (*block.Block, error) {
	return n.store.Read(blockNumber)
}

// GetInclusionProof uses the trees of recently verified blocks, older blocks
// are rehashed from the store.
func (n *Node) GetInclusionProof(blockNumber uint64, leafHash []byte) ([]*mt.PathItem, error) {
	info := n.trees.get(blockNumber)
	if info == nil {
		b, err := n.store.Read(blockNumber)
		if err != nil {
			return nil, err
		}
		if info, err = block.ComputeTreeInfo(b); err != nil {
			return nil, fmt.Errorf("hashing block %d: %w", blockNumber, err)
		}
	}
	return mt.CalculateBlockMerkleProof(info, leafHash)
}

func (n *Node) SubscribeLive() (*mediator.Subscription, func(), error) {
	sub, err := n.mediator.Subscribe(n.conf.MediatorBufferSize, stream.Drop)
	if err != nil {
		return nil, nil, err
	}
	return sub, func() { n.mediator.Unsubscribe(sub.ID) }, nil
}

func (n *Node) SubscribeResponses() (*notifier.Subscription, func(), error) {
	sub, err := n.notifier.Subscribe()
	if err != nil {
		return nil, nil, err
	}
	return sub, func() { n.notifier.Unsubscribe(sub.ID) }, nil
}

func (n *Node) Status() *rpc.StatusResponse {
	res := &rpc.StatusResponse{
		Running:               n.status.IsRunning(),
		StopReason:            n.status.StopReason(),
		LastAcknowledgedBlock: n.ack.LastAcknowledgedBlockNumber(),
		LiveSubscribers:       n.mediator.SubscriberCount(),
		ProducerSubscribers:   n.notifier.SubscriberCount(),
	}
	if latest := n.status.LatestAckedBlock(); latest != nil {
		res.LatestAckedHash = hex.EncodeToString(latest.Hash)
	}
	return res
}

func (n *Node) onVerificationResult(r *verification.Result) {
	if r.Status == verification.StatusVerified && r.TreeInfo != nil {
		n.trees.add(r.BlockNumber, r.TreeInfo)
	}
}
