package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/blocknode-org/blocknode/internal/logger"
	"github.com/blocknode-org/blocknode/internal/node"
	"github.com/blocknode-org/blocknode/internal/persistence"
	"github.com/blocknode-org/blocknode/internal/verification"
	"github.com/spf13/cobra"
)

const defaultBlockStoreFile = "blocks.db"

var log = logger.CreateForPackage()

type (
	nodeRunFlags struct {
		base *baseConfiguration

		RESTAddress        string
		MaxBodySize        int64
		MediatorBufferSize int
		NotifierBufferSize int

		StorageType       string
		DBFile            string
		PersistenceBuffer int

		VerificationType     string
		HashCombineBatchSize int
		HashingWorkers       int
		VerificationBuffer   int
	}

	nodeRunnable func(ctx context.Context, conf *node.Config) error
)

func newNodeCmd(base *baseConfiguration, runFn nodeRunnable) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "node",
		Short: "Block node commands",
	}
	cmd.AddCommand(nodeRunCmd(base, runFn))
	return cmd
}

func nodeRunCmd(base *baseConfiguration, runFn nodeRunnable) *cobra.Command {
	flags := &nodeRunFlags{base: base}
	var cmd = &cobra.Command{
		Use:   "run",
		Short: "Starts a block node",
		Long:  `Starts a block node accepting block item streams over the REST API`,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := flags.nodeConfig()
			if err != nil {
				return err
			}
			if runFn != nil {
				return runFn(cmd.Context(), conf)
			}
			return runNode(cmd.Context(), conf)
		},
	}
	defaults := node.DefaultConfig()
	cmd.Flags().StringVar(&flags.RESTAddress, "rest-address", defaults.RESTAddress, "address of the REST API, disabled when empty")
	cmd.Flags().Int64Var(&flags.MaxBodySize, "rest-max-body-size", defaults.MaxBodySize, "maximum size of a REST request body in bytes")
	cmd.Flags().IntVar(&flags.MediatorBufferSize, "mediator-buffer-size", defaults.MediatorBufferSize, "buffer size of live item subscribers")
	cmd.Flags().IntVar(&flags.NotifierBufferSize, "notifier-buffer-size", defaults.NotifierBufferSize, "buffer size of producer response subscribers")

	cmd.Flags().StringVar(&flags.StorageType, "storage-type", string(defaults.Persistence.Type), "block storage, one of: bolt, memory, noop")
	cmd.Flags().StringVar(&flags.DBFile, "db-file", "", fmt.Sprintf("path to the block store file (default %s)", filepath.Join("$BN_HOME", defaultBlockStoreFile)))
	cmd.Flags().IntVar(&flags.PersistenceBuffer, "persistence-buffer-size", defaults.Persistence.BufferSize, "buffer size of the persistence subscription")

	cmd.Flags().StringVar(&flags.VerificationType, "verification-type", string(defaults.Verification.Type), "verification session, one of: async, sync, noop")
	cmd.Flags().IntVar(&flags.HashCombineBatchSize, "hash-combine-batch-size", defaults.Verification.HashCombineBatchSize, "number of pending hashes combined in one hashing task, must be even")
	cmd.Flags().IntVar(&flags.HashingWorkers, "hashing-workers", defaults.Verification.Workers, "size of the hashing pool, number of CPUs when not positive")
	cmd.Flags().IntVar(&flags.VerificationBuffer, "verification-buffer-size", defaults.Verification.BufferSize, "buffer size of the verification subscription")
	return cmd
}

func (f *nodeRunFlags) nodeConfig() (*node.Config, error) {
	conf := node.DefaultConfig()
	conf.RESTAddress = f.RESTAddress
	conf.MaxBodySize = f.MaxBodySize
	conf.MediatorBufferSize = f.MediatorBufferSize
	conf.NotifierBufferSize = f.NotifierBufferSize

	conf.Persistence.Type = persistence.StorageType(f.StorageType)
	conf.Persistence.DBFile = f.DBFile
	if conf.Persistence.DBFile == "" {
		conf.Persistence.DBFile = defaultBlockStoreFile
	}
	conf.Persistence.DBFile = f.base.defaultPath(conf.Persistence.DBFile)
	conf.Persistence.BufferSize = f.PersistenceBuffer

	conf.Verification.Type = verification.SessionType(f.VerificationType)
	conf.Verification.HashCombineBatchSize = f.HashCombineBatchSize
	conf.Verification.Workers = f.HashingWorkers
	conf.Verification.BufferSize = f.VerificationBuffer

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return conf, nil
}

func runNode(ctx context.Context, conf *node.Config) error {
	if conf.Persistence.Type == persistence.StorageBolt {
		if err := ensureDir(filepath.Dir(conf.Persistence.DBFile)); err != nil {
			return err
		}
	}
	n, err := node.New(conf)
	if err != nil {
		return fmt.Errorf("creating block node: %w", err)
	}
	log.Info("starting block node, storage %s, verification %s", conf.Persistence.Type, conf.Verification.Type)
	return n.Run(ctx)
}
