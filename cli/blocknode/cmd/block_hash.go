package cmd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/blocknode-org/blocknode/internal/block"
	"github.com/spf13/cobra"
)

func newBlockHashCmd() *cobra.Command {
	var fileName string
	var cmd = &cobra.Command{
		Use:   "block-hash",
		Short: "Calculates the hash of a block",
		Long:  `Reads the CBOR encoded block items of one block from a file and prints the block hash`,
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := blockHashFromFile(fileName)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(hash))
			return err
		},
	}
	cmd.Flags().StringVarP(&fileName, "file", "f", "", "file of CBOR encoded block items, one after another")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func blockHashFromFile(fileName string) ([]byte, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("opening block file: %w", err)
	}
	defer f.Close()

	b := &block.Block{}
	dec := block.Cbor.Decoder(f)
	for {
		item := &block.BlockItem{}
		if err := dec.Decode(item); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decoding block item %d: %w", len(b.Items), err)
		}
		b.Items = append(b.Items, item)
	}
	if err := b.IsValid(); err != nil {
		return nil, fmt.Errorf("invalid block: %w", err)
	}
	info, err := block.ComputeTreeInfo(b)
	if err != nil {
		return nil, fmt.Errorf("hashing block: %w", err)
	}
	return info.BlockHash, nil
}
