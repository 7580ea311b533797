package cmd

import (
	"bytes"
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blocknode-org/blocknode/internal/block"
	testblock "github.com/blocknode-org/blocknode/internal/testutils/block"
	"github.com/stretchr/testify/require"
)

func writeBlockFile(t *testing.T, items []*block.BlockItem) string {
	t.Helper()
	buf := &bytes.Buffer{}
	enc := block.Cbor.Encoder(buf)
	for _, item := range items {
		require.NoError(t, enc.Encode(item))
	}
	fileName := filepath.Join(t.TempDir(), "block.cbor")
	require.NoError(t, os.WriteFile(fileName, buf.Bytes(), 0600))
	return fileName
}

func TestBlockHash_Ok(t *testing.T) {
	b := testblock.CreateBlock(t, 5)
	fileName := writeBlockFile(t, b.Items)

	out := &bytes.Buffer{}
	app := New()
	app.baseCmd.SetOut(out)
	app.baseCmd.SetArgs([]string{"block-hash", "--home", t.TempDir(), "-f", fileName})
	require.NoError(t, app.addAndExecuteCommand(context.Background()))
	require.Equal(t, hex.EncodeToString(testblock.BlockHash(t, b)), strings.TrimSpace(out.String()))
}

func TestBlockHash_IncompleteBlock(t *testing.T) {
	b := testblock.CreateBlock(t, 5)
	fileName := writeBlockFile(t, b.Items[:len(b.Items)-1])

	_, err := blockHashFromFile(fileName)
	require.ErrorContains(t, err, "invalid block")
}

func TestBlockHash_FileNotFound(t *testing.T) {
	_, err := blockHashFromFile(filepath.Join(t.TempDir(), "nope.cbor"))
	require.ErrorContains(t, err, "opening block file")
}

func TestBlockHash_FlagRequired(t *testing.T) {
	app := New()
	app.baseCmd.SetArgs([]string{"block-hash", "--home", t.TempDir()})
	require.ErrorContains(t, app.addAndExecuteCommand(context.Background()), `required flag(s) "file" not set`)
}
