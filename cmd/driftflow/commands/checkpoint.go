package commands

import (
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/driftflow/internal/cli/output"
	"github.com/marmos91/driftflow/pkg/checkpoint"
	"github.com/marmos91/driftflow/pkg/store"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect checkpoint storage",
}

var checkpointLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List committed record store slices",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		storage, prefix, err := store.NewStorage(ctx, cfg.Checkpoint.Storage, cfg.Checkpoint.Dir)
		if err != nil {
			return err
		}

		listPrefix := path.Join(prefix, checkpoint.RecordStoreDir) + "/"

		table := output.NewTableData("EPOCH", "KEY", "SIZE")
		count := 0
		continuation := ""
		for {
			page, err := storage.List(ctx, listPrefix, continuation)
			if err != nil {
				return err
			}
			for _, obj := range page.Objects {
				epoch := strings.TrimPrefix(obj.Key, listPrefix)
				if parsed, err := strconv.ParseUint(epoch, 10, 64); err == nil {
					epoch = strconv.FormatUint(parsed, 10)
				}
				table.AddRow(epoch, obj.Key, strconv.FormatInt(obj.Size, 10))
				count++
			}
			continuation = page.Continuation
			if continuation == "" {
				break
			}
		}

		if count == 0 {
			fmt.Println("no checkpoints found")
			return nil
		}
		table.Print(os.Stdout)
		return nil
	},
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the latest checkpoint descriptor",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		factory, ckpt, err := checkpoint.NewFactory(ctx, cfg.Checkpoint.Dir, checkpoint.FactoryOptions{
			StorageConfig:        cfg.Checkpoint.Storage,
			PersistQueueCapacity: cfg.Checkpoint.PersistQueueCapacity,
		})
		if err != nil {
			return err
		}
		defer factory.Close()

		if ckpt.NumSlices() == 0 {
			fmt.Println("no checkpoint present")
			return nil
		}

		fmt.Printf("epoch:            %d\n", ckpt.EpochID())
		fmt.Printf("next epoch:       %d\n", ckpt.NextEpochID())
		fmt.Printf("slices:           %d\n", ckpt.NumSlices())
		fmt.Printf("records:          %d\n", factory.RecordStore().NumRecords())
		fmt.Printf("processor prefix: %s\n", ckpt.ProcessorPrefix())
		fmt.Println()

		table := output.NewTableData("SOURCE", "TXN", "SEQ")
		for handle, pos := range ckpt.SourceStates() {
			table.AddRow(handle.String(),
				strconv.FormatUint(pos.TxnID, 10),
				strconv.FormatUint(pos.SeqInTxn, 10))
		}
		table.Print(os.Stdout)
		return nil
	},
}

func init() {
	checkpointCmd.AddCommand(checkpointLsCmd)
	checkpointCmd.AddCommand(checkpointShowCmd)
}
