package main

import (
	"context"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"

	"github.com/w3f-community/iroha/configs"
	"github.com/w3f-community/iroha/node"
	leveldbstore "github.com/w3f-community/iroha/store/leveldb"
)

// Dumps the transfer table of a stopped bridge node, failed transfers and
// their reasons included, for operator inspection.
func main() {
	cfg := &node.Config{}
	if err := configs.ReadTo(configs.Path(os.Args[1:], "config.json"), cfg); err != nil {
		logrus.Errorf("Can't read config: %v", err)
		os.Exit(1)
	}

	st, err := leveldbstore.Open(cfg.StateDir)
	if err != nil {
		logrus.Errorf("Can't open state store (is the bridge node running?): %v", err)
		os.Exit(1)
	}
	defer st.Close()

	all, err := st.List(context.Background())
	if err != nil {
		logrus.Errorf("Can't list transfers: %v", err)
		os.Exit(1)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Source", "Account", "Asset", "Amount", "State", "Retries", "Dest Tx", "Last Error"})

	for _, t := range all {
		id := t.ID
		if len(id) > 16 {
			id = id[:16]
		}
		table.Append([]string{
			id,
			t.SourceChain.String(),
			t.Account,
			t.Asset,
			strconv.FormatUint(t.Amount, 10),
			t.State.String(),
			strconv.Itoa(t.RetryCount),
			t.DestTxRef,
			t.LastError,
		})
	}

	table.Render()
}
