package main

import (
	"os"

	"github.com/graymonk/taobao-reconciliation-new/cmd/salesreport/cmd"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)
	os.Exit(cmd.Execute())
}
