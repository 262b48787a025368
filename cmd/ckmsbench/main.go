// Command ckmsbench benchmarks the ckms estimator strategies against each
// other and against other quantile sketches.
package main

import (
	"os"
)

func main() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
