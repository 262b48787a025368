package main

import (
	"fmt"
	"os"

	"github.com/axiomhq/ckms"
	"github.com/go-kit/log"
)

func main() {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))

	for _, s := range ckms.Strategies() {
		e, err := ckms.New(s, ckms.DefaultTargets(), ckms.WithLogger(logger))
		if err != nil {
			panic(err)
		}
		for i := 0.0; i < 1e6; i++ {
			e.Observe(i)
		}

		quantiles, err := e.Quantiles()
		if err != nil {
			panic(err)
		}
		fmt.Println(s)
		for _, q := range e.Monitored() {
			fmt.Printf("  q=%-6v %v\n", q, quantiles[q])
		}
		fmt.Printf("  %+v\n", e.Stats())
	}
}
