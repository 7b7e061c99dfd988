package main

import (
	"fmt"
	"os"

	"github.com/ZJUSCT/argo-cd.clusters.zjusct.io/cmd"
)

func main() {
	if err := cmd.NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
