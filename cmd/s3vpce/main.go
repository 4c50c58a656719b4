package main

import (
	"fmt"
	"os"

	"github.com/ashokba6266/s3-vpc-endpoint/internal/cli"
)

func main() {
	err := cli.Execute()
	code := cli.ExitCode(err)
	if err != nil && code != 0 {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(code)
}
