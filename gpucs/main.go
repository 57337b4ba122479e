// Package main is the entry point of the gpucs command.
package main

import "github.com/sarchlab/gpucs/gpucs/cmd"

func main() {
	cmd.Execute()
}
