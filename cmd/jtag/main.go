package main

import "github.com/OpenTraceLab/jtagchain/cmd/jtag/cmd"

func main() {
	cmd.Execute()
}
