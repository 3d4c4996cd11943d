package main

import "github.com/inclawbate/staking-engine/cmd"

func main() {
	cmd.Execute()
}
