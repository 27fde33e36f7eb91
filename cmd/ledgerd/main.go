package main

import "github.com/pgxcyu/ledgerd/cmd/ledgerd/cmd"

func main() {
	cmd.Execute()
}
