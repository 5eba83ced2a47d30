package main

import "github.com/tranvictor/walletfactory/cmd"

func main() {
	cmd.Execute()
}
