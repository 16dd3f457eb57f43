package main

import "github.com/papapumpkin/pulsar/cmd"

func main() {
	cmd.Execute()
}
