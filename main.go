package main

import "github.com/striezel/botvinnik-sub001/cmd"

func main() {
	cmd.Execute()
}
