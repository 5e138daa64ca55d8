package main

import "github.com/andresmejia3/veriface/cmd"

func main() {
	cmd.Execute()
}
