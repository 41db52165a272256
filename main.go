package main

import "github.com/user/vulnvalid/cmd"

func main() {
	cmd.Execute()
}
