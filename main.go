package main

import "github.com/creatorhub/webhook-gateway/cmd"

func main() {
	cmd.Execute()
}
