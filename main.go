package main

import "github.com/RadoTSC/bittensor-assistant-bot/cmd"

func main() {
	cmd.Execute()
}
