/*
Quarryping queries a Bedrock server's offline status.

Usage:

	quarryping host:port

It sends an unconnected ping and prints the parsed MOTD fields.
*/
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/quarrymc/quarry/raknet"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: quarryping host:port")
		os.Exit(1)
	}

	pong, err := raknet.Ping(os.Args[1], 5*time.Second)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ping failed:", err)
		os.Exit(1)
	}

	fmt.Printf("%s (%s, protocol %d)\n", pong.ServerName, pong.GameVersion, pong.ProtocolVersion)
	fmt.Printf("players: %d/%d\n", pong.PlayerCount, pong.MaxPlayers)
	fmt.Printf("world: %s, gamemode %s (%d)\n", pong.WorldName, pong.GameMode, pong.GameModeNumeric)
	fmt.Printf("ports: %d (v4) %d (v6), guid %d\n", pong.PortV4, pong.PortV6, pong.ServerGUID)
}
