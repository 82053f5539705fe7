// Quarryd runs a Bedrock Edition server on the quarry session
// pipeline with a flat default world.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"

	"github.com/quarrymc/quarry/proto"
	"github.com/quarrymc/quarry/server"
)

func main() {
	configPath := flag.String("config", "quarry.yml", "path to the server configuration")
	flag.Parse()

	log := pterm.DefaultLogger.WithLevel(pterm.LogLevelInfo)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal("config", log.Args("path", *configPath, "err", err))
	}

	srv, err := server.Listen(server.Config{
		Name:                 cfg.Name,
		WorldName:            cfg.World.Name,
		PortV4:               cfg.Network.PortV4,
		PortV6:               cfg.Network.PortV6,
		MaxPlayers:           cfg.MaxPlayers,
		OnlineMode:           cfg.OnlineMode,
		Compression:          compressionAlgorithm(cfg.Network.Compression),
		CompressionThreshold: cfg.Network.CompressionThreshold,
		GameMode:             cfg.World.GameMode,
		GameModeNumeric:      gameModeNumeric(cfg.World.GameMode),
		Seed:                 cfg.World.Seed,
		Spawn:                proto.Vec3{X: 0.5, Y: 6.62, Z: 0.5},
		MaxChunkRadius:       cfg.World.MaxChunkRadius,
		Log:                  log,
	})
	if err != nil {
		log.Fatal("listen", log.Args("err", err))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	srv.Close()
}

func gameModeNumeric(mode string) int32 {
	switch mode {
	case "Creative", "creative":
		return 1
	case "Adventure", "adventure":
		return 2
	default:
		return 0
	}
}

func compressionAlgorithm(name string) uint16 {
	switch name {
	case "snappy":
		return proto.CompressionSnappy
	case "none":
		return proto.CompressionNone
	default:
		return proto.CompressionFlate
	}
}
