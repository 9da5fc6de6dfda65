package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and logs the settings that shape request handling
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.Print("inferd", GetFullVersion())

	logger.Info().
		Str("environment", config.Environment).
		Str("response_timeout", config.Queue.ResponseTimeout).
		Str("command_dequeue_timeout", config.Queue.CommandDequeueTimeout).
		Int("max_queue_length", config.Queue.MaxQueueLength).
		Str("modules_dir", config.Modules.Dir).
		Bool("persistence", config.Storage.Badger.Enabled).
		Msg("Gateway settings")
}
