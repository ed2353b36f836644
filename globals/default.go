package globals

import "github.com/hashicorp/go-hclog"

var AppLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "pawsly-chat",
	Level: hclog.LevelFromString("INFO"),
})
