package command

import (
	"github.com/lojhan/minikv/internal/resp"
)

func PingCommand(args []string) resp.Value {
	switch len(args) {
	case 0:
		return resp.PongValue()
	case 1:
		return resp.BulkStringValue(args[0])
	default:
		return wrongArgs("ping")
	}
}

func EchoCommand(args []string) resp.Value {
	if len(args) != 1 {
		return wrongArgs("echo")
	}
	return resp.BulkStringValue(args[0])
}
