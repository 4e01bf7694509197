package main

// Compiled-in modules. Each registers itself with core in init.
import (
	_ "github.com/flemzord/llmrelay/internal/gateway"
	_ "github.com/flemzord/llmrelay/modules/ledger/sqlite"
	_ "github.com/flemzord/llmrelay/modules/provider/openai"
	_ "github.com/flemzord/llmrelay/modules/provider/websocket"
)
