// Package server is the network edge of the chat service.
//
// A Server owns a chi router, a Hub of live WebSocket connections and the
// chat.Registry they join. Each connection is a Client with a read pump that
// feeds inbound frames to the registry and a write pump that drains the
// client's bounded outbound queue. Configuration is loaded through viper by
// NewViper and LoadConfig.
package server
