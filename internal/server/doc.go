// Package server implements the RoomChat relay: a WebSocket hub that lets
// clients join named rooms, exchange messages, and receive each room's recent
// history together with join and leave notices.
//
// The implementation is organized into specialized files for configuration,
// the room registry, the hub event loop, clients, routing, and HTTP handlers.
package server
