package engine

import "github.com/mattjoyce/drivelink/internal/message"

//go:generate mockgen -destination=mocks/mock_transport.go -package=mocks github.com/mattjoyce/drivelink/internal/engine Transport

// Transport sends requests to the remote engine. A false return means the
// request could not be handed over locally; nothing was sent.
type Transport interface {
	SendDispatch(msg *message.Message) bool
	SendDispatchFile(path string) bool
	SendFreeMessage(text string) bool
	SendShutdown() bool
}
