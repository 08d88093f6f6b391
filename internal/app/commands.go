// Package app coordinates user intents against the session store: the
// command processor validates and applies them, the session controller
// owns the session lifecycle for one client.
package app

import "github.com/dkeye/Gather/internal/domain"

// Command is a validated user intent applied to a session. All commands
// except joining require the session to be in the active phase.
type Command interface {
	isCommand()
}

type ToggleVideo struct{}

type ToggleAudio struct{}

type ToggleScreenShare struct{}

type SendMessage struct {
	Body string
}

type RemoveParticipant struct {
	TargetID domain.ParticipantID
}

type TransferHost struct {
	TargetID domain.ParticipantID
}

type LeaveRoom struct{}

func (ToggleVideo) isCommand()       {}
func (ToggleAudio) isCommand()       {}
func (ToggleScreenShare) isCommand() {}
func (SendMessage) isCommand()       {}
func (RemoveParticipant) isCommand() {}
func (TransferHost) isCommand()      {}
func (LeaveRoom) isCommand()         {}
