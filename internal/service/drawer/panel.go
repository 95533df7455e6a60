package drawer

import (
	"context"
	"log"
	"time"

	"github.com/zhouzirui/chat-drawer/backend/internal/model/chat"
	"github.com/zhouzirui/chat-drawer/backend/internal/model/persona"
	"github.com/zhouzirui/chat-drawer/backend/internal/model/recording"
	chatsvc "github.com/zhouzirui/chat-drawer/backend/internal/service/chat"
	recordingsvc "github.com/zhouzirui/chat-drawer/backend/internal/service/recording"
)

// Info is the listing view of an open panel.
type Info struct {
	ID        string    `json:"id"`
	PersonaID string    `json:"personaId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Release is the outcome of letting go of the record button.
type Release struct {
	Result recording.Result `json:"result"`
	// Message is the voice message appended for a completed recording.
	Message *chat.Message `json:"message,omitempty"`
}

// Panel pairs a chat session with its recording controller and routes
// completed recordings into the timeline as voice messages.
type Panel struct {
	info     Info
	persona  persona.Persona
	session  *chatsvc.Session
	recorder *recordingsvc.Controller
}

func (p *Panel) ID() string                            { return p.info.ID }
func (p *Panel) Info() Info                            { return p.info }
func (p *Panel) Persona() persona.Persona              { return p.persona }
func (p *Panel) Session() *chatsvc.Session             { return p.session }
func (p *Panel) Recorder() *recordingsvc.Controller    { return p.recorder }
func (p *Panel) ChatSnapshot() chat.Snapshot           { return p.session.Snapshot() }
func (p *Panel) RecordingSnapshot() recording.Snapshot { return p.recorder.Snapshot() }

// PressRecord starts a recording at pointer position y. Input is disabled
// while the assistant is typing, so the press is ignored then.
func (p *Panel) PressRecord(ctx context.Context, y float64) error {
	if p.session.IsTyping() {
		return nil
	}
	return p.recorder.Begin(ctx, y)
}

func (p *Panel) MovePointer(y float64) recording.State {
	return p.recorder.TrackPointer(y)
}

// ReleaseRecord ends the gesture. A completed recording is sent as a voice
// message; ok is false when nothing was recording.
func (p *Panel) ReleaseRecord() (Release, bool) {
	res, ok := p.recorder.End()
	if !ok {
		return Release{}, false
	}
	out := Release{Result: res}
	if !res.Completed() {
		return out, true
	}
	msg, sent := p.session.Send(res.Content, chat.TypeVoice)
	if !sent {
		log.Printf("[drawer] session=%s voice message rejected after %ds recording", p.info.ID, res.Seconds)
		return out, true
	}
	out.Message = &msg
	return out, true
}

// Close tears down the recorder before the session so no voice message can
// land on a closed timeline.
func (p *Panel) Close() {
	p.recorder.Close()
	p.session.Close()
}
