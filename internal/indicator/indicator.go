package indicator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MasonRhodesDev/wayland-voice-dictation/internal/config"
)

// Player plays the four session-transition cues, serialized through
// soundMu so an overlapping start/confirm never talks over itself.
type Player struct {
	cfg    config.IndicatorConfig
	logger *slog.Logger

	soundMu sync.Mutex
}

// NewPlayer builds a Player from cfg. A nil logger disables cue-failure logging.
func NewPlayer(cfg config.IndicatorConfig, logger *slog.Logger) *Player {
	return &Player{cfg: cfg, logger: logger}
}

// CueStart plays the session-start cue.
func (p *Player) CueStart(ctx context.Context) { p.playCue(ctx, cueStart) }

// CueConfirm plays the confirm-received cue.
func (p *Player) CueConfirm(ctx context.Context) { p.playCue(ctx, cueConfirm) }

// CueComplete plays the successful-emission cue.
func (p *Player) CueComplete(ctx context.Context) { p.playCue(ctx, cueComplete) }

// CueCancel plays the cancelled/no-emission cue.
func (p *Player) CueCancel(ctx context.Context) { p.playCue(ctx, cueCancel) }

func (p *Player) playCue(ctx context.Context, kind cueKind) {
	if !p.cfg.SoundEnable {
		return
	}
	go func() {
		p.soundMu.Lock()
		defer p.soundMu.Unlock()
		if err := emitCue(ctx, kind); err != nil {
			p.log("indicator audio cue failed", err)
		}
	}()
}

func (p *Player) log(message string, err error) {
	if p.logger == nil || err == nil {
		return
	}
	p.logger.Debug(message, "error", err.Error())
}
