package audio

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// oto allows one context per process
var (
	globalAudioCtx     *oto.Context
	globalAudioCtxOnce sync.Once
	globalAudioCtxErr  error
)

var ErrAudioUnavailable = errors.New("audio context unavailable")

// Player loops one sound until stopped. Stop may be called from any goroutine
// and returns once the device player is closed.
type Player struct {
	stopChan chan struct{}
	done     chan struct{}
	once     sync.Once
}

func initAudioContext(format *wavFormat) error {
	globalAudioCtxOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       oto.FormatSignedInt16LE,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			globalAudioCtxErr = fmt.Errorf("%w: %v", ErrAudioUnavailable, err)
			return
		}

		// Wait for the hardware audio devices to be ready
		<-readyChan

		globalAudioCtx = ctx
		log.Printf("[AUDIO] Context initialized (%d Hz, %d ch)", format.SampleRate, format.Channels)
	})
	return globalAudioCtxErr
}

// Play starts looping wavData and returns a handle to stop it
func Play(wavData []byte) (*Player, error) {
	format, samples, err := parseWAV(wavData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse WAV data: %w", err)
	}
	if format.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d, need 16", format.BitDepth)
	}

	if err := initAudioContext(format); err != nil {
		return nil, err
	}

	p := &Player{
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.playLoop(globalAudioCtx, samples)
	return p, nil
}

func (p *Player) playLoop(ctx *oto.Context, samples []byte) {
	defer close(p.done)

	for {
		player := ctx.NewPlayer(bytes.NewReader(samples))
		player.Play()

		for player.IsPlaying() {
			select {
			case <-p.stopChan:
				player.Pause()
				if err := player.Close(); err != nil {
					log.Printf("[AUDIO] Failed to close player: %v", err)
				}
				return
			case <-time.After(10 * time.Millisecond):
			}
		}

		if err := player.Close(); err != nil {
			log.Printf("[AUDIO] Failed to close player: %v", err)
		}

		select {
		case <-p.stopChan:
			return
		default:
		}
	}
}

// Stop ends playback. Safe to call more than once and on a nil Player.
func (p *Player) Stop() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		close(p.stopChan)
		<-p.done
		log.Println("[AUDIO] Playback stopped")
	})
}
