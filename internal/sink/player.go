package sink

import (
	"log"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// Player plays a sound when a trigger fires. Playback runs through an
// external command so no audio stack is linked in; aplay and ffplay both
// work. The sound path may be a single file or a directory, in which case a
// random audio file from the directory is picked per trigger.
type Player struct {
	command   string
	args      []string
	soundPath string
	logger    *log.Logger
	playing   atomic.Bool

	// runCmd is swappable for tests.
	runCmd func(name string, args ...string) error
}

// NewPlayer creates a sound sink. command defaults to aplay when empty.
func NewPlayer(command, soundPath string, logger *log.Logger) *Player {
	if command == "" {
		command = "aplay"
	}
	args := []string{}
	if command == "ffplay" {
		args = []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}
	}
	return &Player{
		command:   command,
		args:      args,
		soundPath: soundPath,
		logger:    logger,
		runCmd: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

func isAudioFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav", ".mp3", ".ogg", ".flac":
		return true
	}
	return false
}

// pickSound resolves the configured path to a playable file. For a directory
// it returns a random audio file inside it, or "" when none exist.
func (p *Player) pickSound() string {
	info, err := os.Stat(p.soundPath)
	if err != nil {
		return ""
	}
	if !info.IsDir() {
		return p.soundPath
	}
	entries, err := os.ReadDir(p.soundPath)
	if err != nil {
		return ""
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && isAudioFile(e.Name()) {
			files = append(files, filepath.Join(p.soundPath, e.Name()))
		}
	}
	if len(files) == 0 {
		return ""
	}
	return files[rand.Intn(len(files))]
}

// Fire starts playback in the background. If the previous playback is still
// running the event is ignored; overlapping audio is worse than silence.
func (p *Player) Fire(event Event) {
	if p.soundPath == "" {
		return
	}
	file := p.pickSound()
	if file == "" {
		if p.logger != nil {
			p.logger.Printf("[Player] no playable sound at %s", p.soundPath)
		}
		return
	}
	if !p.playing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer p.playing.Store(false)
		args := append(append([]string{}, p.args...), file)
		if err := p.runCmd(p.command, args...); err != nil && p.logger != nil {
			p.logger.Printf("[Player] playback failed for event %s: %v", event.ID, err)
		}
	}()
}
