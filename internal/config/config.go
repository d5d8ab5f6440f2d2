// Package config loads the static event description (tracks and rooms)
// and the process environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultConfirmTimeout = 20 * time.Second

type Medium string

const (
	MediumInPerson Medium = "inperson"
	MediumOnline   Medium = "online"
	MediumHybrid   Medium = "hybrid"
)

func (m Medium) Valid() bool {
	switch m {
	case MediumInPerson, MediumOnline, MediumHybrid:
		return true
	}
	return false
}

// Track is a challenge a team can opt into. Lower Order is considered first.
type Track struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Order    int      `yaml:"order"`
	Baseline bool     `yaml:"baseline"`        // granted to every team, never counts as a declaration
	Rooms    []string `yaml:"rooms,omitempty"` // room affinity
}

// Room is a judging station. A room with no accepted tracks is a catch-all.
type Room struct {
	ID          string   `yaml:"id"`
	DisplayName string   `yaml:"display_name"`
	Medium      Medium   `yaml:"medium"`
	Location    string   `yaml:"location,omitempty"`
	TextChannel string   `yaml:"text_channel,omitempty"`
	JudgingVC   string   `yaml:"judging_vc,omitempty"`
	Tracks      []string `yaml:"tracks,omitempty"`
}

func (r Room) IsDefault() bool { return len(r.Tracks) == 0 }

type Event struct {
	Tracks         []Track       `yaml:"tracks"`
	Rooms          []Room        `yaml:"rooms"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	BroadcastOn    []string      `yaml:"broadcast_on"`
	PublicTopic    string        `yaml:"public_topic"`
	PrivateTopic   string        `yaml:"private_topic"`
}

func Load(path string) (*Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

func Decode(r io.Reader) (*Event, error) {
	var ev Event
	if err := yaml.NewDecoder(r).Decode(&ev); err != nil {
		return nil, fmt.Errorf("config: decode event: %w", err)
	}
	ev.applyDefaults()
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (e *Event) applyDefaults() {
	if e.ConfirmTimeout <= 0 {
		e.ConfirmTimeout = DefaultConfirmTimeout
	}
	if e.PublicTopic == "" {
		e.PublicTopic = "public"
	}
	if e.PrivateTopic == "" {
		e.PrivateTopic = "private"
	}
}

func (e *Event) Validate() error {
	var errs []error
	if len(e.Rooms) == 0 {
		errs = append(errs, errors.New("no judging rooms configured"))
	}

	tracks := map[string]bool{}
	for _, t := range e.Tracks {
		if t.ID == "" {
			errs = append(errs, errors.New("track with empty id"))
			continue
		}
		if tracks[t.ID] {
			errs = append(errs, fmt.Errorf("duplicate track %q", t.ID))
		}
		tracks[t.ID] = true
	}

	rooms := map[string]bool{}
	for _, r := range e.Rooms {
		if r.ID == "" {
			errs = append(errs, errors.New("room with empty id"))
			continue
		}
		if rooms[r.ID] {
			errs = append(errs, fmt.Errorf("duplicate room %q", r.ID))
		}
		rooms[r.ID] = true
		if !r.Medium.Valid() {
			errs = append(errs, fmt.Errorf("room %q: invalid medium %q", r.ID, r.Medium))
		}
		for _, t := range r.Tracks {
			if !tracks[t] {
				errs = append(errs, fmt.Errorf("room %q accepts unknown track %q", r.ID, t))
			}
		}
	}

	for _, t := range e.Tracks {
		for _, r := range t.Rooms {
			if !rooms[r] {
				errs = append(errs, fmt.Errorf("track %q has affinity to unknown room %q", t.ID, r))
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (e *Event) Room(id string) (Room, bool) {
	for _, r := range e.Rooms {
		if r.ID == id {
			return r, true
		}
	}
	return Room{}, false
}

func (e *Event) Track(id string) (Track, bool) {
	for _, t := range e.Tracks {
		if t.ID == id {
			return t, true
		}
	}
	return Track{}, false
}

// RoomForChannel maps the text channel a command was issued in to the room
// bound to it, if any.
func (e *Event) RoomForChannel(channel string) (string, bool) {
	if channel == "" {
		return "", false
	}
	for _, r := range e.Rooms {
		if r.TextChannel == channel {
			return r.ID, true
		}
	}
	return "", false
}

// Broadcasts reports whether committed operations named op are mirrored to
// the public topic.
func (e *Event) Broadcasts(op string) bool {
	return slices.Contains(e.BroadcastOn, op)
}
