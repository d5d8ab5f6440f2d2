// Package directory is the authoritative record of teams, their members,
// their declared challenge tracks and the chat artifacts (text channel,
// voice channel, role) used to reach them.
package directory

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"

	"github.com/DoyleJ11/hackathon-judging/internal/config"
	"github.com/DoyleJ11/hackathon-judging/internal/planner"
)

const MaxNameLen = 100

var ErrInvalidName = errors.New("team names must be lowercase letters, digits and single hyphens, at most 100 characters")
var ErrTeamExists = errors.New("a team with this name already exists")
var ErrTeamNotFound = errors.New("team not found")
var ErrMemberTaken = errors.New("member is already on a team")
var ErrMemberNotFound = errors.New("member is not on this team")
var ErrTracksLocked = errors.New("judging has opened; challenge tracks can no longer change")
var ErrInvalidMedium = errors.New("medium preference must be inperson, online or hybrid")

// ErrNotFound means the team or one of its artifacts could not be resolved.
var ErrNotFound = errors.New("team artifacts not found")

// same shape a chat text channel name accepts
var validName = regexp.MustCompile(`^([a-z0-9]+-)*[a-z0-9]+$`)

type Team struct {
	Name         string        `json:"name"`
	Tracks       []string      `json:"tracks"`
	Members      []string      `json:"members"`
	MediumPref   config.Medium `json:"medium_pref,omitempty"`
	TextChannel  string        `json:"text_channel,omitempty"`
	VoiceChannel string        `json:"voice_channel,omitempty"`
	Role         string        `json:"role,omitempty"`
}

type Artifacts struct {
	TextChannel  string
	VoiceChannel string
	Role         string
}

type Directory interface {
	CreateTeam(ctx context.Context, t Team) error
	AddMember(ctx context.Context, team, member string) error
	RemoveMember(ctx context.Context, team, member string) error
	SetTracks(ctx context.Context, team string, tracks []string) error
	LockTracks()
	TeamExists(ctx context.Context, name string) (bool, error)
	ListTeamsWithTracks(ctx context.Context) ([]planner.Entry, error)
	Resolve(ctx context.Context, name string) (Artifacts, error)
	Teams(ctx context.Context) ([]Team, error)
}

func ValidateName(name string) error {
	if len(name) == 0 || len(name) > MaxNameLen || !validName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func validateTeam(t Team) error {
	if err := ValidateName(t.Name); err != nil {
		return err
	}
	if t.MediumPref != "" && !t.MediumPref.Valid() {
		return ErrInvalidMedium
	}
	return nil
}

func artifactsOf(t Team) (Artifacts, error) {
	a := Artifacts{TextChannel: t.TextChannel, VoiceChannel: t.VoiceChannel, Role: t.Role}
	var missing []string
	if a.TextChannel == "" {
		missing = append(missing, "text channel")
	}
	if a.VoiceChannel == "" {
		missing = append(missing, "voice channel")
	}
	if a.Role == "" {
		missing = append(missing, "role")
	}
	if len(missing) > 0 {
		return Artifacts{}, fmt.Errorf("%w: team %s has no %v", ErrNotFound, t.Name, missing)
	}
	return a, nil
}

func dedupe(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it != "" && !slices.Contains(out, it) {
			out = append(out, it)
		}
	}
	return out
}

var (
	_ Directory = (*Memory)(nil)
	_ Directory = (*Store)(nil)
)
